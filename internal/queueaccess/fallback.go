package queueaccess

import (
	"context"
	"errors"
	"fmt"

	"postflow/internal/apiclient"
	"postflow/internal/queue"
)

// Session represents an access handle and its cleanup function.
type Session struct {
	Access Access
	// Offline is true when the daemon did not answer and the store is read directly.
	Offline bool
	close   func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback probes the daemon first, then falls back to direct store access.
// Errors other than an unreachable daemon (a bad token, say) are returned as is.
func OpenWithFallback(
	ctx context.Context,
	client *apiclient.Client,
	openStore func() (*queue.Store, error),
) (Session, error) {
	if client != nil {
		_, err := client.Status(ctx)
		if err == nil {
			return Session{Access: NewAPIAccess(client)}, nil
		}
		if !errors.Is(err, apiclient.ErrDaemonUnavailable) {
			return Session{}, err
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open content store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open content store: %w", err)
	}
	return Session{
		Access:  NewStoreAccess(store),
		Offline: true,
		close:   store.Close,
	}, nil
}
