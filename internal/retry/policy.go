// Package retry decides whether a failed stage job is re-dispatched and how
// long it waits before becoming eligible again.
package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"postflow/internal/services"
)

const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 30 * time.Second
	DefaultMaxDelay       = 15 * time.Minute
	DefaultJitterFraction = 0.2
)

// Decision is the outcome of consulting the policy for one failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Policy bounds retries of transient failures with exponential backoff.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64

	mu   sync.Mutex
	rand func() float64
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRandom overrides the jitter source. The function must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(p *Policy) {
		if fn != nil {
			p.rand = fn
		}
	}
}

// NewPolicy constructs a policy, substituting defaults for non-positive values.
func NewPolicy(maxAttempts int, base, maxDelay time.Duration, jitter float64, opts ...Option) *Policy {
	p := &Policy{
		MaxAttempts:    maxAttempts,
		BaseDelay:      base,
		MaxDelay:       maxDelay,
		JitterFraction: jitter,
		rand:           rand.Float64,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.JitterFraction < 0 || p.JitterFraction >= 1 {
		p.JitterFraction = DefaultJitterFraction
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Default returns the policy with built-in limits.
func Default() *Policy {
	return NewPolicy(DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay, DefaultJitterFraction)
}

// Retryable reports whether a kind may ever be retried.
func Retryable(kind services.ErrorKind) bool {
	return kind == services.KindTransient
}

// ShouldRetry evaluates a failure of the given kind after attemptCount
// executions of the job. Only transient failures retry, and only while
// attemptCount is below MaxAttempts.
func (p *Policy) ShouldRetry(kind services.ErrorKind, attemptCount int) Decision {
	if !Retryable(kind) || attemptCount >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: p.Backoff(attemptCount)}
}

// Backoff returns base * 2^attempt adjusted by up to ±JitterFraction and
// capped at MaxDelay.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	raw := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}
	if p.JitterFraction > 0 {
		offset := (p.random()*2 - 1) * p.JitterFraction
		raw += raw * offset
	}
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw)
}

func (p *Policy) random() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rand == nil {
		return rand.Float64()
	}
	return p.rand()
}
