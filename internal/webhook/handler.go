package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"postflow/internal/logging"
	"postflow/internal/services"
)

const maxBodyBytes = 1 << 20

// Recorder receives one observation per handled webhook request.
type Recorder interface {
	WebhookRequest(action, outcome string)
}

// Handler serves the inbound webhook endpoint.
type Handler struct {
	dispatcher *Dispatcher
	secret     string
	recorder   Recorder
	logger     *slog.Logger
}

// NewHandler wraps a dispatcher. An empty secret disables signature checks.
func NewHandler(dispatcher *Dispatcher, secret string, recorder Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		dispatcher: dispatcher,
		secret:     secret,
		recorder:   recorder,
		logger:     logging.NewComponentLogger(logger, "webhook-handler"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reply(w, "", "rejected", http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		h.reply(w, "", "rejected", http.StatusBadRequest, Response{Error: "read body failed"})
		return
	}
	if len(body) > maxBodyBytes {
		h.reply(w, "", "rejected", http.StatusRequestEntityTooLarge, Response{Error: "body too large"})
		return
	}
	if h.secret != "" && !VerifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch",
			logging.String(logging.FieldEventType, "webhook_unauthorized"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		h.reply(w, "", "unauthorized", http.StatusUnauthorized, Response{Error: "invalid signature"})
		return
	}

	req, err := Decode(body)
	if err != nil {
		h.reply(w, "", "rejected", http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	action := string(req.Action())
	resp, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("webhook dispatch failed",
				logging.String("action", action),
				logging.Error(err),
				logging.String(logging.FieldEventType, "webhook_failed"),
				logging.String(logging.FieldErrorHint, "check daemon logs for the failing component"),
			)
		}
		h.reply(w, action, "failed", status, Response{Action: req.Action(), Error: err.Error()})
		return
	}
	h.reply(w, action, "accepted", http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) reply(w http.ResponseWriter, action, outcome string, status int, resp Response) {
	if h.recorder != nil {
		if action == "" {
			action = "unknown"
		}
		h.recorder.WebhookRequest(action, outcome)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode webhook response", logging.Error(err))
	}
}
