package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"postflow/internal/api"
	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind       string
	logger     *slog.Logger
	daemon     *Daemon
	contentSvc *api.ContentService

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, webhookHandler, metricsHandler http.Handler, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:       strings.TrimSpace(cfg.API.Bind),
		logger:     logger,
		daemon:     d,
		contentSvc: api.NewContentService(d.store),
	}
	token := strings.TrimSpace(cfg.API.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/content", authMiddleware(token, srv.handleContent))
	mux.HandleFunc("/api/content/", authMiddleware(token, srv.handleContentItem))
	mux.HandleFunc("/api/review", authMiddleware(token, srv.handleReview))
	mux.HandleFunc("/api/scheduler/sweep", authMiddleware(token, srv.handleSweep))
	mux.HandleFunc("/api/platforms", authMiddleware(token, srv.handlePlatforms))
	if webhookHandler != nil {
		mux.Handle("/webhook", webhookHandler)
	}
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listContent(w, r)
	case http.MethodPost:
		s.submitContent(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) listContent(w http.ResponseWriter, r *http.Request) {
	var states []lifecycle.State
	for _, value := range r.URL.Query()["state"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		state, ok := lifecycle.ParseState(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", trimmed))
			return
		}
		states = append(states, state)
	}
	items, err := s.contentSvc.List(r.Context(), states...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []api.ContentItem{}
	}
	s.writeJSON(w, http.StatusOK, api.ContentListResponse{Items: items})
}

func (s *apiServer) submitContent(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	orch := s.daemon.manager.Orchestrator()
	id, err := orch.Submit(r.Context(), api.ToSubmission(req, queue.OriginAPI))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	state := string(lifecycle.StateModerating)
	if item, err := s.daemon.store.GetContent(r.Context(), id); err == nil && item != nil {
		state = string(item.State)
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{ID: id, State: state})
}

func (s *apiServer) handleContentItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/content/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" || strings.Contains(action, "/") {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}
	switch action {
	case "":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		detail, err := s.contentSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if detail == nil {
			s.writeError(w, http.StatusNotFound, "content not found")
			return
		}
		s.writeJSON(w, http.StatusOK, detail)
	case "cancel":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := s.daemon.manager.Orchestrator().Cancel(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeItem(w, r, id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown content action")
	}
}

func (s *apiServer) handleReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.ReviewRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	decision, err := api.ToDecision(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if err := s.daemon.manager.Orchestrator().RecordReview(r.Context(), decision); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeItem(w, r, decision.ContentID)
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	result, err := s.daemon.scheduler.Sweep(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SweepResponse{Due: result.Due, Started: result.Started, Failed: result.Failed})
}

func (s *apiServer) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	table := s.daemon.manager.Orchestrator().Platforms()
	s.writeJSON(w, http.StatusOK, api.FromPlatformSpecs(table.All()))
}

func (s *apiServer) writeItem(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.daemon.store.GetContent(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromItem(item))
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if len(body) > maxRequestBody {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusForError maps orchestrator failures onto HTTP statuses.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, workflow.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, services.ErrCancellationRequested):
		return http.StatusConflict, "cancel_requested"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrInvalidContent):
		return http.StatusBadRequest, string(services.KindInvalidContent)
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity, string(services.KindValidation)
	case errors.Is(err, services.ErrConfiguration):
		return http.StatusServiceUnavailable, "configuration"
	default:
		return http.StatusInternalServerError, ""
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status, kind := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed", logging.Error(err), logging.Int("status", status))
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Kind: kind})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
