package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// HeartbeatMonitor refreshes heartbeats of jobs this process is running and
// reclaims running jobs whose heartbeat expired.
type HeartbeatMonitor struct {
	store             *queue.Store
	orchestrator      *Orchestrator
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration

	mu      sync.Mutex
	tracked map[int64]struct{}
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, orchestrator *Orchestrator, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{
		store:             store,
		orchestrator:      orchestrator,
		logger:            logging.NewComponentLogger(logger, "workflow-heartbeat"),
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
		tracked:           make(map[int64]struct{}),
	}
}

// Track marks a job as running in this process.
func (h *HeartbeatMonitor) Track(jobID int64) {
	h.mu.Lock()
	h.tracked[jobID] = struct{}{}
	h.mu.Unlock()
}

// Untrack removes a finished job.
func (h *HeartbeatMonitor) Untrack(jobID int64) {
	h.mu.Lock()
	delete(h.tracked, jobID)
	h.mu.Unlock()
}

func (h *HeartbeatMonitor) trackedIDs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.tracked))
	for id := range h.tracked {
		ids = append(ids, id)
	}
	return ids
}

func (h *HeartbeatMonitor) isTracked(jobID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tracked[jobID]
	return ok
}

// Beat refreshes the heartbeat of every tracked job.
func (h *HeartbeatMonitor) Beat(ctx context.Context) error {
	return h.store.UpdateJobHeartbeat(ctx, h.trackedIDs(), h.store.Now())
}

// ReclaimOrphaned fails every running job this process does not own. It runs
// once at startup, when any running job was left behind by a previous process.
func (h *HeartbeatMonitor) ReclaimOrphaned(ctx context.Context) (int, error) {
	jobs, err := h.store.RunningJobs(ctx)
	if err != nil {
		return 0, err
	}
	return h.reclaim(ctx, jobs, "left running by a previous process"), nil
}

// ReclaimStaleJobs fails running jobs whose heartbeat is older than the timeout.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context) (int, error) {
	if h.heartbeatTimeout <= 0 {
		return 0, nil
	}
	cutoff := h.store.Now().Add(-h.heartbeatTimeout)
	jobs, err := h.store.StaleRunningJobs(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return h.reclaim(ctx, jobs, "heartbeat expired"), nil
}

func (h *HeartbeatMonitor) reclaim(ctx context.Context, jobs []*queue.Job, reason string) int {
	reclaimed := 0
	for _, job := range jobs {
		if h.isTracked(job.ID) {
			continue
		}
		outcome := stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "reclaim", reason, nil))
		if err := h.orchestrator.OnJobResult(ctx, job.ID, outcome); err != nil {
			h.logger.Warn("reclaim stale job failed",
				logging.JobID(job.ID),
				logging.ContentID(job.ContentID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs",
			logging.Int("count", reclaimed),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "heartbeat_reclaim"),
		)
	}
	return reclaimed
}

// Run beats and reclaims every interval until context cancellation.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Beat(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			if _, err := h.ReclaimStaleJobs(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}
	}
}
