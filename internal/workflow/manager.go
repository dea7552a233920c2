package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"postflow/internal/config"
	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/stage"
)

// Manager runs the per-stage worker pools and the heartbeat monitor.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	orchestrator *Orchestrator
	executor     *Executor
	heartbeat    *HeartbeatMonitor

	pools map[lifecycle.Stage]*Pool

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a manager with one pool per stage sized from config.
func NewManager(cfg *config.Config, store *queue.Store, orchestrator *Orchestrator, executor *Executor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	heartbeat := NewHeartbeatMonitor(
		store,
		orchestrator,
		logger,
		time.Duration(cfg.Workers.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Workers.HeartbeatTimeout)*time.Second,
	)
	poll := time.Duration(cfg.Workers.PollInterval) * time.Second
	pools := make(map[lifecycle.Stage]*Pool, len(lifecycle.AllStages()))
	for _, stg := range lifecycle.AllStages() {
		settings, _ := cfg.Workers.Pool(string(stg))
		pools[stg] = NewPool(stg, settings.Count, settings.Timeout(), poll, store, orchestrator, executor, heartbeat, logger)
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow-manager"),
		orchestrator: orchestrator,
		executor:     executor,
		heartbeat:    heartbeat,
		pools:        pools,
	}
	orchestrator.SetWaker(m.Wake)
	return m
}

// Orchestrator returns the orchestrator the pools report to.
func (m *Manager) Orchestrator() *Orchestrator {
	return m.orchestrator
}

// Pool returns the pool for a stage.
func (m *Manager) Pool(stg lifecycle.Stage) *Pool {
	return m.pools[stg]
}

// Start reclaims jobs orphaned by a previous process and begins background
// processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.pools) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	m.running = true
	m.mu.Unlock()

	if reclaimed, err := m.heartbeat.ReclaimOrphaned(ctx); err != nil {
		m.setLastError(err)
		m.logger.Warn("reclaim orphaned jobs failed; stuck jobs may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	} else if reclaimed > 0 {
		m.logger.Info("reclaimed orphaned jobs", logging.Int("count", reclaimed))
	}

	if health := m.executor.Capabilities().Health(ctx); !stage.AllReady(health) {
		for _, h := range health {
			if h.Ready {
				continue
			}
			m.logger.Warn("capability not ready; dependent stages will fail",
				logging.String("capability", h.Name),
				logging.String("detail", h.Detail),
				logging.String(logging.FieldEventType, "capability_degraded"),
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.heartbeat.Run(runCtx)
	}()
	for _, stg := range lifecycle.AllStages() {
		pool := m.pools[stg]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			pool.Run(runCtx)
		}()
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("pools", len(m.pools)),
	)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stop"))
}

// Wake nudges the pool of a stage.
func (m *Manager) Wake(stg lifecycle.Stage) {
	if pool := m.pools[stg]; pool != nil {
		pool.Wake()
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
