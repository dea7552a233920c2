package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"postflow/internal/api"
	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/scheduler"
	"postflow/internal/workflow"
)

// Components are the collaborators the daemon runs and serves.
type Components struct {
	Manager   *workflow.Manager
	Scheduler *scheduler.Scheduler
	// Webhook serves POST /webhook. Nil disables the endpoint.
	Webhook http.Handler
	// Metrics serves GET /metrics. Nil disables the endpoint.
	Metrics http.Handler
	// Drain is called after workers stop, for flushing async side effects.
	Drain func()
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	manager   *workflow.Manager
	scheduler *scheduler.Scheduler
	drain     func()
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// startedAt is read by status handlers while Stop holds mu.
	startedAt atomic.Pointer[time.Time]
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, components Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || components.Manager == nil || components.Scheduler == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		manager:   components.Manager,
		scheduler: components.Scheduler,
		drain:     components.Drain,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, components.Webhook, components.Metrics, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the worker pools and the
// scheduler, and begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another postflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.manager.Stop()
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.scheduler.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("scheduler stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scheduler_stopped"),
				logging.String(logging.FieldErrorHint, "check scheduler.sweep_spec"),
			)
		}
	}()

	d.cancel = cancel
	started := time.Now().UTC()
	d.startedAt.Store(&started)
	d.running.Store(true)
	d.logger.Info("postflow daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.manager.Stop()
	if d.drain != nil {
		d.drain()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock; next start may report a running instance",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("postflow daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon is started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Address returns the API listener address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:  d.running.Load(),
		PID:      os.Getpid(),
		DataDir:  d.cfg.Paths.DataDir,
		LockPath: d.lockPath,
		Workflow: api.FromStatusSummary(d.manager.Status(ctx)),
	}
	if started := d.startedAt.Load(); started != nil && status.Running {
		status.StartedAt = api.FormatTime(*started)
	}
	health, err := d.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	status.Database = api.FromDatabaseHealth(health)

	now := d.store.Now()
	if schedule, err := config.SweepParser.Parse(d.cfg.Scheduler.SweepSpec); err == nil {
		status.NextSweep = api.FormatTime(schedule.Next(now))
	}
	if next, ok, err := d.store.NextScheduleTime(ctx); err == nil && ok {
		status.NextSchedule = api.FormatTime(next)
	}
	return status
}
