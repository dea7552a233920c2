package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/workflow"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Due     int `json:"due"`
	Started int `json:"started"`
	Failed  int `json:"failed"`
}

// Recorder receives the outcome counts of each sweep.
type Recorder interface {
	SweepCompleted(started, failed int)
}

// Scheduler begins publishing for due scheduled items.
type Scheduler struct {
	store        *queue.Store
	orchestrator *workflow.Orchestrator
	logger       *slog.Logger
	spec         string
	recorder     Recorder

	sweepMu sync.Mutex
	wake    chan struct{}
}

// New constructs a scheduler using the configured sweep cadence.
func New(cfg *config.Config, store *queue.Store, orchestrator *workflow.Orchestrator, logger *slog.Logger) (*Scheduler, error) {
	if store == nil || orchestrator == nil {
		return nil, errors.New("scheduler requires a store and an orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	spec := cfg.Scheduler.SweepSpec
	if _, err := config.SweepParser.Parse(spec); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scheduler", "parse sweep spec", spec, err)
	}
	return &Scheduler{
		store:        store,
		orchestrator: orchestrator,
		logger:       logging.NewComponentLogger(logger, "scheduler"),
		spec:         spec,
		wake:         make(chan struct{}, 1),
	}, nil
}

// SetRecorder registers a sweep recorder. Call before Run.
func (s *Scheduler) SetRecorder(recorder Recorder) {
	s.recorder = recorder
}

// Sweep begins publishing every scheduled item whose time has come. Items
// another sweep already moved are skipped by the orchestrator.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	var result SweepResult
	due, err := s.store.DueScheduled(ctx, s.store.Now())
	if err != nil {
		return result, fmt.Errorf("list due content: %w", err)
	}
	result.Due = len(due)
	for _, item := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		started, err := s.orchestrator.BeginPublishing(ctx, item.ID)
		if err != nil {
			result.Failed++
			s.logger.Warn("begin publishing failed",
				logging.ContentID(item.ID),
				logging.Error(err),
				logging.String(logging.FieldEventType, "publish_begin_failed"),
				logging.String(logging.FieldErrorHint, "the next sweep retries due items"),
			)
			continue
		}
		if started {
			result.Started++
		}
	}
	if s.recorder != nil {
		s.recorder.SweepCompleted(result.Started, result.Failed)
	}
	if result.Due > 0 {
		s.logger.Info("scheduler sweep complete",
			logging.String(logging.FieldEventType, "scheduler_sweep"),
			logging.Int("due", result.Due),
			logging.Int("started", result.Started),
			logging.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// Wake requests an immediate sweep from Run. It never blocks.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run sweeps on the cron cadence and whenever woken, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	runner := cron.New(
		cron.WithParser(config.SweepParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := runner.AddFunc(s.spec, func() { s.sweepAndLog(ctx) }); err != nil {
		return fmt.Errorf("register sweep: %w", err)
	}
	runner.Start()
	defer func() { <-runner.Stop().Done() }()

	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_start"),
		logging.String("sweep_spec", s.spec),
	)
	// Items that came due while the daemon was down.
	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("scheduler sweep failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scheduler_sweep_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
}
