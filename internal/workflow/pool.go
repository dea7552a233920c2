package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"postflow/internal/lifecycle"
	"postflow/internal/logging"
	"postflow/internal/queue"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// ResultReporter receives the outcome of every executed job.
type ResultReporter interface {
	OnJobResult(ctx context.Context, jobID int64, outcome stage.Outcome) error
}

// Pool runs a fixed number of workers for one stage.
type Pool struct {
	stage        lifecycle.Stage
	workers      int
	timeout      time.Duration
	pollInterval time.Duration
	store        *queue.Store
	results      ResultReporter
	executor     *Executor
	heartbeat    *HeartbeatMonitor
	logger       *slog.Logger

	wake chan struct{}
	busy atomic.Int32
}

// PoolStatus is a snapshot of one pool.
type PoolStatus struct {
	Stage   lifecycle.Stage
	Workers int
	Busy    int
}

// NewPool constructs a pool for one stage.
func NewPool(stg lifecycle.Stage, workers int, timeout, pollInterval time.Duration, store *queue.Store, results ResultReporter, executor *Executor, heartbeat *HeartbeatMonitor, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		stage:        stg,
		workers:      workers,
		timeout:      timeout,
		pollInterval: pollInterval,
		store:        store,
		results:      results,
		executor:     executor,
		heartbeat:    heartbeat,
		logger: logger.With(
			logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-pool", stg)),
			logging.Stage(string(stg)),
		),
		wake: make(chan struct{}, 1),
	}
}

// Wake nudges an idle worker to look for work immediately.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Status reports worker occupancy.
func (p *Pool) Status() PoolStatus {
	return PoolStatus{Stage: p.stage, Workers: p.workers, Busy: int(p.busy.Load())}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := p.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error("failed to process stage job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			p.waitForWork(ctx)
			continue
		}
		if processed {
			// Another job may be waiting; let a peer pick it up too.
			p.Wake()
			continue
		}
		p.waitForWork(ctx)
	}
}

func (p *Pool) waitForWork(ctx context.Context) {
	timer := time.NewTimer(p.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.wake:
	case <-timer.C:
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was
// claimed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.store.ClaimNextJob(ctx, p.stage, p.store.Now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.busy.Add(1)
	defer p.busy.Add(-1)

	if p.heartbeat != nil {
		p.heartbeat.Track(job.ID)
		defer p.heartbeat.Untrack(job.ID)
	}

	jobCtx := services.WithRequestID(ctx, uuid.NewString())
	jobCtx = services.WithContentID(jobCtx, job.ContentID)
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobCtx = services.WithStage(jobCtx, string(job.Stage))
	jobCtx = services.WithPlatform(jobCtx, string(job.Platform))
	logger := logging.WithContext(jobCtx, p.logger)

	start := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", job.AttemptCount),
	)
	outcome := p.execute(jobCtx, job)
	if ctx.Err() != nil {
		// Shutdown: leave the job running so the next process reclaims it.
		logger.Debug("stage interrupted by shutdown")
		return true, ctx.Err()
	}
	if outcome.OK() {
		logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(start)),
		)
	} else {
		logger.Warn("stage returned failure",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, string(outcome.Kind())),
			logging.Duration("stage_duration", time.Since(start)),
			logging.Error(outcome.Err),
		)
	}
	if err := p.report(ctx, logger, job, outcome); err != nil {
		return true, fmt.Errorf("apply %s result: %w", job.Label(), err)
	}
	return true, nil
}

// report hands the outcome to the orchestrator, retrying commit conflicts
// until they clear so the job never stays running after its work is done.
func (p *Pool) report(ctx context.Context, logger *slog.Logger, job *queue.Job, outcome stage.Outcome) error {
	delay := 10 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := p.results.OnJobResult(ctx, job.ID, outcome)
		if err == nil || !errors.Is(err, queue.ErrConcurrentModification) {
			return err
		}
		logger.Warn("job result not committed; retrying",
			logging.String(logging.FieldEventType, "job_result_conflict"),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = min(delay*2, time.Second)
	}
}

// execute loads the item and runs the capability with the stage timeout.
// Panics and timeouts become transient failures.
func (p *Pool) execute(ctx context.Context, job *queue.Job) (outcome stage.Outcome) {
	item, err := p.store.GetContent(ctx, job.ContentID)
	if err != nil {
		return stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "load content", "", err))
	}
	if item == nil {
		return stage.Failure(services.Wrap(services.ErrPermanent, string(job.Stage), "load content",
			fmt.Sprintf("content %s not found", job.ContentID), nil))
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Buffered so an abandoned capability call can still deliver and exit.
	done := make(chan stage.Outcome, 1)
	go func() {
		var result stage.Outcome
		defer func() {
			if r := recover(); r != nil {
				logging.WithContext(ctx, p.logger).Error("stage panicked",
					logging.String(logging.FieldEventType, "stage_panic"),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
				result = stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "execute",
					fmt.Sprintf("panic: %v", r), nil))
			}
			done <- result
		}()
		result = p.executor.Execute(runCtx, job, item)
	}()

	select {
	case outcome = <-done:
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "execute", "interrupted", ctx.Err()))
		}
		logging.WithContext(ctx, p.logger).Warn("stage exceeded timeout; late result will be dropped",
			logging.String(logging.FieldEventType, "stage_timeout"),
			logging.Duration("timeout", p.timeout),
			logging.String(logging.FieldErrorHint, "raise workers."+string(job.Stage)+".timeout_seconds or check the capability"),
		)
		return stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "execute",
			fmt.Sprintf("timed out after %s", p.timeout), nil))
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		detail := "result arrived after the deadline"
		if !outcome.OK() {
			detail = errorMessage(outcome.Err)
		}
		outcome = stage.Failure(services.Wrap(services.ErrTransient, string(job.Stage), "execute",
			fmt.Sprintf("timed out after %s: %s", p.timeout, detail), nil))
	}
	return outcome
}
