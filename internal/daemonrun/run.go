// Package daemonrun assembles the postflow daemon from configuration and runs
// it until the process receives SIGINT or SIGTERM.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"postflow/internal/config"
	"postflow/internal/daemon"
	"postflow/internal/logging"
	"postflow/internal/metrics"
	"postflow/internal/notifications"
	"postflow/internal/preflight"
	"postflow/internal/queue"
	"postflow/internal/scheduler"
	"postflow/internal/services/analyzer"
	"postflow/internal/services/captioner"
	"postflow/internal/services/moderation"
	"postflow/internal/services/publisher"
	"postflow/internal/stage"
	"postflow/internal/webhook"
	"postflow/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight disables the startup readiness checks.
	SkipPreflight bool
}

// Run starts the postflow daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	archived, archiveErr := logging.ArchiveLog(cfg.DaemonLogPath(), time.Now())
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to archive previous log: %v\n", archiveErr)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if archived != "" {
		logger.Debug("previous log archived", logging.String("path", archived))
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, "postflow-*.log", cfg.DaemonLogPath(), cfg.Logging.RetentionDays, time.Now())

	if !opts.SkipPreflight {
		logPreflight(signalCtx, logger, cfg)
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open content store", logging.Error(err))
		return err
	}

	d, err := Assemble(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration, api.bind, and data directory access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("postflow daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Assemble wires capabilities, the orchestrator, worker pools, scheduler,
// metrics, notifications, and the webhook into a daemon. The daemon owns
// store and closes it on Close.
func Assemble(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	caps, err := buildCapabilities(cfg)
	if err != nil {
		return nil, err
	}

	orchestrator := workflow.NewOrchestrator(cfg, store, logger)
	executor := workflow.NewExecutor(caps, orchestrator.Platforms())
	manager := workflow.NewManager(cfg, store, orchestrator, executor, logger)

	sched, err := scheduler.New(cfg, store, orchestrator, logger)
	if err != nil {
		return nil, err
	}
	orchestrator.SetScheduleHook(sched.Wake)

	registry := metrics.New(store)
	orchestrator.AddObserver(registry)
	sched.SetRecorder(registry)

	notifier := webhook.NewNotifier(cfg, notifications.NewService(cfg), logger)
	orchestrator.AddObserver(notifier)

	dispatcher := webhook.NewDispatcher(cfg, orchestrator, store, caps.Analyzer, logger)
	handler := webhook.NewHandler(dispatcher, cfg.Webhook.Secret, registry, logger)

	return daemon.New(cfg, store, daemon.Components{
		Manager:   manager,
		Scheduler: sched,
		Webhook:   handler,
		Metrics:   registry.Handler(),
		Drain:     notifier.Wait,
	}, logger)
}

func buildCapabilities(cfg *config.Config) (stage.Capabilities, error) {
	contentAnalyzer, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		return stage.Capabilities{}, err
	}
	pub, err := publisher.New(cfg.Publisher)
	if err != nil {
		return stage.Capabilities{}, err
	}
	return stage.Capabilities{
		Moderator: moderation.NewKeyword(cfg.Moderation.BlockedTerms, cfg.Moderation.Threshold),
		Analyzer:  contentAnalyzer,
		Captioner: captioner.NewTemplate(captioner.Options{
			FitToPlatform:        cfg.Captioning.FitToPlatform,
			IncludeSuggestedTags: cfg.Captioning.IncludeSuggestedTags,
		}),
		Publisher: pub,
		Analytics: pub,
	}, nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Info("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logger.Warn("preflight check failed; dependent stages may fail",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "run postflow config validate --check"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
