package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"postflow/internal/daemonctl"
	"postflow/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the postflow daemon in the foreground",
		Long: "Run the postflow daemon in the foreground until SIGINT or SIGTERM.\n" +
			"The daemon serves the HTTP API, the webhook endpoint, and metrics on api.bind.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.SkipPreflight, "skip-preflight", false, "Skip startup readiness checks")
	return cmd
}

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 10 * time.Second
)

func newDaemonControlCommands(ctx *commandContext) []*cobra.Command {
	var startLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the postflow daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, exe, ctx.launchOptions(startLevel), startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLevel, "log-level", "", "Override logging.level for the launched daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background postflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, cfg.PIDPath(), cfg.LockPath(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in %s; killed pid %d\n", stopGracePeriod, result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var restartLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the background postflow daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(cmd.Context(), client, cfg.PIDPath(), cfg.LockPath(), exe,
				ctx.launchOptions(restartLevel), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.Stop.PID)
			}
			fmt.Fprintf(out, "Daemon restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLevel, "log-level", "", "Override logging.level for the launched daemon")

	return []*cobra.Command{startCmd, stopCmd, restartCmd}
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func (c *commandContext) launchOptions(logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{ConfigPath: c.configPath, LogLevel: logLevel}
	if c.configFlag != nil {
		if flag := strings.TrimSpace(*c.configFlag); flag != "" {
			opts.ConfigPath = flag
		}
	}
	return opts
}
