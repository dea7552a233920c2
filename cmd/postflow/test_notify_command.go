package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postflow/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to notifications.url",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			svc := notifications.NewService(cfg)
			if !svc.Enabled(notifications.EventTest) {
				fmt.Fprintln(cmd.OutOrStdout(), "Notifications are disabled; enable notifications.errors or notifications.completed")
				return nil
			}
			if err := svc.Test(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
