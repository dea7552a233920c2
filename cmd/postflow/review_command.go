package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"postflow/internal/api"
	"postflow/internal/apiclient"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var reviewer string
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Record a review decision for content awaiting review",
	}
	cmd.PersistentFlags().StringVar(&reviewer, "reviewer", "", "Reviewer identifier (defaults to $USER)")

	resolveReviewer := func() string {
		if value := strings.TrimSpace(reviewer); value != "" {
			return value
		}
		if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
			return user
		}
		return "cli"
	}

	var approveAt string
	approve := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve content and schedule it for publishing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendReview(cmd, ctx, api.ReviewRequest{
				ContentID:    args[0],
				ReviewerID:   resolveReviewer(),
				Decision:     "approve",
				ScheduleTime: approveAt,
			})
		},
	}
	approve.Flags().StringVar(&approveAt, "at", "", "Publish time (RFC3339); defaults to now")

	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendReview(cmd, ctx, api.ReviewRequest{
				ContentID:  args[0],
				ReviewerID: resolveReviewer(),
				Decision:   "reject",
			})
		},
	}

	var editText string
	var editHashtags []string
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace text or hashtags and re-render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.ReviewRequest{
				ContentID:  args[0],
				ReviewerID: resolveReviewer(),
				Decision:   "edit",
			}
			if cmd.Flags().Changed("text") {
				req.Text = &editText
			}
			if cmd.Flags().Changed("hashtag") {
				req.Hashtags = editHashtags
			}
			if req.Text == nil && req.Hashtags == nil {
				return errors.New("edit requires --text or --hashtag")
			}
			return sendReview(cmd, ctx, req)
		},
	}
	edit.Flags().StringVar(&editText, "text", "", "Replacement text")
	edit.Flags().StringSliceVar(&editHashtags, "hashtag", nil, "Replacement hashtag (repeatable)")

	cmd.AddCommand(approve, reject, edit)
	return cmd
}

func sendReview(cmd *cobra.Command, ctx *commandContext, req api.ReviewRequest) error {
	return ctx.withClient(func(client *apiclient.Client) error {
		item, err := client.Review(cmd.Context(), req)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Recorded %s for %s; state is now %s\n", req.Decision, item.ID, item.State)
		if item.ScheduleTime != "" {
			fmt.Fprintf(out, "Scheduled for %s\n", item.ScheduleTime)
		}
		return nil
	})
}
