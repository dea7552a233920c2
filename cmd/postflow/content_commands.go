package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"postflow/internal/api"
	"postflow/internal/apiclient"
	"postflow/internal/platform"
	"postflow/internal/queueaccess"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		owner      string
		platforms  []string
		hashtags   []string
		media      []string
		noAnalysis bool
		callback   string
		prompt     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Submit content to the pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			if strings.TrimSpace(text) == "" && len(media) == 0 {
				return errors.New("submit requires text or at least one --media reference")
			}
			if len(platforms) == 0 {
				if cfg, err := ctx.ensureConfig(); err == nil {
					platforms = cfg.Pipeline.DefaultPlatforms
				}
			}
			req := api.SubmitRequest{
				OwnerID:         owner,
				Text:            text,
				Hashtags:        hashtags,
				TargetPlatforms: platforms,
				CallbackURL:     callback,
				Prompt:          prompt,
			}
			for _, ref := range media {
				req.Media = append(req.Media, platform.Media{URL: strings.TrimSpace(ref)})
			}
			if noAnalysis {
				analyze := false
				req.AnalyzeWithAI = &analyze
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s (%s)\n", resp.ID, resp.State)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner identifier recorded on the item")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "Target platform (repeatable; defaults to pipeline.default_platforms)")
	cmd.Flags().StringSliceVar(&hashtags, "hashtag", nil, "Hashtag to attach (repeatable)")
	cmd.Flags().StringSliceVar(&media, "media", nil, "Media URL to attach (repeatable; type inferred from extension)")
	cmd.Flags().BoolVar(&noAnalysis, "no-analysis", false, "Skip content analysis")
	cmd.Flags().StringVar(&callback, "callback", "", "URL notified when the item finishes")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Extra instructions for the analyzer")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var states []string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context(), states)
				if err != nil {
					return err
				}
				if jsonOutput {
					if items == nil {
						items = []api.ContentItem{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No content found")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "State", "Platforms", "Updated", "Text"},
					contentRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&states, "state", "s", nil, "Filter by state (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one content item with its jobs and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withAccess(cmd, func(access queueaccess.Access) error {
				detail, err := access.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("content %s not found", id)
				}
				if jsonOutput {
					return writeJSON(cmd, detail)
				}
				printDetail(cmd.OutOrStdout(), *detail)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>...",
		Short: "Cancel in-flight content items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ctx.withClient(func(client *apiclient.Client) error {
				var failed int
				for _, arg := range args {
					id := strings.TrimSpace(arg)
					item, err := client.Cancel(cmd.Context(), id)
					switch {
					case errors.Is(err, apiclient.ErrDaemonUnavailable):
						return err
					case apiclient.IsNotFound(err):
						fmt.Fprintf(out, "Item %s not found\n", id)
						failed++
					case err != nil:
						fmt.Fprintf(out, "Item %s not cancelled: %v\n", id, err)
						failed++
					default:
						fmt.Fprintf(out, "Item %s cancelled (state %s)\n", item.ID, item.State)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d items not cancelled", failed, len(args))
				}
				return nil
			})
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a scheduler sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				result, err := client.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Sweep: %d due, %d started, %d failed\n", result.Due, result.Started, result.Failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newPlatformsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "platforms",
		Short: "List platform limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				specs, err := client.Platforms(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, specs)
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Platform", "Text", "Tags", "Media", "Types", "Needs media"},
					platformRows(specs),
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
