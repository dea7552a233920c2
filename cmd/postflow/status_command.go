package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"postflow/internal/api"
	"postflow/internal/apiclient"
	"postflow/internal/lifecycle"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, database, and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				printStatus(out, status, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	printSection(out, "Daemon", colorize)
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Started", statusInfo, valueOrDash(status.StartedAt), colorize))
	fmt.Fprintln(out, renderStatusLine("Data dir", statusInfo, status.DataDir, colorize))
	fmt.Fprintln(out, renderStatusLine("Next sweep", statusInfo, valueOrDash(status.NextSweep), colorize))
	fmt.Fprintln(out, renderStatusLine("Next scheduled", statusInfo, valueOrDash(status.NextSchedule), colorize))
	if status.Workflow.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.Workflow.LastError, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Database", colorize)
	db := status.Database
	if db.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Database", statusError, db.Error, colorize))
	} else {
		kind := statusOK
		if !db.IntegrityCheck {
			kind = statusError
		}
		detail := fmt.Sprintf("schema v%d, %d items, integrity %s", db.SchemaVersion, db.ContentItems, yesNo(db.IntegrityCheck))
		fmt.Fprintln(out, renderStatusLine("Database", kind, detail, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Capabilities", colorize)
	for _, h := range status.Workflow.StageHealth {
		kind := statusOK
		if !h.Ready {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(h.Name, kind, h.Detail, colorize))
	}
	fmt.Fprintln(out)

	printSection(out, "Workers", colorize)
	poolRows := make([][]string, 0, len(status.Workflow.Pools))
	for _, pool := range status.Workflow.Pools {
		poolRows = append(poolRows, []string{
			pool.Stage,
			strconv.Itoa(pool.Workers),
			strconv.Itoa(pool.Busy),
			jobSummary(status.Workflow.Jobs[pool.Stage]),
		})
	}
	fmt.Fprint(out, renderTable([]string{"Stage", "Workers", "Busy", "Jobs"}, poolRows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
	fmt.Fprintln(out)

	printSection(out, "Content", colorize)
	rows := stateRows(status.Workflow.States)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No content yet")
		return
	}
	fmt.Fprint(out, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// stateRows lists non-zero states in lifecycle order.
func stateRows(states map[string]int) [][]string {
	rows := make([][]string, 0, len(states))
	for _, state := range lifecycle.AllStates() {
		count := states[string(state)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{string(state), strconv.Itoa(count)})
	}
	return rows
}

func jobSummary(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(counts))
	for status := range counts {
		keys = append(keys, status)
	}
	sort.Strings(keys)
	summary := ""
	for i, status := range keys {
		if i > 0 {
			summary += " "
		}
		summary += fmt.Sprintf("%s=%d", status, counts[status])
	}
	return summary
}
