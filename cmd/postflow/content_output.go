package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"postflow/internal/api"
)

const listTextWidth = 48

func contentRows(items []api.ContentItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		state := item.State
		if item.CancelRequested && !item.Terminal {
			state += " (cancelling)"
		}
		rows = append(rows, []string{
			item.ID,
			state,
			api.PlatformSummary(item),
			valueOrDash(item.UpdatedAt),
			api.Truncate(item.Text, listTextWidth),
		})
	}
	return rows
}

func platformRows(specs []api.PlatformSpec) [][]string {
	rows := make([][]string, 0, len(specs))
	for _, spec := range specs {
		rows = append(rows, []string{
			spec.Name,
			strconv.Itoa(spec.MaxTextLength),
			strconv.Itoa(spec.MaxHashtags),
			strconv.Itoa(spec.MaxMedia),
			strings.Join(spec.AllowedMedia, ","),
			yesNo(spec.RequiresMedia),
		})
	}
	return rows
}

func printDetail(out io.Writer, detail api.ContentDetail) {
	item := detail.Item
	fmt.Fprintf(out, "ID:        %s\n", item.ID)
	fmt.Fprintf(out, "State:     %s\n", item.State)
	fmt.Fprintf(out, "Owner:     %s\n", valueOrDash(item.OwnerID))
	fmt.Fprintf(out, "Origin:    %s\n", item.Origin)
	fmt.Fprintf(out, "Platforms: %s\n", strings.Join(item.TargetPlatforms, ", "))
	fmt.Fprintf(out, "Created:   %s\n", valueOrDash(item.CreatedAt))
	fmt.Fprintf(out, "Updated:   %s\n", valueOrDash(item.UpdatedAt))
	if item.ScheduleTime != "" {
		fmt.Fprintf(out, "Scheduled: %s\n", item.ScheduleTime)
	}
	if item.CancelRequested {
		fmt.Fprintf(out, "Cancelled: %s\n", valueOrDash(item.CancelledAt))
	}
	if item.Error != nil {
		fmt.Fprintf(out, "Error:     %s: %s\n", item.Error.Kind, item.Error.Message)
	}
	fmt.Fprintf(out, "Text:      %s\n", item.Text)
	if len(item.Hashtags) > 0 {
		fmt.Fprintf(out, "Hashtags:  %s\n", hashtagList(item.Hashtags))
	}
	if m := item.Moderation; m != nil {
		verdict := "safe"
		if !m.Safe {
			verdict = "unsafe"
		}
		fmt.Fprintf(out, "Moderation: %s (score %.2f)", verdict, m.Score)
		if len(m.Categories) > 0 {
			fmt.Fprintf(out, " [%s]", strings.Join(m.Categories, ", "))
		}
		fmt.Fprintln(out)
	}
	if a := item.Analysis; a != nil {
		if a.Skipped {
			fmt.Fprintln(out, "Analysis:  skipped")
		} else {
			fmt.Fprintf(out, "Analysis:  %s (%d) via %s\n", a.Sentiment, a.SentimentScore, valueOrDash(a.Provider))
			if len(a.SuggestedHashtags) > 0 {
				fmt.Fprintf(out, "Suggested: %s\n", hashtagList(a.SuggestedHashtags))
			}
		}
	}

	if len(item.Renders) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable(
			[]string{"Platform", "Round", "Valid", "Published", "Caption"},
			renderRows(item),
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
		))
	}

	if len(detail.Jobs) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(detail.Jobs))
		for _, job := range detail.Jobs {
			errText := ""
			if job.Error != nil {
				errText = job.Error.Kind + ": " + api.Truncate(job.Error.Message, 40)
			}
			rows = append(rows, []string{
				strconv.FormatInt(job.ID, 10),
				job.Stage,
				valueOrDash(job.Platform),
				job.Status,
				strconv.Itoa(job.AttemptCount),
				errText,
			})
		}
		fmt.Fprint(out, renderTable(
			[]string{"Job", "Stage", "Platform", "Status", "Attempts", "Error"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}

	if len(detail.History) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "History:")
		for _, tr := range detail.History {
			from := tr.From
			if from == "" {
				from = "-"
			}
			fmt.Fprintf(out, "  %s  %s -> %s (%s)\n", tr.CreatedAt, from, tr.To, tr.Event)
		}
	}
	if len(detail.Decisions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Reviews:")
		for _, d := range detail.Decisions {
			line := fmt.Sprintf("  %s  %s by %s", d.CreatedAt, d.Decision, d.ReviewerID)
			if d.ScheduleTime != "" {
				line += " for " + d.ScheduleTime
			}
			fmt.Fprintln(out, line)
		}
	}
}

func renderRows(item api.ContentItem) [][]string {
	names := make([]string, 0, len(item.Renders))
	for name := range item.Renders {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		render := item.Renders[name]
		valid := "-"
		if render.Validated {
			valid = yesNo(render.Valid)
			if !render.Valid && len(render.Violations) > 0 {
				valid += " (" + string(render.Violations[0].Category) + ")"
			}
		}
		published := "-"
		if res, ok := item.PublishResults[name]; ok {
			switch {
			case res.URL != "":
				published = res.URL
			case res.PostID != "":
				published = res.PostID
			case res.Error != "":
				published = "error: " + api.Truncate(res.Error, 30)
			}
		}
		rows = append(rows, []string{
			name,
			strconv.Itoa(render.Round),
			valid,
			published,
			api.Truncate(render.Text, 40),
		})
	}
	return rows
}

func hashtagList(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		out = append(out, "#"+tag)
	}
	return strings.Join(out, " ")
}
