package preflight

import (
	"context"
	"sort"
	"strings"

	"postflow/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data and log directories (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// LLM analyzer
	if cfg.Analyzer.Provider == config.AnalyzerLLM {
		results = append(results, CheckLLM(ctx, "Analyzer LLM", cfg.Analyzer))
	}

	// HTTP publisher endpoints
	if cfg.Publisher.Mode == config.PublisherHTTP {
		names := make([]string, 0, len(cfg.Publisher.Endpoints))
		for name := range cfg.Publisher.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			results = append(results, CheckEndpoint(ctx, "Publisher "+name, cfg.Publisher.Endpoints[name]))
		}
	}

	// Notification target
	if (cfg.Notifications.Errors || cfg.Notifications.Completed) && strings.TrimSpace(cfg.Notifications.URL) != "" {
		results = append(results, CheckEndpoint(ctx, "Notifications", cfg.Notifications.URL))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
