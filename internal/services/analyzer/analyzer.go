package analyzer

import (
	"fmt"

	"postflow/internal/config"
	"postflow/internal/services"
	"postflow/internal/services/llm"
	"postflow/internal/stage"
)

// New selects the analyzer named by the configuration.
func New(cfg config.Analyzer) (stage.Analyzer, error) {
	switch cfg.Provider {
	case config.AnalyzerLexicon, "":
		return NewLexicon(cfg.MaxHashtags), nil
	case config.AnalyzerLLM:
		client := llm.NewClient(llm.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Title:          "postflow",
			TimeoutSeconds: cfg.TimeoutSeconds,
		})
		return NewLLM(client, cfg.MaxHashtags), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "select analyzer",
			fmt.Sprintf("unknown provider %q", cfg.Provider), nil)
	}
}
