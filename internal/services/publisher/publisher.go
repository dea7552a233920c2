package publisher

import (
	"fmt"

	"postflow/internal/config"
	"postflow/internal/services"
	"postflow/internal/stage"
)

// Service publishes renders and collects their analytics.
type Service interface {
	stage.Publisher
	stage.AnalyticsCollector
}

// New selects the publisher named by the configuration.
func New(cfg config.Publisher) (Service, error) {
	switch cfg.Mode {
	case config.PublisherDryRun, "":
		return NewDryRun(), nil
	case config.PublisherHTTP:
		return NewHTTP(cfg), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "publishing", "select publisher",
			fmt.Sprintf("unknown mode %q", cfg.Mode), nil)
	}
}
