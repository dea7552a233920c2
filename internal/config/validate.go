package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
)

var knownPlatforms = map[string]struct{}{
	"twitter": {}, "instagram": {}, "tiktok": {}, "facebook": {}, "linkedin": {},
}

// SweepParser is the cron parser used for scheduler.sweep_spec.
var SweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateCapabilities(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateWorkers() error {
	if c.Workers.HeartbeatInterval <= 0 {
		return errors.New("workers.heartbeat_interval must be positive")
	}
	if c.Workers.HeartbeatTimeout <= c.Workers.HeartbeatInterval {
		return errors.New("workers.heartbeat_timeout must be greater than workers.heartbeat_interval")
	}
	names := make([]string, 0, 6)
	pools := c.Workers.pools()
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pool := pools[name]
		if pool.Count <= 0 {
			return fmt.Errorf("workers.%s.count must be positive", name)
		}
		if pool.TimeoutSeconds <= 0 {
			return fmt.Errorf("workers.%s.timeout_seconds must be positive", name)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if err := ensurePositiveMap(map[string]int{
		"retry.max_attempts": c.Retry.MaxAttempts,
		"retry.base_delay":   c.Retry.BaseDelay,
		"retry.max_delay":    c.Retry.MaxDelay,
	}); err != nil {
		return err
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.New("retry.max_delay must be at least retry.base_delay")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return errors.New("retry.jitter_fraction must be in [0, 1)")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if _, err := SweepParser.Parse(c.Scheduler.SweepSpec); err != nil {
		return fmt.Errorf("scheduler.sweep_spec: %w", err)
	}
	switch c.Pipeline.ValidationFailurePolicy {
	case PolicyRerender, PolicyReview:
	default:
		return fmt.Errorf("pipeline.validation_failure_policy: unsupported value %q (want %q or %q)",
			c.Pipeline.ValidationFailurePolicy, PolicyRerender, PolicyReview)
	}
	if c.Pipeline.MaxRenderRounds <= 0 {
		return errors.New("pipeline.max_render_rounds must be positive")
	}
	if c.Pipeline.AnalyticsDelay < 0 {
		return errors.New("pipeline.analytics_delay must not be negative")
	}
	if err := validatePlatformNames("pipeline.default_platforms", c.Pipeline.DefaultPlatforms); err != nil {
		return err
	}
	if err := validatePlatformNames("webhook.default_platforms", c.Webhook.DefaultPlatforms); err != nil {
		return err
	}
	for name, override := range c.Platforms {
		if _, ok := knownPlatforms[name]; !ok {
			return fmt.Errorf("platforms.%s: unknown platform", name)
		}
		if override.MaxTextLength < 0 || override.MaxHashtags < 0 {
			return fmt.Errorf("platforms.%s: limits must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateCapabilities() error {
	if c.Moderation.Threshold <= 0 || c.Moderation.Threshold > 1 {
		return errors.New("moderation.threshold must be in (0, 1]")
	}
	switch c.Analyzer.Provider {
	case AnalyzerLexicon:
	case AnalyzerLLM:
		if c.Analyzer.APIKey == "" {
			return errors.New("analyzer.api_key is required when analyzer.provider is \"llm\" (or set POSTFLOW_ANALYZER_API_KEY)")
		}
		if c.Analyzer.TimeoutSeconds <= 0 {
			return errors.New("analyzer.timeout_seconds must be positive")
		}
	default:
		return fmt.Errorf("analyzer.provider: unsupported value %q", c.Analyzer.Provider)
	}
	if c.Analyzer.MaxHashtags < 0 {
		return errors.New("analyzer.max_hashtags must not be negative")
	}
	switch c.Publisher.Mode {
	case PublisherDryRun:
	case PublisherHTTP:
		if len(c.Publisher.Endpoints) == 0 {
			return errors.New("publisher.endpoints must list at least one platform when publisher.mode is \"http\"")
		}
		for name, endpoint := range c.Publisher.Endpoints {
			if _, ok := knownPlatforms[name]; !ok {
				return fmt.Errorf("publisher.endpoints.%s: unknown platform", name)
			}
			if err := validateURL("publisher.endpoints."+name, endpoint); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("publisher.mode: unsupported value %q", c.Publisher.Mode)
	}
	return ensurePositiveMap(map[string]int{
		"publisher.requests_per_minute": c.Publisher.RequestsPerMinute,
		"publisher.burst":               c.Publisher.Burst,
		"publisher.timeout_seconds":     c.Publisher.TimeoutSeconds,
	})
}

func (c *Config) validateEndpoints() error {
	if c.Notifications.URL != "" {
		if err := validateURL("notifications.url", c.Notifications.URL); err != nil {
			return err
		}
	}
	if c.Webhook.CallbackURL != "" {
		if err := validateURL("webhook.callback_url", c.Webhook.CallbackURL); err != nil {
			return err
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validatePlatformNames(field string, names []string) error {
	for _, name := range names {
		if _, ok := knownPlatforms[name]; !ok {
			return fmt.Errorf("%s: unknown platform %q", field, name)
		}
	}
	return nil
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https", field)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("%s: host is required", field)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
