package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeWorkers()
	c.normalizePipeline()
	c.normalizeCapabilities()
	c.normalizeWebhook()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("POSTFLOW_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeWorkers() {
	defaults := defaultStagePools()
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = defaults.PollInterval
	}
	fallback := defaults.pools()
	for name, pool := range c.Workers.pools() {
		if pool.TimeoutSeconds <= 0 {
			pool.TimeoutSeconds = fallback[name].TimeoutSeconds
		}
	}
}

func (c *Config) normalizePipeline() {
	c.Pipeline.DefaultPlatforms = normalizeNames(c.Pipeline.DefaultPlatforms)
	if len(c.Pipeline.DefaultPlatforms) == 0 {
		c.Pipeline.DefaultPlatforms = append([]string(nil), defaultPlatforms...)
	}
	c.Pipeline.ValidationFailurePolicy = strings.ToLower(strings.TrimSpace(c.Pipeline.ValidationFailurePolicy))
	if c.Pipeline.ValidationFailurePolicy == "" {
		c.Pipeline.ValidationFailurePolicy = defaultValidationFailurePolicy
	}
	if c.Pipeline.CommitAttempts <= 0 {
		c.Pipeline.CommitAttempts = defaultCommitAttempts
	}
	c.Scheduler.SweepSpec = strings.TrimSpace(c.Scheduler.SweepSpec)
	if c.Scheduler.SweepSpec == "" {
		c.Scheduler.SweepSpec = defaultSweepSpec
	}
	if len(c.Platforms) > 0 {
		normalized := make(map[string]PlatformOverride, len(c.Platforms))
		for name, override := range c.Platforms {
			normalized[strings.ToLower(strings.TrimSpace(name))] = override
		}
		c.Platforms = normalized
	}
}

func (c *Config) normalizeCapabilities() {
	terms := make([]string, 0, len(c.Moderation.BlockedTerms))
	for _, term := range c.Moderation.BlockedTerms {
		if trimmed := strings.ToLower(strings.TrimSpace(term)); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	c.Moderation.BlockedTerms = terms

	c.Analyzer.Provider = strings.ToLower(strings.TrimSpace(c.Analyzer.Provider))
	if c.Analyzer.Provider == "" {
		c.Analyzer.Provider = defaultAnalyzerProvider
	}
	c.Analyzer.APIKey = strings.TrimSpace(c.Analyzer.APIKey)
	if c.Analyzer.APIKey == "" {
		if value, ok := os.LookupEnv("POSTFLOW_ANALYZER_API_KEY"); ok {
			c.Analyzer.APIKey = strings.TrimSpace(value)
		}
	}
	c.Analyzer.BaseURL = strings.TrimSpace(c.Analyzer.BaseURL)
	if c.Analyzer.BaseURL == "" {
		c.Analyzer.BaseURL = defaultAnalyzerBaseURL
	}
	c.Analyzer.Model = strings.TrimSpace(c.Analyzer.Model)
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = defaultAnalyzerModel
	}

	c.Publisher.Mode = strings.ToLower(strings.TrimSpace(c.Publisher.Mode))
	if c.Publisher.Mode == "" {
		c.Publisher.Mode = defaultPublisherMode
	}
	c.Publisher.Token = strings.TrimSpace(c.Publisher.Token)
	if c.Publisher.Token == "" {
		if value, ok := os.LookupEnv("POSTFLOW_PUBLISHER_TOKEN"); ok {
			c.Publisher.Token = strings.TrimSpace(value)
		}
	}
	if len(c.Publisher.Endpoints) > 0 {
		endpoints := make(map[string]string, len(c.Publisher.Endpoints))
		for name, url := range c.Publisher.Endpoints {
			endpoints[strings.ToLower(strings.TrimSpace(name))] = strings.TrimRight(strings.TrimSpace(url), "/")
		}
		c.Publisher.Endpoints = endpoints
	}
	c.Notifications.URL = strings.TrimSpace(c.Notifications.URL)
}

func (c *Config) normalizeWebhook() {
	c.Webhook.Secret = strings.TrimSpace(c.Webhook.Secret)
	if c.Webhook.Secret == "" {
		if value, ok := os.LookupEnv("POSTFLOW_WEBHOOK_SECRET"); ok {
			c.Webhook.Secret = strings.TrimSpace(value)
		}
	}
	c.Webhook.DefaultPlatforms = normalizeNames(c.Webhook.DefaultPlatforms)
	c.Webhook.CallbackURL = strings.TrimSpace(c.Webhook.CallbackURL)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeNames(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		name := strings.ToLower(strings.TrimSpace(value))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
