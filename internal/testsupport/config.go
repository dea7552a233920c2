package testsupport

import (
	"path/filepath"
	"testing"

	"postflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Publisher.Mode = config.PublisherDryRun
	cfgVal.Analyzer.Provider = config.AnalyzerLexicon
	cfgVal.Notifications.URL = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithValidationPolicy sets the validation failure policy.
func WithValidationPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.ValidationFailurePolicy = policy
	}
}

// WithAPIToken protects the test API with a bearer token.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithWebhookSecret enables webhook signature verification.
func WithWebhookSecret(secret string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Webhook.Secret = secret
	}
}

// WithRetry overrides the retry policy settings.
func WithRetry(maxAttempts, baseDelaySeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = maxAttempts
		b.cfg.Retry.BaseDelay = baseDelaySeconds
		b.cfg.Retry.JitterFraction = 0
	}
}
