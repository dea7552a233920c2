package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains the daemon HTTP listener settings.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// StagePool sizes the worker pool of one pipeline stage.
type StagePool struct {
	Count          int `toml:"count"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Timeout returns the per-job timeout as a duration.
func (p StagePool) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Workers contains worker pool sizing and liveness settings.
type Workers struct {
	PollInterval      int       `toml:"poll_interval"`
	HeartbeatInterval int       `toml:"heartbeat_interval"`
	HeartbeatTimeout  int       `toml:"heartbeat_timeout"`
	Moderation        StagePool `toml:"moderation"`
	Analysis          StagePool `toml:"analysis"`
	Captioning        StagePool `toml:"captioning"`
	Validation        StagePool `toml:"validation"`
	Publishing        StagePool `toml:"publishing"`
	Analytics         StagePool `toml:"analytics"`
}

// Pool returns the pool settings for a stage name.
func (w Workers) Pool(stage string) (StagePool, bool) {
	switch stage {
	case "moderation":
		return w.Moderation, true
	case "analysis":
		return w.Analysis, true
	case "captioning":
		return w.Captioning, true
	case "validation":
		return w.Validation, true
	case "publishing":
		return w.Publishing, true
	case "analytics":
		return w.Analytics, true
	default:
		return StagePool{}, false
	}
}

func (w *Workers) pools() map[string]*StagePool {
	return map[string]*StagePool{
		"moderation": &w.Moderation,
		"analysis":   &w.Analysis,
		"captioning": &w.Captioning,
		"validation": &w.Validation,
		"publishing": &w.Publishing,
		"analytics":  &w.Analytics,
	}
}

// Retry contains the stage job retry policy.
type Retry struct {
	MaxAttempts    int     `toml:"max_attempts"`
	BaseDelay      int     `toml:"base_delay"`
	MaxDelay       int     `toml:"max_delay"`
	JitterFraction float64 `toml:"jitter_fraction"`
}

// Scheduler contains the publish sweep cadence.
type Scheduler struct {
	SweepSpec string `toml:"sweep_spec"`
}

// Pipeline contains orchestration policy knobs.
type Pipeline struct {
	DefaultPlatforms        []string `toml:"default_platforms"`
	ValidationFailurePolicy string   `toml:"validation_failure_policy"`
	MaxRenderRounds         int      `toml:"max_render_rounds"`
	AnalyticsDelay          int      `toml:"analytics_delay"`
	CommitAttempts          int      `toml:"commit_attempts"`
}

// Moderation contains the keyword moderator settings.
type Moderation struct {
	Threshold    float64  `toml:"threshold"`
	BlockedTerms []string `toml:"blocked_terms"`
}

// Analyzer selects and configures the content analyzer.
type Analyzer struct {
	Provider       string `toml:"provider"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxHashtags    int    `toml:"max_hashtags"`
}

// Captioning contains the template captioner settings.
type Captioning struct {
	FitToPlatform        bool `toml:"fit_to_platform"`
	IncludeSuggestedTags bool `toml:"include_suggested_tags"`
}

// Publisher configures how renders reach the platforms.
type Publisher struct {
	Mode              string            `toml:"mode"`
	Endpoints         map[string]string `toml:"endpoints"`
	Token             string            `toml:"token"`
	RequestsPerMinute int               `toml:"requests_per_minute"`
	Burst             int               `toml:"burst"`
	TimeoutSeconds    int               `toml:"timeout_seconds"`
}

// Webhook contains the inbound automation endpoint settings.
type Webhook struct {
	Secret           string   `toml:"secret"`
	DefaultPlatforms []string `toml:"default_platforms"`
	CallbackURL      string   `toml:"callback_url"`
}

// Notifications contains the outbound notification settings.
type Notifications struct {
	URL            string `toml:"url"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Errors         bool   `toml:"errors"`
}

// PlatformOverride adjusts built-in platform limits.
type PlatformOverride struct {
	MaxTextLength int `toml:"max_text_length"`
	MaxHashtags   int `toml:"max_hashtags"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for postflow.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - API: daemon listener and bearer token
//   - Workers: per-stage pool sizes, timeouts, heartbeats
//   - Retry: transient failure backoff
//   - Scheduler: publish sweep cadence
//   - Pipeline: validation policy, render rounds, analytics delay
//   - Moderation, Analyzer, Captioning, Publisher: stage capabilities
//   - Webhook: n8n endpoint secret and defaults
//   - Notifications: outbound error/completed POSTs
//   - Platforms: per-platform limit overrides
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths                       `toml:"paths"`
	API           API                         `toml:"api"`
	Workers       Workers                     `toml:"workers"`
	Retry         Retry                       `toml:"retry"`
	Scheduler     Scheduler                   `toml:"scheduler"`
	Pipeline      Pipeline                    `toml:"pipeline"`
	Moderation    Moderation                  `toml:"moderation"`
	Analyzer      Analyzer                    `toml:"analyzer"`
	Captioning    Captioning                  `toml:"captioning"`
	Publisher     Publisher                   `toml:"publisher"`
	Webhook       Webhook                     `toml:"webhook"`
	Notifications Notifications               `toml:"notifications"`
	Platforms     map[string]PlatformOverride `toml:"platforms"`
	Logging       Logging                     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("postflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite state store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "postflow.db")
}

// LockPath returns the daemon single-instance lock location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "postflow.lock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "postflow.pid")
}

// DaemonLogPath returns the daemon's JSON log file location.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "postflow.log")
}

// APIBaseURL returns the base URL CLI clients use to reach the daemon.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.API.Bind)
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// TargetPlatforms returns the webhook default platforms, falling back to the
// pipeline defaults.
func (c *Config) TargetPlatforms() []string {
	if len(c.Webhook.DefaultPlatforms) > 0 {
		return append([]string(nil), c.Webhook.DefaultPlatforms...)
	}
	return append([]string(nil), c.Pipeline.DefaultPlatforms...)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
