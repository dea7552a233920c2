package config

const (
	defaultConfigPath              = "~/.config/postflow/config.toml"
	defaultDataDir                 = "~/.local/share/postflow"
	defaultLogDir                  = "~/.local/share/postflow/logs"
	defaultAPIBind                 = "127.0.0.1:7488"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogRetentionDays        = 30
	defaultPollInterval            = 2
	defaultHeartbeatInterval       = 10
	defaultHeartbeatTimeout        = 60
	defaultRetryMaxAttempts        = 3
	defaultRetryBaseDelay          = 30
	defaultRetryMaxDelay           = 900
	defaultRetryJitter             = 0.2
	defaultSweepSpec               = "@every 15s"
	defaultValidationFailurePolicy = PolicyRerender
	defaultMaxRenderRounds         = 3
	defaultAnalyticsDelay          = 3600
	defaultCommitAttempts          = 5
	defaultModerationThreshold     = 0.8
	defaultAnalyzerProvider        = AnalyzerLexicon
	defaultAnalyzerBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultAnalyzerModel           = "openai/gpt-4o-mini"
	defaultAnalyzerTimeoutSeconds  = 30
	defaultAnalyzerMaxHashtags     = 5
	defaultPublisherMode           = PublisherDryRun
	defaultPublisherRequestsPerMin = 30
	defaultPublisherBurst          = 5
	defaultPublisherTimeoutSeconds = 30
	defaultNotificationsTimeout    = 10
)

// Validation failure policies.
const (
	PolicyRerender = "rerender"
	PolicyReview   = "review"
)

// Analyzer providers.
const (
	AnalyzerLexicon = "lexicon"
	AnalyzerLLM     = "llm"
)

// Publisher modes.
const (
	PublisherDryRun = "dry_run"
	PublisherHTTP   = "http"
)

var defaultPlatforms = []string{"twitter", "instagram"}

var defaultBlockedTerms = []string{
	"violence", "hate", "harassment", "self-harm", "explicit", "nsfw", "gore", "weapon", "drugs", "scam",
}

func defaultStagePools() Workers {
	return Workers{
		PollInterval:      defaultPollInterval,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
		Moderation:        StagePool{Count: 2, TimeoutSeconds: 30},
		Analysis:          StagePool{Count: 2, TimeoutSeconds: 60},
		Captioning:        StagePool{Count: 2, TimeoutSeconds: 60},
		Validation:        StagePool{Count: 4, TimeoutSeconds: 10},
		Publishing:        StagePool{Count: 2, TimeoutSeconds: 60},
		Analytics:         StagePool{Count: 1, TimeoutSeconds: 30},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Workers: defaultStagePools(),
		Retry: Retry{
			MaxAttempts:    defaultRetryMaxAttempts,
			BaseDelay:      defaultRetryBaseDelay,
			MaxDelay:       defaultRetryMaxDelay,
			JitterFraction: defaultRetryJitter,
		},
		Scheduler: Scheduler{
			SweepSpec: defaultSweepSpec,
		},
		Pipeline: Pipeline{
			DefaultPlatforms:        append([]string(nil), defaultPlatforms...),
			ValidationFailurePolicy: defaultValidationFailurePolicy,
			MaxRenderRounds:         defaultMaxRenderRounds,
			AnalyticsDelay:          defaultAnalyticsDelay,
			CommitAttempts:          defaultCommitAttempts,
		},
		Moderation: Moderation{
			Threshold:    defaultModerationThreshold,
			BlockedTerms: append([]string(nil), defaultBlockedTerms...),
		},
		Analyzer: Analyzer{
			Provider:       defaultAnalyzerProvider,
			BaseURL:        defaultAnalyzerBaseURL,
			Model:          defaultAnalyzerModel,
			TimeoutSeconds: defaultAnalyzerTimeoutSeconds,
			MaxHashtags:    defaultAnalyzerMaxHashtags,
		},
		Captioning: Captioning{
			IncludeSuggestedTags: true,
		},
		Publisher: Publisher{
			Mode:              defaultPublisherMode,
			RequestsPerMinute: defaultPublisherRequestsPerMin,
			Burst:             defaultPublisherBurst,
			TimeoutSeconds:    defaultPublisherTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationsTimeout,
			Completed:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
