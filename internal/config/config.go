package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Profile   ProfileConfig   `yaml:"profile" mapstructure:"profile"`
	Filter    FilterConfig    `yaml:"filter" mapstructure:"filter"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Gateway   GatewayConfig   `yaml:"gateway" mapstructure:"gateway"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Submit    SubmitConfig    `yaml:"submit" mapstructure:"submit"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ProfileConfig locates the candidate profile and document workspace.
type ProfileConfig struct {
	Path         string `yaml:"path" mapstructure:"path"`
	ArtifactsDir string `yaml:"artifacts_dir" mapstructure:"artifacts_dir"`
	OutboxDir    string `yaml:"outbox_dir" mapstructure:"outbox_dir"`
}

// FilterConfig locates the preference rules file.
type FilterConfig struct {
	RulesPath string `yaml:"rules_path" mapstructure:"rules_path"`
}

// BoardConfig describes one job board endpoint.
type BoardConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// SourcesConfig lists listing providers and the default search.
type SourcesConfig struct {
	Boards   []BoardConfig `yaml:"boards" mapstructure:"boards"`
	Files    []string      `yaml:"files" mapstructure:"files"`
	Keywords []string      `yaml:"keywords" mapstructure:"keywords"`
	Location string        `yaml:"location" mapstructure:"location"`
	Limit    int           `yaml:"limit" mapstructure:"limit"`
}

// GatewayConfig tunes the upstream call gateway.
type GatewayConfig struct {
	WaitBudgetSecs   int     `yaml:"wait_budget_secs" mapstructure:"wait_budget_secs"`
	CallTimeoutSecs  int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	DefaultRate      float64 `yaml:"default_rate" mapstructure:"default_rate"`
	DefaultBurst     int     `yaml:"default_burst" mapstructure:"default_burst"`
	BreakerFailures  int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds Notion API credentials and the tracker database.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	TrackerDB string `yaml:"tracker_db" mapstructure:"tracker_db"`
}

// SubmitConfig configures the application delivery channel.
type SubmitConfig struct {
	Channel  string `yaml:"channel" mapstructure:"channel"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string `yaml:"api_key" mapstructure:"api_key"`
}

// EngineConfig tunes the lifecycle engine, including the backoff curve
// written into retry_at on transient failures.
type EngineConfig struct {
	Workers       int     `yaml:"workers" mapstructure:"workers"`
	BatchSize     int     `yaml:"batch_size" mapstructure:"batch_size"`
	RetryBudget   int     `yaml:"retry_budget" mapstructure:"retry_budget"`
	DailyLimit    int     `yaml:"daily_limit" mapstructure:"daily_limit"`
	IntervalSecs  int     `yaml:"interval_secs" mapstructure:"interval_secs"`
	FollowUpDays  int     `yaml:"follow_up_days" mapstructure:"follow_up_days"`
	NudgeDays     int     `yaml:"nudge_days" mapstructure:"nudge_days"`
	BackoffBaseMs int     `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffMaxMs  int     `yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	BackoffJitter float64 `yaml:"backoff_jitter" mapstructure:"backoff_jitter"`
}

// SchedulerConfig tunes the follow-up loop.
type SchedulerConfig struct {
	ScanIntervalSecs int `yaml:"scan_interval_secs" mapstructure:"scan_interval_secs"`
	LookaheadSecs    int `yaml:"lookahead_secs" mapstructure:"lookahead_secs"`
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("APPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "apply.db")
	v.SetDefault("profile.path", "profile.yaml")
	v.SetDefault("profile.artifacts_dir", "artifacts")
	v.SetDefault("profile.outbox_dir", "outbox")
	v.SetDefault("filter.rules_path", "rules.yaml")
	v.SetDefault("sources.limit", 100)
	v.SetDefault("gateway.wait_budget_secs", 30)
	v.SetDefault("gateway.call_timeout_secs", 60)
	v.SetDefault("gateway.default_rate", 2)
	v.SetDefault("gateway.default_burst", 4)
	v.SetDefault("gateway.breaker_failures", 5)
	v.SetDefault("gateway.breaker_reset_secs", 30)
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("submit.channel", "recorder")
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.batch_size", 50)
	v.SetDefault("engine.retry_budget", 3)
	v.SetDefault("engine.daily_limit", 10)
	v.SetDefault("engine.interval_secs", 300)
	v.SetDefault("engine.follow_up_days", 7)
	v.SetDefault("engine.nudge_days", 3)
	v.SetDefault("engine.backoff_base_ms", 30000)
	v.SetDefault("engine.backoff_max_ms", 900000)
	v.SetDefault("engine.backoff_factor", 2.0)
	v.SetDefault("engine.backoff_jitter", 0.25)
	v.SetDefault("scheduler.scan_interval_secs", 60)
	v.SetDefault("scheduler.lookahead_secs", 300)
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
