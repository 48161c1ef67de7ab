package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Reaudit    ReauditConfig    `yaml:"reaudit" mapstructure:"reaudit"`
	DNS        DNSConfig        `yaml:"dns" mapstructure:"dns"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// AdminToken guards the credit grant endpoint. Empty disables it.
	AdminToken string `yaml:"admin_token" mapstructure:"admin_token"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCandidates int `yaml:"max_concurrent_candidates" mapstructure:"max_concurrent_candidates"`
	DLQMaxRetries           int `yaml:"dlq_max_retries" mapstructure:"dlq_max_retries"`
	DLQBackoffSecs          int `yaml:"dlq_backoff_secs" mapstructure:"dlq_backoff_secs"`
}

// PipelineConfig configures validation and charging.
type PipelineConfig struct {
	UnitCost            int64  `yaml:"unit_cost" mapstructure:"unit_cost"`
	DuplicateWindowDays int    `yaml:"duplicate_window_days" mapstructure:"duplicate_window_days"`
	DedupeByName        bool   `yaml:"dedupe_by_name" mapstructure:"dedupe_by_name"`
	PersistRejected     bool   `yaml:"persist_rejected" mapstructure:"persist_rejected"`
	RulesPath           string `yaml:"rules_path" mapstructure:"rules_path"`
	RetryAttempts       int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs      int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs   int    `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// DuplicateWindow returns the lookback as a duration.
func (p PipelineConfig) DuplicateWindow() time.Duration {
	return time.Duration(p.DuplicateWindowDays) * 24 * time.Hour
}

// ReauditConfig configures the re-auditor.
type ReauditConfig struct {
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// DNSConfig configures MX lookups.
type DNSConfig struct {
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	TimeoutMs        int     `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RedisConfig configures the blacklist cache and the re-audit lock. An
// empty Addr runs without Redis.
type RedisConfig struct {
	Addr            string `yaml:"addr" mapstructure:"addr"`
	Password        string `yaml:"password" mapstructure:"password"`
	DB              int    `yaml:"db" mapstructure:"db"`
	BlacklistTTLSec int    `yaml:"blacklist_ttl_secs" mapstructure:"blacklist_ttl_secs"`
	LockTTLSecs     int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// AnthropicConfig holds the LLM prospecting settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	Model         string `yaml:"model" mapstructure:"model"`
	FallbackModel string `yaml:"fallback_model" mapstructure:"fallback_model"`
	MaxTokens     int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds the Notion lead queue settings.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// MonitoringConfig configures the background alert checker. An empty
// WebhookURL disables it.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	RefundRateThreshold float64 `yaml:"refund_rate_threshold" mapstructure:"refund_rate_threshold"`
	DLQDepthThreshold   int     `yaml:"dlq_depth_threshold" mapstructure:"dlq_depth_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.admin_token", "")
	v.SetDefault("batch.max_concurrent_candidates", 10)
	v.SetDefault("batch.dlq_max_retries", 3)
	v.SetDefault("batch.dlq_backoff_secs", 60)
	v.SetDefault("pipeline.unit_cost", 1)
	v.SetDefault("pipeline.duplicate_window_days", 180)
	v.SetDefault("pipeline.dedupe_by_name", false)
	v.SetDefault("pipeline.persist_rejected", false)
	v.SetDefault("pipeline.rules_path", "")
	v.SetDefault("pipeline.retry_attempts", 2)
	v.SetDefault("pipeline.retry_backoff_ms", 50)
	v.SetDefault("pipeline.retry_max_backoff_ms", 1000)
	v.SetDefault("reaudit.page_size", 500)
	v.SetDefault("dns.enabled", true)
	v.SetDefault("dns.timeout_ms", 3000)
	v.SetDefault("dns.rate_per_sec", 20)
	v.SetDefault("dns.failure_threshold", 5)
	v.SetDefault("dns.reset_timeout_secs", 30)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.blacklist_ttl_secs", 86400)
	v.SetDefault("redis.lock_ttl_secs", 600)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.fallback_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.refund_rate_threshold", 0.2)
	v.SetDefault("monitoring.dlq_depth_threshold", 50)

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

// Validate checks the settings a command needs. mode is one of "store",
// "serve", "notion" or "prospect"; every mode also needs a usable store.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Pipeline.UnitCost <= 0 {
		problems = append(problems, "pipeline.unit_cost must be positive")
	}
	if c.Pipeline.DuplicateWindowDays <= 0 {
		problems = append(problems, "pipeline.duplicate_window_days must be positive")
	}
	if c.Batch.MaxConcurrentCandidates < 1 || c.Batch.MaxConcurrentCandidates > 100 {
		problems = append(problems, "batch.max_concurrent_candidates must be between 1 and 100")
	}

	switch mode {
	case "store":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Monitoring.RefundRateThreshold < 0 || c.Monitoring.RefundRateThreshold > 1 {
			problems = append(problems, "monitoring.refund_rate_threshold must be between 0 and 1")
		}
	case "notion":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.LeadDB == "" {
			problems = append(problems, "notion.lead_db is required")
		}
	case "prospect":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			problems = append(problems, "anthropic.model is required")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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
