package config

import (
	"fmt"
	"strings"

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
	Lineage    LineageConfig    `yaml:"lineage" mapstructure:"lineage"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
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

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LineageConfig configures lineage tracking.
type LineageConfig struct {
	// Tables is the allow-list of application tables. Empty accepts any
	// well-formed table name.
	Tables            []string `yaml:"tables" mapstructure:"tables"`
	ImpactConcurrency int      `yaml:"impact_concurrency" mapstructure:"impact_concurrency"`
}

// QualityConfig configures confidence thresholds and bands.
type QualityConfig struct {
	HighThreshold float64      `yaml:"high_threshold" mapstructure:"high_threshold"`
	LowThreshold  float64      `yaml:"low_threshold" mapstructure:"low_threshold"`
	Bands         []BandConfig `yaml:"bands" mapstructure:"bands"`
	// BandsFile points at a YAML band policy that replaces Bands.
	BandsFile string `yaml:"bands_file" mapstructure:"bands_file"`
}

// BandConfig is one configured confidence band.
type BandConfig struct {
	Label string  `yaml:"label" mapstructure:"label"`
	Min   float64 `yaml:"min" mapstructure:"min"`
}

// MonitoringConfig configures the scheduled integrity and quality checks.
type MonitoringConfig struct {
	Enabled                     bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs           int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours         int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	WebhookURL                  string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	LowConfidenceShareThreshold float64 `yaml:"low_confidence_share_threshold" mapstructure:"low_confidence_share_threshold"`
	MinEntries                  int64   `yaml:"min_entries" mapstructure:"min_entries"`
	UnusedSourceThreshold       int     `yaml:"unused_source_threshold" mapstructure:"unused_source_threshold"`
	FailedSourceThreshold       int     `yaml:"failed_source_threshold" mapstructure:"failed_source_threshold"`
	BreakerThreshold            int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs         int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ImportConfig configures the bulk JSONL importer.
type ImportConfig struct {
	Concurrency           int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchSize             int     `yaml:"batch_size" mapstructure:"batch_size"`
	RatePerSec            float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RetryAttempts         int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryInitialBackoffMs int     `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LINEAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lineage.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("lineage.impact_concurrency", 4)
	v.SetDefault("quality.high_threshold", 0.8)
	v.SetDefault("quality.low_threshold", 0.5)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.low_confidence_share_threshold", 0.25)
	v.SetDefault("monitoring.min_entries", 20)
	v.SetDefault("monitoring.unused_source_threshold", 1)
	v.SetDefault("monitoring.failed_source_threshold", 1)
	v.SetDefault("monitoring.breaker_threshold", 3)
	v.SetDefault("monitoring.breaker_cooldown_secs", 300)
	v.SetDefault("import.concurrency", 4)
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("import.rate_per_sec", 0)
	v.SetDefault("import.retry_attempts", 5)
	v.SetDefault("import.retry_initial_backoff_ms", 50)
	v.SetDefault("import.retry_max_backoff_ms", 2000)

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

// Validate checks the settings a command mode depends on. Modes: "cli"
// (store access), "import" and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Quality.LowThreshold < 0 || c.Quality.HighThreshold > 1 || c.Quality.LowThreshold > c.Quality.HighThreshold {
		errs = append(errs, "quality thresholds must satisfy 0 <= low_threshold <= high_threshold <= 1")
	}

	switch mode {
	case "cli":
	case "import":
		if c.Import.Concurrency < 1 || c.Import.Concurrency > 64 {
			errs = append(errs, "import.concurrency must be between 1 and 64")
		}
		if c.Import.BatchSize < 1 {
			errs = append(errs, "import.batch_size must be > 0")
		}
		if c.Import.RatePerSec < 0 {
			errs = append(errs, "import.rate_per_sec must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Monitoring.Enabled && c.Monitoring.CheckIntervalSecs <= 0 {
			errs = append(errs, "monitoring.check_interval_secs must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
