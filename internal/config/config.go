// Package config loads service configuration from config.yaml and MOBI_*
// environment variables, and initialises the global logger.
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
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Session  SessionConfig  `yaml:"session" mapstructure:"session"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
	Bus      BusConfig      `yaml:"bus" mapstructure:"bus"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

// StoreConfig selects the database. Driver is "sqlite", "postgres" or
// "memory".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SessionConfig bounds session lifetime.
type SessionConfig struct {
	MaxAge          time.Duration `yaml:"max_age" mapstructure:"max_age"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// AnalysisConfig configures the AI analysis client. An empty BaseURL uses
// the local catalog orchestrator.
type AnalysisConfig struct {
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// BusConfig sizes the event bus.
type BusConfig struct {
	Buffer int `yaml:"buffer" mapstructure:"buffer"`
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
	v.SetEnvPrefix("MOBI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.shutdown_grace", "10s")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "file:mobi.db?_pragma=foreign_keys(1)")
	v.SetDefault("session.max_age", "24h")
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("session.cleanup_interval", "1m")
	v.SetDefault("analysis.base_url", "")
	v.SetDefault("analysis.timeout", "30s")
	v.SetDefault("analysis.max_retries", 2)
	v.SetDefault("analysis.rate_per_sec", 5)
	v.SetDefault("bus.buffer", 256)
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot constrain.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "sqlite3", "postgres", "pgx", "memory":
	default:
		return eris.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Analysis.MaxRetries < 0 {
		return eris.New("config: analysis.max_retries must not be negative")
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
