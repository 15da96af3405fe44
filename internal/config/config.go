package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration of the harness binaries.
// The values are read by viper from an optional config file, a .env file and environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Otel      OtelConfig      `mapstructure:"otel"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Outbound  OutboundConfig  `mapstructure:"outbound"`
	Collector CollectorConfig `mapstructure:"collector"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SentryConfig mirrors the subset of sentry.ClientOptions the harnesses expose.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	Debug            bool    `mapstructure:"debug"`
	SendDefaultPII   bool    `mapstructure:"send_default_pii"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
}

// OtelConfig configures the OTLP/HTTP span exporter. An empty endpoint keeps spans in-process.
type OtelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	ServiceName string `mapstructure:"service_name"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// OutboundConfig describes the slow remote endpoint Harness B calls.
type OutboundConfig struct {
	URL string `mapstructure:"url"`
}

type CollectorConfig struct {
	GRPCAddr          string        `mapstructure:"grpc_addr"`
	HTTPAddr          string        `mapstructure:"http_addr"`
	MinClientDuration time.Duration `mapstructure:"min_client_duration"`
	CacheMaxSpans     int64         `mapstructure:"cache_max_spans"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	DefaultOutboundURL = "https://httpbin.org/delay/1"
	dotEnvFile         = ".env"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// NewViper returns a viper instance with every key defaulted and bound to its
// environment variable (sentry.dsn -> SENTRY_DSN). A .env file in the working
// directory is loaded into the process environment first.
func NewViper() (*viper.Viper, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load %s: %w", dotEnvFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.debug", true)
	v.SetDefault("sentry.send_default_pii", true)
	v.SetDefault("sentry.traces_sample_rate", 1.0)
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.release", "")

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "sdk-repro")

	v.SetDefault("database.path", "db.sqlite3")

	v.SetDefault("outbound.url", DefaultOutboundURL)

	v.SetDefault("collector.grpc_addr", ":4317")
	v.SetDefault("collector.http_addr", ":4318")
	v.SetDefault("collector.min_client_duration", time.Millisecond)
	v.SetDefault("collector.cache_max_spans", 1<<20)

	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "json")
}

// Load reads the optional config file and unmarshals every setting into a Config.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("unable to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Sentry.TracesSampleRate < 0 || c.Sentry.TracesSampleRate > 1 {
		return fmt.Errorf("%w: sentry.traces_sample_rate must be within [0, 1], got %v",
			ErrInvalidConfig, c.Sentry.TracesSampleRate)
	}
	if c.Collector.MinClientDuration < 0 {
		return fmt.Errorf("%w: collector.min_client_duration must not be negative", ErrInvalidConfig)
	}
	return nil
}
