package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	ubtrippin "github.com/fistfulayen/ubtrippin-sub001"
)

// Config is the process configuration. Every key can be set from the
// environment with the UBTRIPPIN_ prefix, dots replaced by underscores.
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Vault  VaultConfig  `mapstructure:"vault"`
	HTTP   HTTPConfig   `mapstructure:"http"`
	Log    LogConfig    `mapstructure:"log"`
	Worker WorkerConfig `mapstructure:"worker"`
}

type StoreConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type VaultConfig struct {
	MasterKey string `mapstructure:"master_key"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// Runner starts the delivery loop inside serve.
	Runner bool `mapstructure:"runner"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WorkerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	PerTenantLimit int           `mapstructure:"per_tenant_limit"`
	Concurrency    int           `mapstructure:"concurrency"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxPause       time.Duration `mapstructure:"max_pause"`
	Retention      time.Duration `mapstructure:"retention"`
}

func setDefaults(v *viper.Viper) {
	d := ubtrippin.DefaultConfig()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("vault.master_key", "")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.runner", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("worker.poll_interval", d.PollInterval)
	v.SetDefault("worker.batch_size", d.BatchSize)
	v.SetDefault("worker.per_tenant_limit", d.PerTenantLimit)
	v.SetDefault("worker.concurrency", d.Concurrency)
	v.SetDefault("worker.request_timeout", d.RequestTimeout)
	v.SetDefault("worker.max_pause", d.MaxPause)
	v.SetDefault("worker.retention", d.Retention)
}

// loadConfig reads defaults, then the optional file, then the environment.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("UBTRIPPIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &cfg, nil
}

// hookOptions translates the worker section into library options.
func (c *Config) hookOptions() []ubtrippin.Option {
	w := c.Worker
	return []ubtrippin.Option{
		ubtrippin.WithPollInterval(w.PollInterval),
		ubtrippin.WithBatchSize(w.BatchSize),
		ubtrippin.WithPerTenantLimit(w.PerTenantLimit),
		ubtrippin.WithConcurrency(w.Concurrency),
		ubtrippin.WithRequestTimeout(w.RequestTimeout),
		ubtrippin.WithMaxPause(w.MaxPause),
		ubtrippin.WithRetention(w.Retention),
	}
}

// newLogger builds the process logger from the log section.
func newLogger(c LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: must be json or text", c.Format)
	}
}
