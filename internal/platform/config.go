package platform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultPath is where the store lives when nothing else is configured.
const DefaultPath = "~/.notely"

// Config is the file and environment configuration of the CLI.
type Config struct {
	Path        string        `mapstructure:"path"`
	Adapter     string        `mapstructure:"adapter"`
	LogLevel    string        `mapstructure:"log_level"`
	EventBuffer int           `mapstructure:"event_buffer"`
	Optimistic  bool          `mapstructure:"optimistic"`
	Retries     int           `mapstructure:"retries"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	DevSafety   bool          `mapstructure:"dev_safety"`
}

// LoadConfig reads .notely.yaml from the config path override
// (NOTELY_CONFIG_PATH), the working directory or the home directory, then
// applies NOTELY_* environment variables. A missing file is not an error.
func LoadConfig(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("path", DefaultPath)
	v.SetDefault("adapter", "fs")
	v.SetDefault("log_level", "info")
	v.SetDefault("event_buffer", 0)
	v.SetDefault("optimistic", false)
	v.SetDefault("retries", 0)
	v.SetDefault("lock_timeout", 0)
	v.SetDefault("dev_safety", true)

	v.SetConfigName(".notely") // .yaml is implicit
	v.SetEnvPrefix("NOTELY")
	v.AutomaticEnv()

	if override := os.Getenv("NOTELY_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Options converts the configuration into host options.
func (c Config) Options() []Option {
	opts := []Option{WithAdapter(c.Adapter), WithDevSafety(c.DevSafety)}
	if c.EventBuffer > 0 {
		opts = append(opts, WithEventBuffer(c.EventBuffer))
	}
	if c.Optimistic {
		opts = append(opts, WithOptimisticConcurrency(c.Retries))
	}
	if c.LockTimeout > 0 {
		opts = append(opts, WithLockTimeout(c.LockTimeout))
	}
	return opts
}
