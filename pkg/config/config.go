// Package config provides YAML-based configuration loading for nmpoll.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the client/application
	AppName string `mapstructure:"app_name"`

	// SourceID labels outcomes produced by this client; a random uuid is
	// generated when empty.
	SourceID string `mapstructure:"source_id"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Client holds request/transport options
	Client ClientConfig `mapstructure:"client"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ClientConfig defines how requests are issued.
type ClientConfig struct {
	// Transport: udp, quic, or mem
	Transport string `mapstructure:"transport"`
	// Target address to dial
	Target string `mapstructure:"target"`
	// Timeout per attempt before retransmit/timeout
	Timeout time.Duration `mapstructure:"timeout"`
	// Retries before a request resolves as timed out
	Retries int `mapstructure:"retries"`
	// ContentType of encoded requests: application/json,
	// application/cbor, or application/x-protobuf
	ContentType string `mapstructure:"content_type"`
	// Metrics enables the prometheus outcome factory
	Metrics bool `mapstructure:"metrics"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "nmpoll",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/nmpoll.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Client: ClientConfig{
			Transport:   "udp",
			Target:      "127.0.0.1:7161",
			Timeout:     5 * time.Second,
			Retries:     1,
			ContentType: "application/cbor",
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix NMPOLL and `.`/`-` are replaced with `_`.
// Example: NMPOLL_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NMPOLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("source_id", cfg.SourceID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("client.transport", cfg.Client.Transport)
	v.SetDefault("client.target", cfg.Client.Target)
	v.SetDefault("client.timeout", cfg.Client.Timeout)
	v.SetDefault("client.retries", cfg.Client.Retries)
	v.SetDefault("client.content_type", cfg.Client.ContentType)
	v.SetDefault("client.metrics", cfg.Client.Metrics)

	if path == "" {
		if envPath := os.Getenv("NMPOLL_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("nmpoll")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".nmpoll"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	c.Client.Transport = strings.ToLower(strings.TrimSpace(c.Client.Transport))
	switch c.Client.Transport {
	case "udp", "quic", "mem":
		// ok
	default:
		return fmt.Errorf("invalid client.transport: %q", c.Client.Transport)
	}
	if c.Client.Timeout <= 0 {
		c.Client.Timeout = 5 * time.Second
	}
	if c.Client.Retries < 0 {
		c.Client.Retries = 0
	}
	switch c.Client.ContentType {
	case "application/json", "application/cbor", "application/x-protobuf":
		// ok
	case "":
		c.Client.ContentType = "application/cbor"
	default:
		return fmt.Errorf("invalid client.content_type: %q", c.Client.ContentType)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
