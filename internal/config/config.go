// Copyright (c) 2026 Loginless Contributors
//
// This file is part of loginless.
//
// loginless is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package config loads the loginless server configuration from a yaml
// file with LOGINLESS_ environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loginless/loginless/pkg/webauthn"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	WebAuthn webauthn.Config `yaml:"webauthn" mapstructure:"webauthn"`
	Session  SessionConfig   `yaml:"session" mapstructure:"session"`
	Storage  StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Logging  LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address" mapstructure:"address"`

	// ReadTimeout bounds reading a request including the body.
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// SessionConfig configures challenges and the remembered-identity token.
type SessionConfig struct {
	// Secret signs remembered-identity tokens (required).
	Secret string `yaml:"secret" mapstructure:"secret"`

	// ChallengeTTL bounds the life of a pending ceremony.
	ChallengeTTL time.Duration `yaml:"challenge_ttl" mapstructure:"challenge_ttl"`

	// RememberFor is the remembered-identity token and cookie lifetime.
	RememberFor time.Duration `yaml:"remember_for" mapstructure:"remember_for"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Path is the sqlite database path. Ignored for the memory driver.
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level" mapstructure:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads the configuration from the given file (optional) and the
// environment. Environment variables use the LOGINLESS_ prefix with
// underscores, e.g. LOGINLESS_SESSION_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	// Registered empty so the env override is visible to Unmarshal.
	v.SetDefault("session.secret", "")
	v.SetDefault("session.challenge_ttl", 2*time.Minute)
	v.SetDefault("session.remember_for", 30*24*time.Hour)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "loginless.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetEnvPrefix("LOGINLESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.WebAuthn.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns an error if the configuration is unusable.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required (session.secret / LOGINLESS_SESSION_SECRET)")
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid storage driver: %s", c.Storage.Driver)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}
	return c.WebAuthn.Validate()
}

// Logger builds the slog logger described by the logging section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
