// Package config loads the service configuration from defaults, an optional
// YAML file and AUTHGUARD_* environment variables, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lowc1012/authguard/internal/guard"
	"github.com/spf13/viper"
)

const envPrefix = "AUTHGUARD"

var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Session  SessionConfig  `mapstructure:"session"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Flags    FlagsConfig    `mapstructure:"flags"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GuardConfig mirrors guard.Config.
type GuardConfig struct {
	Window       time.Duration `mapstructure:"window"`
	GracePeriod  time.Duration `mapstructure:"grace_period"`
	StartupLimit int           `mapstructure:"startup_limit"`
	Limit        int           `mapstructure:"limit"`
}

// SessionConfig controls how sessions are identified and expired.
type SessionConfig struct {
	Headers         []string      `mapstructure:"headers"`
	Cookie          string        `mapstructure:"cookie"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// UpstreamConfig points at the auth-session endpoint the guard fronts.
type UpstreamConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the flag store. An empty Addr selects the
// in-memory store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// FlagsConfig controls persisted flags.
type FlagsConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// GuardThresholds converts the guard section.
func (c *Config) GuardThresholds() guard.Config {
	return guard.Config{
		Window:       c.Guard.Window,
		GracePeriod:  c.Guard.GracePeriod,
		StartupLimit: c.Guard.StartupLimit,
		Limit:        c.Guard.Limit,
	}
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	g := guard.DefaultConfig()

	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("guard.window", g.Window)
	v.SetDefault("guard.grace_period", g.GracePeriod)
	v.SetDefault("guard.startup_limit", g.StartupLimit)
	v.SetDefault("guard.limit", g.Limit)

	v.SetDefault("session.headers", []string{"X-Session-ID"})
	v.SetDefault("session.cookie", "authguard_session")
	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", time.Minute)

	v.SetDefault("upstream.url", "")
	v.SetDefault("upstream.timeout", 10*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("flags.ttl", 24*time.Hour)
	v.SetDefault("flags.key_prefix", "authguard:flags:")
	v.SetDefault("flags.write_timeout", time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

// Load reads configuration. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot check by type alone.
func (c *Config) Validate() error {
	switch {
	case c.Guard.Window <= 0:
		return fmt.Errorf("%w: guard.window must be positive", ErrInvalid)
	case c.Guard.GracePeriod < 0:
		return fmt.Errorf("%w: guard.grace_period must not be negative", ErrInvalid)
	case c.Guard.Limit < 0 || c.Guard.StartupLimit < 0:
		return fmt.Errorf("%w: guard limits must not be negative", ErrInvalid)
	case c.Guard.GracePeriod > 0 && c.Guard.StartupLimit < c.Guard.Limit:
		return fmt.Errorf("%w: guard.startup_limit must be at least guard.limit", ErrInvalid)
	case len(c.Session.Headers) == 0 && c.Session.Cookie == "":
		return fmt.Errorf("%w: session needs a header or a cookie", ErrInvalid)
	}
	return nil
}
