package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all engine configuration.
type Config struct {
	Session   SessionConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Breaker   BreakerConfig
	TLS       TLSConfig
	Challenge ChallengeConfig
	Logging   LogConfig
}

// SessionConfig holds shared-session settings.
type SessionConfig struct {
	MaxConcurrent int           `envconfig:"NETCTL_MAX_CONCURRENT" default:"5"`
	Timeout       time.Duration `envconfig:"NETCTL_TIMEOUT" default:"30s"`
	UserAgent     string        `envconfig:"NETCTL_USER_AGENT" default:"netctl/1.0"`
}

// RetryConfig holds socket-level retry settings.
type RetryConfig struct {
	Max     int           `envconfig:"NETCTL_RETRY_MAX" default:"2"`
	WaitMin time.Duration `envconfig:"NETCTL_RETRY_WAIT_MIN" default:"250ms"`
	WaitMax time.Duration `envconfig:"NETCTL_RETRY_WAIT_MAX" default:"5s"`
}

// RateLimitConfig holds outbound rate limiting. Zero RPS means unlimited.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"NETCTL_RATE_LIMIT_RPS" default:"0"`
	Burst             int     `envconfig:"NETCTL_RATE_LIMIT_BURST" default:"10"`
}

// BreakerConfig holds per-host circuit breaker settings.
type BreakerConfig struct {
	ConsecutiveFailures uint32        `envconfig:"NETCTL_BREAKER_FAILURES" default:"10"`
	Timeout             time.Duration `envconfig:"NETCTL_BREAKER_TIMEOUT" default:"30s"`
}

// TLSConfig holds pinning and certificate file locations.
type TLSConfig struct {
	PinDir         string `envconfig:"NETCTL_PIN_DIR"`
	PinManifest    string `envconfig:"NETCTL_PIN_MANIFEST"`
	CAFile         string `envconfig:"NETCTL_CA_FILE"`
	ClientCertFile string `envconfig:"NETCTL_CLIENT_CERT"`
	ClientKeyFile  string `envconfig:"NETCTL_CLIENT_KEY"`
}

// ChallengeConfig bounds how long a challenge may wait for the caller.
type ChallengeConfig struct {
	Timeout time.Duration `envconfig:"NETCTL_CHALLENGE_TIMEOUT" default:"60s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxConcurrent: 5,
			Timeout:       30 * time.Second,
			UserAgent:     "netctl/1.0",
		},
		Retry: RetryConfig{
			Max:     2,
			WaitMin: 250 * time.Millisecond,
			WaitMax: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             10,
		},
		Breaker: BreakerConfig{
			ConsecutiveFailures: 10,
			Timeout:             30 * time.Second,
		},
		Challenge: ChallengeConfig{
			Timeout: 60 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Session.MaxConcurrent < 1 {
		return fmt.Errorf("NETCTL_MAX_CONCURRENT must be at least 1, got %d", c.Session.MaxConcurrent)
	}
	if c.Retry.Max < 0 {
		return fmt.Errorf("NETCTL_RETRY_MAX cannot be negative")
	}
	if c.Retry.WaitMin > c.Retry.WaitMax {
		return fmt.Errorf("NETCTL_RETRY_WAIT_MIN cannot exceed NETCTL_RETRY_WAIT_MAX")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("NETCTL_RATE_LIMIT_RPS cannot be negative")
	}
	if (c.TLS.ClientCertFile == "") != (c.TLS.ClientKeyFile == "") {
		return fmt.Errorf("NETCTL_CLIENT_CERT and NETCTL_CLIENT_KEY must be set together")
	}
	return nil
}
