package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Session.MaxConcurrent)
	assert.Equal(t, 30*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 2, cfg.Retry.Max)
	assert.Equal(t, float64(0), cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, uint32(10), cfg.Breaker.ConsecutiveFailures)
	assert.Equal(t, 60*time.Second, cfg.Challenge.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMatchesDefaultWithoutEnvironment(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"NETCTL_MAX_CONCURRENT":    "8",
		"NETCTL_TIMEOUT":           "5s",
		"NETCTL_RETRY_MAX":         "0",
		"NETCTL_RATE_LIMIT_RPS":    "2.5",
		"NETCTL_PIN_DIR":           "/etc/netctl/pins",
		"NETCTL_CHALLENGE_TIMEOUT": "3s",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Session.MaxConcurrent)
	assert.Equal(t, 5*time.Second, cfg.Session.Timeout)
	assert.Equal(t, 0, cfg.Retry.Max)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, "/etc/netctl/pins", cfg.TLS.PinDir)
	assert.Equal(t, 3*time.Second, cfg.Challenge.Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero workers", map[string]string{"NETCTL_MAX_CONCURRENT": "0"}},
		{"unparseable duration", map[string]string{"NETCTL_TIMEOUT": "soon"}},
		{"inverted retry waits", map[string]string{"NETCTL_RETRY_WAIT_MIN": "10s", "NETCTL_RETRY_WAIT_MAX": "1s"}},
		{"half a client cert", map[string]string{"NETCTL_CLIENT_CERT": "/tmp/cert.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load()
			assert.Error(t, err)

			assert.NotNil(t, LoadOrDefault())
		})
	}
}
