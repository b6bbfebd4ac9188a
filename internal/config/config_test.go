package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerPort: 3000,
		AppBaseURL: "http://localhost:3000",
		Upstream: UpstreamConfig{
			BaseURL:   "https://api.sentinel.ai/v1",
			Timeout:   15 * time.Second,
			RateLimit: 20,
			Burst:     40,
		},
		Session: SessionConfig{
			Secret:       "a-secret-that-is-long-enough",
			CheckTimeout: 2 * time.Second,
		},
		Polling: PollingConfig{
			Enable:            true,
			DashboardInterval: 60 * time.Second,
			ThreatsInterval:   10 * time.Second,
			NetworkInterval:   5 * time.Second,
			IncidentsInterval: 15 * time.Second,
		},
		Chat: ChatConfig{MaxPromptTokens: 2048},
		Log:  LogConfig{Level: "info", Format: "console"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SENTINEL_API_URL", "SERVER_PORT", "APP_BASE_URL", "DASHBOARD_API_KEY",
		"SESSION_CHECK_TIMEOUT", "POLL_NETWORK_INTERVAL", "KAFKA_TOPIC", "BACKEND_URL",
		"ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, "https://api.sentinel.ai/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, "http://localhost:3000", cfg.AppBaseURL)
	assert.Equal(t, 2*time.Second, cfg.Session.CheckTimeout)
	assert.Equal(t, 60*time.Second, cfg.Polling.DashboardInterval)
	assert.Equal(t, 10*time.Second, cfg.Polling.ThreatsInterval)
	assert.Equal(t, 5*time.Second, cfg.Polling.NetworkInterval)
	assert.Equal(t, 15*time.Second, cfg.Polling.IncidentsInterval)
	assert.Equal(t, "sentinel-events", cfg.Kafka.Topic)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.False(t, cfg.Backend.Enabled())
	assert.Contains(t, cfg.InsecureDefaults(), "DASHBOARD_API_KEY")
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SENTINEL_API_URL", "https://upstream.example.com/v2/")
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("DASHBOARD_API_KEY", "real-key")
	t.Setenv("POLL_NETWORK_INTERVAL", "30")
	t.Setenv("SESSION_CHECK_TIMEOUT", "500ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("UPSTREAM_RATE_LIMIT", "2.5")

	cfg := Load()

	assert.Equal(t, "https://upstream.example.com/v2", cfg.Upstream.BaseURL)
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.Equal(t, "real-key", cfg.Upstream.Keys.Dashboard)
	assert.NotContains(t, cfg.InsecureDefaults(), "DASHBOARD_API_KEY")
	assert.Equal(t, 30*time.Second, cfg.Polling.NetworkInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.CheckTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 2.5, cfg.Upstream.RateLimit)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.True(t, getEnvBool("TEST_BOOL", true))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET_VALUE", "fallback"))
}

func TestDefaultSettingsValidator_Validate(t *testing.T) {
	validator := &DefaultSettingsValidator{}

	testCases := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "Valid settings",
			mutate: func(c *Config) {},
		},
		{
			name:        "Port out of range",
			mutate:      func(c *Config) { c.ServerPort = 70000 },
			expectError: true,
			errorMsg:    "server_port must be between 1 and 65535",
		},
		{
			name:        "Relative upstream URL",
			mutate:      func(c *Config) { c.Upstream.BaseURL = "/v1" },
			expectError: true,
			errorMsg:    "sentinel_api_url must be an absolute http(s) URL",
		},
		{
			name:        "Backend without anon key",
			mutate:      func(c *Config) { c.Backend.URL = "https://project.backend.example" },
			expectError: true,
			errorMsg:    "backend_anon_key is required when backend_url is set",
		},
		{
			name:        "Negative HTTP rate limit",
			mutate:      func(c *Config) { c.HTTP.RateLimit = -1 },
			expectError: true,
			errorMsg:    "http_rate_limit must not be negative",
		},
		{
			name:        "Rate limit without burst",
			mutate:      func(c *Config) { c.HTTP = HTTPConfig{RateLimit: 5} },
			expectError: true,
			errorMsg:    "http_burst must be at least 1",
		},
		{
			name:        "Short session secret",
			mutate:      func(c *Config) { c.Session.Secret = "short" },
			expectError: true,
			errorMsg:    "session_secret must be at least 16 characters",
		},
		{
			name:        "Zero session check timeout",
			mutate:      func(c *Config) { c.Session.CheckTimeout = 0 },
			expectError: true,
			errorMsg:    "session_check_timeout must be positive",
		},
		{
			name:        "Sub-second poll interval",
			mutate:      func(c *Config) { c.Polling.NetworkInterval = 100 * time.Millisecond },
			expectError: true,
			errorMsg:    "poll_network_interval must be at least 1 second",
		},
		{
			name: "Sub-second poll interval ignored when polling disabled",
			mutate: func(c *Config) {
				c.Polling.Enable = false
				c.Polling.NetworkInterval = 0
			},
		},
		{
			name: "Kafka enabled without brokers",
			mutate: func(c *Config) {
				c.Kafka.Enable = true
				c.Kafka.Topic = "sentinel-events"
			},
			expectError: true,
			errorMsg:    "kafka_brokers is required when kafka is enabled",
		},
		{
			name:        "Invalid log format",
			mutate:      func(c *Config) { c.Log.Format = "xml" },
			expectError: true,
			errorMsg:    "invalid log_format: xml",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := validator.Validate(cfg)

			if tc.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errorMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
