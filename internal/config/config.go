package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Development keys used when the per-domain variables are unset. They only
// work against local mocks of the upstream API.
const (
	devDashboardKey = "dev-dashboard-key"
	devThreatKey    = "dev-threat-key"
	devNetworkKey   = "dev-network-key"
	devIncidentKey  = "dev-incident-key"
	devReportsKey   = "dev-reports-key"
	devChatbotKey   = "dev-chatbot-key"

	devSessionSecret = "sentinel-dev-session-secret-change-me"
)

// Config represents the main application configuration
type Config struct {
	ServerPort int            `json:"server_port"`
	AppBaseURL string         `json:"app_base_url"`
	DataDir    string         `json:"data_dir"`
	HTTP       HTTPConfig     `json:"http"`
	Upstream   UpstreamConfig `json:"upstream"`
	Intel      IntelConfig    `json:"intel"`
	Backend    BackendConfig  `json:"backend"`
	Session    SessionConfig  `json:"session"`
	Polling    PollingConfig  `json:"polling"`
	Kafka      KafkaConfig    `json:"kafka"`
	Chat       ChatConfig     `json:"chat"`
	Log        LogConfig      `json:"log"`
}

// HTTPConfig configures the public listener
type HTTPConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
	// RateLimit is requests per second per client IP; zero disables limiting
	RateLimit float64 `json:"rate_limit"`
	Burst     int     `json:"burst"`
}

// UpstreamConfig configures the Sentinel REST API wrappers
type UpstreamConfig struct {
	BaseURL   string        `json:"base_url"`
	Keys      APIKeys       `json:"-"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit float64       `json:"rate_limit"`
	Burst     int           `json:"burst"`
}

// APIKeys holds one bearer key per upstream domain
type APIKeys struct {
	Dashboard string
	Threat    string
	Network   string
	Incident  string
	Reports   string
	Chatbot   string
}

// IntelConfig holds the third-party threat intelligence keys
type IntelConfig struct {
	VirusTotalKey   string `json:"-"`
	SafeBrowsingKey string `json:"-"`
	AbuseIPDBKey    string `json:"-"`
}

// BackendConfig points at the hosted auth and data backend
type BackendConfig struct {
	URL       string `json:"url"`
	AnonKey   string `json:"-"`
	JWTSecret string `json:"-"`
}

// Enabled reports whether a remote backend is configured
func (b BackendConfig) Enabled() bool {
	return b.URL != ""
}

// SessionConfig configures the cookie session and route guard
type SessionConfig struct {
	Secret       string        `json:"-"`
	CheckTimeout time.Duration `json:"check_timeout"`
}

// PollingConfig configures the per-page refresh loops
type PollingConfig struct {
	Enable            bool          `json:"enable"`
	DashboardInterval time.Duration `json:"dashboard_interval"`
	ThreatsInterval   time.Duration `json:"threats_interval"`
	NetworkInterval   time.Duration `json:"network_interval"`
	IncidentsInterval time.Duration `json:"incidents_interval"`
}

// KafkaConfig configures analysis event publishing
type KafkaConfig struct {
	Enable  bool     `json:"enable"`
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// ChatConfig configures the optional model-backed chat
type ChatConfig struct {
	GeminiAPIKey    string `json:"-"`
	GeminiModel     string `json:"gemini_model"`
	MaxPromptTokens int    `json:"max_prompt_tokens"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load loads configuration from environment variables
func Load() *Config {
	baseURL := strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/")
	return &Config{
		ServerPort: getEnvInt("SERVER_PORT", 3000),
		AppBaseURL: baseURL,
		DataDir:    getEnv("DATA_DIR", defaultDataDir()),
		HTTP: HTTPConfig{
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", baseURL)),
			RateLimit:      getEnvFloat("HTTP_RATE_LIMIT", 10),
			Burst:          getEnvInt("HTTP_BURST", 30),
		},
		Upstream: UpstreamConfig{
			BaseURL: strings.TrimRight(getEnv("SENTINEL_API_URL", "https://api.sentinel.ai/v1"), "/"),
			Keys: APIKeys{
				Dashboard: getEnv("DASHBOARD_API_KEY", devDashboardKey),
				Threat:    getEnv("THREAT_API_KEY", devThreatKey),
				Network:   getEnv("NETWORK_API_KEY", devNetworkKey),
				Incident:  getEnv("INCIDENT_API_KEY", devIncidentKey),
				Reports:   getEnv("REPORTS_API_KEY", devReportsKey),
				Chatbot:   getEnv("CHATBOT_API_KEY", devChatbotKey),
			},
			Timeout:   getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),
			RateLimit: getEnvFloat("UPSTREAM_RATE_LIMIT", 20),
			Burst:     getEnvInt("UPSTREAM_BURST", 40),
		},
		Intel: IntelConfig{
			VirusTotalKey:   getEnv("VIRUSTOTAL_API_KEY", ""),
			SafeBrowsingKey: getEnv("SAFE_BROWSING_API_KEY", ""),
			AbuseIPDBKey:    getEnv("ABUSEIPDB_API_KEY", ""),
		},
		Backend: BackendConfig{
			URL:       strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
			AnonKey:   getEnv("BACKEND_ANON_KEY", ""),
			JWTSecret: getEnv("BACKEND_JWT_SECRET", ""),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", devSessionSecret),
			CheckTimeout: getEnvDuration("SESSION_CHECK_TIMEOUT", 2*time.Second),
		},
		Polling: PollingConfig{
			Enable:            getEnvBool("POLL_ENABLE", true),
			DashboardInterval: getEnvDuration("POLL_DASHBOARD_INTERVAL", 60*time.Second),
			ThreatsInterval:   getEnvDuration("POLL_THREATS_INTERVAL", 10*time.Second),
			NetworkInterval:   getEnvDuration("POLL_NETWORK_INTERVAL", 5*time.Second),
			IncidentsInterval: getEnvDuration("POLL_INCIDENTS_INTERVAL", 15*time.Second),
		},
		Kafka: KafkaConfig{
			Enable:  getEnvBool("KAFKA_ENABLE", false),
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC", "sentinel-events"),
		},
		Chat: ChatConfig{
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			MaxPromptTokens: getEnvInt("CHAT_MAX_PROMPT_TOKENS", 2048),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

// InsecureDefaults lists the variables that fell back to development values
func (c *Config) InsecureDefaults() []string {
	var names []string
	checks := []struct {
		name  string
		value string
		dev   string
	}{
		{"DASHBOARD_API_KEY", c.Upstream.Keys.Dashboard, devDashboardKey},
		{"THREAT_API_KEY", c.Upstream.Keys.Threat, devThreatKey},
		{"NETWORK_API_KEY", c.Upstream.Keys.Network, devNetworkKey},
		{"INCIDENT_API_KEY", c.Upstream.Keys.Incident, devIncidentKey},
		{"REPORTS_API_KEY", c.Upstream.Keys.Reports, devReportsKey},
		{"CHATBOT_API_KEY", c.Upstream.Keys.Chatbot, devChatbotKey},
		{"SESSION_SECRET", c.Session.Secret, devSessionSecret},
	}
	for _, check := range checks {
		if check.value == check.dev {
			names = append(names, check.name)
		}
	}
	return names
}

// defaultDataDir returns the per-user application data directory
func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sentinel")
	}
	return filepath.Join(".", ".sentinel")
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv retrieves environment variable with fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves boolean environment variable with fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt retrieves integer environment variable with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("5s") or bare seconds ("5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// SettingsValidator defines the interface for validating settings
type SettingsValidator interface {
	Validate(settings *Config) error
}

// DefaultSettingsValidator provides default validation for settings
type DefaultSettingsValidator struct{}

// Validate validates the configuration settings
func (v *DefaultSettingsValidator) Validate(settings *Config) error {
	if settings.ServerPort <= 0 || settings.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 1 and 65535")
	}

	if err := validateBaseURL("sentinel_api_url", settings.Upstream.BaseURL); err != nil {
		return err
	}

	if err := validateBaseURL("app_base_url", settings.AppBaseURL); err != nil {
		return err
	}

	if settings.Backend.URL != "" {
		if err := validateBaseURL("backend_url", settings.Backend.URL); err != nil {
			return err
		}
		if settings.Backend.AnonKey == "" {
			return fmt.Errorf("backend_anon_key is required when backend_url is set")
		}
	}

	if settings.HTTP.RateLimit < 0 {
		return fmt.Errorf("http_rate_limit must not be negative")
	}

	if settings.HTTP.RateLimit > 0 && settings.HTTP.Burst < 1 {
		return fmt.Errorf("http_burst must be at least 1 when rate limiting is enabled")
	}

	if settings.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}

	if settings.Upstream.RateLimit <= 0 {
		return fmt.Errorf("upstream_rate_limit must be positive")
	}

	if settings.Upstream.Burst < 1 {
		return fmt.Errorf("upstream_burst must be at least 1")
	}

	if settings.Session.CheckTimeout <= 0 {
		return fmt.Errorf("session_check_timeout must be positive")
	}

	if len(settings.Session.Secret) < 16 {
		return fmt.Errorf("session_secret must be at least 16 characters")
	}

	if settings.Polling.Enable {
		intervals := map[string]time.Duration{
			"poll_dashboard_interval": settings.Polling.DashboardInterval,
			"poll_threats_interval":   settings.Polling.ThreatsInterval,
			"poll_network_interval":   settings.Polling.NetworkInterval,
			"poll_incidents_interval": settings.Polling.IncidentsInterval,
		}
		for name, interval := range intervals {
			if interval < time.Second {
				return fmt.Errorf("%s must be at least 1 second", name)
			}
		}
	}

	if settings.Kafka.Enable {
		if len(settings.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka_brokers is required when kafka is enabled")
		}
		if settings.Kafka.Topic == "" {
			return fmt.Errorf("kafka_topic is required when kafka is enabled")
		}
	}

	if settings.Chat.MaxPromptTokens < 64 {
		return fmt.Errorf("chat_max_prompt_tokens must be at least 64")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(settings.Log.Format)] {
		return fmt.Errorf("invalid log_format: %s", settings.Log.Format)
	}

	return nil
}

// Validate runs the default validator
func (c *Config) Validate() error {
	return (&DefaultSettingsValidator{}).Validate(c)
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
	}
	return nil
}
