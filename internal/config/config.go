package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultStoragePath    = "taskwatch.db"
	DefaultCacheTTL       = 5 * time.Minute
	DefaultAPITimeout     = 20 * time.Second
	DefaultWarmupInterval = 10 * time.Minute
	DefaultHealthInterval = time.Minute

	DefaultFailureThreshold = 3
	DefaultAlertCooldown    = 15 * time.Minute
)

// Config holds the full server configuration parsed from config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API listens on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the admin API authenticates callers.
	Auth AuthConfig `yaml:"auth"`

	// Storage configures the client database.
	Storage StorageConfig `yaml:"storage"`

	// TaskAPI configures the upstream task-tracking API client.
	TaskAPI TaskAPIConfig `yaml:"task_api"`

	// Cache controls dashboard payload retention.
	Cache CacheConfig `yaml:"cache"`

	// Monitor tunes the background warmup and health timers.
	Monitor MonitorConfig `yaml:"monitor"`

	// Alerts configures failure alerting and the relay endpoints.
	Alerts AlertsConfig `yaml:"alerts"`

	// KPI tunes the aggregation.
	KPI KPIConfig `yaml:"kpi"`
}

// AuthConfig controls caller authentication on the admin API. Public
// dashboard routes are never gated by it.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StorageConfig configures the client database.
type StorageConfig struct {
	// Path is the SQLite database file (default "taskwatch.db").
	Path string `yaml:"path"`
}

// TaskAPIConfig configures the upstream task-tracking API client.
type TaskAPIConfig struct {
	// BaseURL overrides the upstream API base URL. Empty uses the default.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every upstream request (default 20s).
	Timeout time.Duration `yaml:"timeout"`

	// PageSize is the page-size hint sent to the upstream listing endpoint.
	// Zero keeps the client default.
	PageSize int `yaml:"page_size"`

	// MaxPages caps pagination per listing. Zero keeps the client default.
	MaxPages int `yaml:"max_pages"`
}

// CacheConfig controls in-memory dashboard payload retention.
type CacheConfig struct {
	// TTL is how long a built dashboard payload is served before it is
	// rebuilt. Default: 5m.
	TTL time.Duration `yaml:"ttl"`
}

// MonitorConfig tunes the background timers.
type MonitorConfig struct {
	// WarmupInterval drives dashboard pre-warming for connected clients
	// (default 10m, floor 1m).
	WarmupInterval time.Duration `yaml:"warmup_interval"`

	// HealthInterval drives health probing of tracked clients
	// (default 1m, floor 15s).
	HealthInterval time.Duration `yaml:"health_interval"`
}

// AlertsConfig configures failure alerting. Relay URLs come from the
// environment so secrets stay out of the config file.
type AlertsConfig struct {
	// FailureThreshold is the consecutive-failure count that makes a client
	// alert-eligible (default 3).
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown suppresses repeat alerts per client (default 15m).
	Cooldown time.Duration `yaml:"cooldown"`

	// EmailRelayURLEnv names the environment variable holding the email
	// relay endpoint.
	EmailRelayURLEnv string `yaml:"email_relay_url_env"`

	// WhatsappRelayURLEnv names the environment variable holding the
	// whatsapp relay endpoint.
	WhatsappRelayURLEnv string `yaml:"whatsapp_relay_url_env"`
}

// EmailRelayURL returns the email relay endpoint resolved from the environment.
func (a AlertsConfig) EmailRelayURL() string {
	if a.EmailRelayURLEnv == "" {
		return ""
	}
	return os.Getenv(a.EmailRelayURLEnv)
}

// WhatsappRelayURL returns the whatsapp relay endpoint resolved from the environment.
func (a AlertsConfig) WhatsappRelayURL() string {
	if a.WhatsappRelayURLEnv == "" {
		return ""
	}
	return os.Getenv(a.WhatsappRelayURLEnv)
}

// KPIConfig tunes the aggregation.
type KPIConfig struct {
	// NotStartedKeywords overrides the built-in backlog status keywords.
	// Workflows with custom status names list their own here.
	NotStartedKeywords []string `yaml:"not_started_keywords"`
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Storage:  StorageConfig{Path: DefaultStoragePath},
			TaskAPI:  TaskAPIConfig{Timeout: DefaultAPITimeout},
			Cache:    CacheConfig{TTL: DefaultCacheTTL},
			Monitor: MonitorConfig{
				WarmupInterval: DefaultWarmupInterval,
				HealthInterval: DefaultHealthInterval,
			},
			Alerts: AlertsConfig{
				FailureThreshold: DefaultFailureThreshold,
				Cooldown:         DefaultAlertCooldown,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Storage.Path == "" {
		return fmt.Errorf("server.storage.path must not be empty")
	}
	if cfg.Server.TaskAPI.Timeout < 0 {
		return fmt.Errorf("server.task_api.timeout must not be negative")
	}
	if cfg.Server.TaskAPI.PageSize < 0 || cfg.Server.TaskAPI.MaxPages < 0 {
		return fmt.Errorf("server.task_api page limits must not be negative")
	}
	if cfg.Server.Cache.TTL < 0 {
		return fmt.Errorf("server.cache.ttl must not be negative")
	}
	if cfg.Server.Monitor.WarmupInterval < 0 || cfg.Server.Monitor.HealthInterval < 0 {
		return fmt.Errorf("server.monitor intervals must not be negative")
	}
	if cfg.Server.Alerts.FailureThreshold < 0 {
		return fmt.Errorf("server.alerts.failure_threshold must not be negative")
	}
	if cfg.Server.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	return nil
}
