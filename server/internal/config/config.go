package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over measurement metrics:
	// "asymmetry >= 0.8", "max_temp > 37.8", "risk == high".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultDeviceTTL         = 5 * time.Minute
	DefaultStorageBackend    = "sqlite"
	DefaultStoragePath       = "thermowatch.db"
	DefaultAnalysisDelay     = 2 * time.Second
	DefaultMaxImageBytes     = 10 << 20
	DefaultForwardTimeout    = 10 * time.Second
	DefaultEventsTopic       = "thermowatch.measurements"
	DefaultBroadcastInterval = 5 * time.Second

	DefaultConclusionProvider  = "rules"
	DefaultConclusionKeyEnv    = "ANTHROPIC_API_KEY"
	DefaultConclusionModel     = "claude-sonnet-4-5"
	DefaultConclusionTimeout   = 30 * time.Second
	DefaultConclusionMaxTokens = 500
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC reading receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// AllowedOrigins lists CORS origins for the REST API. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Thresholds are the risk classification bounds. Hot-reloadable.
	Thresholds compute.Thresholds `yaml:"thresholds"`

	// Storage selects the durable key-value backend.
	Storage StorageConfig `yaml:"storage"`

	// Devices controls retention of the latest reading per sensor device.
	Devices DevicesConfig `yaml:"devices"`

	// Analysis configures the simulated image analysis.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Forwarder configures delivery of manual readings to the remote API.
	Forwarder ForwarderConfig `yaml:"forwarder"`

	// Events configures the measurement event stream.
	Events EventsConfig `yaml:"events"`

	// Conclusion selects who writes the measurement conclusion.
	Conclusion ConclusionConfig `yaml:"conclusion"`

	// BroadcastInterval is how often the WebSocket hub pushes the dashboard
	// even when nothing changed (default 5s).
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// Alerts holds rule definitions and webhook delivery targets. Hot-reloadable.
	Alerts AlertsConfig `yaml:"alerts"`
}

// StorageConfig selects and configures the KV backend.
type StorageConfig struct {
	// Backend is one of: sqlite | redis | memory (default sqlite).
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (default thermowatch.db).
	Path string `yaml:"path"`

	// Redis is used when Backend == "redis".
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	// PasswordEnv is the name of the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	// Prefix is prepended to every key.
	Prefix string `yaml:"prefix"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string {
	if r.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(r.PasswordEnv)
}

// DevicesConfig controls the per-device latest reading store.
type DevicesConfig struct {
	// TTL is how long a device stays listed after its last reading. Default: 5m.
	TTL time.Duration `yaml:"ttl"`
}

// AnalysisConfig configures the simulated image analysis.
type AnalysisConfig struct {
	// Delay is how long an analysis takes (default 2s).
	Delay time.Duration `yaml:"delay"`

	// Scenario forces a risk tier: normal | elevated | high | random (default random).
	Scenario string `yaml:"scenario"`

	// MaxImageBytes is the upload size limit (default 10 MiB).
	MaxImageBytes int `yaml:"max_image_bytes"`
}

// ForwarderConfig configures the remote measurement API client.
type ForwarderConfig struct {
	// APIURL is the base URL used until the user saves one in settings.
	APIURL string `yaml:"api_url"`

	// Timeout bounds each forward request (default 10s).
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig configures the Kafka measurement event stream.
// Empty Brokers disables publishing.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ConclusionConfig selects the conclusion writer. The rule-based text is
// always produced first; a model provider replaces it when it answers.
type ConclusionConfig struct {
	// Provider is one of: rules | anthropic (default rules).
	Provider string `yaml:"provider"`

	// APIKeyEnv names the environment variable holding the API key
	// (default ANTHROPIC_API_KEY). An unset variable keeps rule-based text.
	APIKeyEnv string `yaml:"api_key_env"`

	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`

	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string `yaml:"base_url"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort:   DefaultGRPCPort,
			HTTPPort:   DefaultHTTPPort,
			Thresholds: compute.DefaultThresholds(),
			Storage: StorageConfig{
				Backend: DefaultStorageBackend,
				Path:    DefaultStoragePath,
			},
			Devices: DevicesConfig{
				TTL: DefaultDeviceTTL,
			},
			Analysis: AnalysisConfig{
				Delay:         DefaultAnalysisDelay,
				Scenario:      "random",
				MaxImageBytes: DefaultMaxImageBytes,
			},
			Forwarder: ForwarderConfig{
				Timeout: DefaultForwardTimeout,
			},
			Events: EventsConfig{
				Topic: DefaultEventsTopic,
			},
			Conclusion: ConclusionConfig{
				Provider:  DefaultConclusionProvider,
				APIKeyEnv: DefaultConclusionKeyEnv,
				Model:     DefaultConclusionModel,
				MaxTokens: DefaultConclusionMaxTokens,
				Timeout:   DefaultConclusionTimeout,
			},
			BroadcastInterval: DefaultBroadcastInterval,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if err := s.Thresholds.Validate(); err != nil {
		return fmt.Errorf("server.thresholds: %w", err)
	}
	switch s.Storage.Backend {
	case "sqlite":
		if s.Storage.Path == "" {
			return fmt.Errorf("server.storage.path is required for sqlite")
		}
	case "redis":
		if s.Storage.Redis.Addr == "" {
			return fmt.Errorf("server.storage.redis.addr is required for redis")
		}
	case "memory":
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want sqlite|redis|memory", s.Storage.Backend)
	}
	if s.Devices.TTL < 0 {
		return fmt.Errorf("server.devices.ttl must not be negative")
	}
	if s.Analysis.Delay < 0 {
		return fmt.Errorf("server.analysis.delay must not be negative")
	}
	switch s.Analysis.Scenario {
	case "normal", "elevated", "high", "random", "":
	default:
		return fmt.Errorf("server.analysis.scenario %q unknown: want normal|elevated|high|random", s.Analysis.Scenario)
	}
	if s.Analysis.MaxImageBytes <= 0 {
		return fmt.Errorf("server.analysis.max_image_bytes must be positive")
	}
	if s.Forwarder.Timeout <= 0 {
		return fmt.Errorf("server.forwarder.timeout must be positive")
	}
	if len(s.Events.Brokers) > 0 && s.Events.Topic == "" {
		return fmt.Errorf("server.events.topic is required when brokers are set")
	}
	switch s.Conclusion.Provider {
	case "rules", "":
	case "anthropic":
		if s.Conclusion.Model == "" {
			return fmt.Errorf("server.conclusion.model is required for anthropic")
		}
		if s.Conclusion.Timeout <= 0 {
			return fmt.Errorf("server.conclusion.timeout must be positive")
		}
	default:
		return fmt.Errorf("server.conclusion.provider %q unknown: want rules|anthropic", s.Conclusion.Provider)
	}
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	for i, w := range s.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
