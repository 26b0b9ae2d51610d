package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeInterval = 30 * time.Second
	DefaultBufferSize     = 1000
	DefaultSendTimeout    = 10 * time.Second
)

// Source types.
const (
	TypePrometheus = "prometheus"
	TypeSimulated  = "simulated"
)

// Config is the top-level agent configuration. The `server:` key of a shared
// config file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of thermowatch-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ScrapeInterval controls how often each device is read.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// BufferSize is the maximum number of readings held in memory while
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// SendTimeout bounds each SendReading call (default 10s).
	SendTimeout time.Duration `yaml:"send_timeout"`

	// ServerTLS enables TLS on the connection to the server.
	ServerTLS ServerTLSConfig `yaml:"server_tls"`

	// Sources is the list of devices to read.
	Sources []Source `yaml:"sources"`
}

// ServerTLSConfig configures transport security towards thermowatch-server.
type ServerTLSConfig struct {
	Enabled bool `yaml:"enabled"`
	// CAFile is a PEM bundle used instead of the system roots.
	CAFile string `yaml:"ca_file"`
	// InsecureSkipVerify disables certificate verification. Development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Source describes one thermography device.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is prometheus (the device exposes zone gauges over HTTP) or
	// simulated (a built-in mock sensor).
	Type string `yaml:"type"`

	// Endpoint is the device metrics URL. Required for prometheus.
	Endpoint string `yaml:"endpoint"`

	// DeviceID tags every reading from this source. Defaults to ID.
	DeviceID string `yaml:"device_id"`

	// Auth configures how the agent authenticates to the device.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a device endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header carries the API key when Mode == "apikey" (default X-API-Key).
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	return env(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	return env(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	return env(a.PasswordEnv)
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for devices with self-signed certificates on a closed network.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	for i := range cfg.Agent.Sources {
		if cfg.Agent.Sources[i].DeviceID == "" {
			cfg.Agent.Sources[i].DeviceID = cfg.Agent.Sources[i].ID
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeInterval: DefaultScrapeInterval,
			BufferSize:     DefaultBufferSize,
			SendTimeout:    DefaultSendTimeout,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Agent.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if cfg.Agent.ScrapeInterval <= 0 {
		return fmt.Errorf("agent.scrape_interval must be positive")
	}
	if cfg.Agent.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if cfg.Agent.SendTimeout <= 0 {
		return fmt.Errorf("agent.send_timeout must be positive")
	}
	seen := make(map[string]bool, len(cfg.Agent.Sources))
	for i, src := range cfg.Agent.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		switch src.Type {
		case TypePrometheus:
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		case TypeSimulated:
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}
