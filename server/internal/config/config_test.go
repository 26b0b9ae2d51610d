package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Only the agent section present; server falls back to defaults.
	p := writeConfig(t, `agent:
  server_endpoint: "localhost:50051"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", cfg.Server.GRPCPort, DefaultGRPCPort)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Thresholds != compute.DefaultThresholds() {
		t.Errorf("thresholds: got %+v, want defaults", cfg.Server.Thresholds)
	}
	if cfg.Server.Storage.Backend != "sqlite" || cfg.Server.Storage.Path != DefaultStoragePath {
		t.Errorf("storage: got %+v", cfg.Server.Storage)
	}
	if cfg.Server.Devices.TTL != DefaultDeviceTTL {
		t.Errorf("devices.ttl: got %v, want %v", cfg.Server.Devices.TTL, DefaultDeviceTTL)
	}
	if cfg.Server.Analysis.MaxImageBytes != 10<<20 {
		t.Errorf("analysis.max_image_bytes: got %d", cfg.Server.Analysis.MaxImageBytes)
	}
	if c := cfg.Server.Conclusion; c.Provider != "rules" || c.APIKeyEnv != DefaultConclusionKeyEnv || c.MaxTokens != 500 {
		t.Errorf("conclusion: got %+v", c)
	}
}

func TestLoad_FullServer(t *testing.T) {
	t.Setenv("TEST_REDIS_PW", "hunter2")
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  allowed_origins: ["http://localhost:5173"]
  thresholds:
    asymmetry_elevated: 0.4
    asymmetry_high: 0.9
    temp_elevated: 37.3
    temp_high: 37.9
  storage:
    backend: redis
    redis:
      addr: "localhost:6379"
      password_env: TEST_REDIS_PW
      db: 2
      prefix: "ward3:"
  devices:
    ttl: 10m
  analysis:
    delay: 500ms
    scenario: high
  forwarder:
    api_url: "http://remote:8000"
  events:
    brokers: ["kafka:9092"]
  conclusion:
    provider: anthropic
    api_key_env: TW_LLM_KEY
    timeout: 15s
  alerts:
    rules:
      - name: hot_zone
        condition: "max_temp >= 37.8"
        severity: critical
        cooldown: 5m
    webhooks:
      - type: slack
        url_env: SLACK_URL
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 || s.HTTPPort != 9091 {
		t.Errorf("ports: got %d/%d", s.GRPCPort, s.HTTPPort)
	}
	if s.Thresholds.AsymmetryHigh != 0.9 || s.Thresholds.TempElevated != 37.3 {
		t.Errorf("thresholds: got %+v", s.Thresholds)
	}
	if s.Storage.Redis.Password() != "hunter2" || s.Storage.Redis.DB != 2 {
		t.Errorf("redis: got %+v", s.Storage.Redis)
	}
	if s.Devices.TTL != 10*time.Minute {
		t.Errorf("devices.ttl: got %v", s.Devices.TTL)
	}
	if s.Analysis.Delay != 500*time.Millisecond || s.Analysis.Scenario != "high" {
		t.Errorf("analysis: got %+v", s.Analysis)
	}
	if s.Events.Topic != DefaultEventsTopic {
		t.Errorf("events.topic: got %q, want default", s.Events.Topic)
	}
	if s.Conclusion.Provider != "anthropic" || s.Conclusion.APIKeyEnv != "TW_LLM_KEY" ||
		s.Conclusion.Timeout != 15*time.Second || s.Conclusion.Model != DefaultConclusionModel {
		t.Errorf("conclusion: got %+v", s.Conclusion)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != 5*time.Minute {
		t.Errorf("alerts.rules: got %+v", s.Alerts.Rules)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"port out of range", "server:\n  grpc_port: 70000\n"},
		{"inverted thresholds", "server:\n  thresholds:\n    asymmetry_elevated: 1.5\n    asymmetry_high: 1.0\n    temp_elevated: 37.5\n    temp_high: 38\n"},
		{"unknown backend", "server:\n  storage:\n    backend: mongo\n"},
		{"redis without addr", "server:\n  storage:\n    backend: redis\n"},
		{"unknown scenario", "server:\n  analysis:\n    scenario: doom\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: x\n"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks:\n      - type: pager\n"},
		{"unknown conclusion provider", "server:\n  conclusion:\n    provider: oracle\n"},
		{"anthropic without model", "server:\n  conclusion:\n    provider: anthropic\n    model: \"\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_InvalidThresholdsWrapInvalidInput(t *testing.T) {
	p := writeConfig(t, "server:\n  thresholds:\n    temp_elevated: 39\n")
	_, err := Load(p)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("err: got %v, want ErrInvalidInput", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEST_HOOK", "https://hooks.example.com/x")
	if got := (WebhookConfig{URLEnv: "TEST_HOOK"}).URL(); got != "https://hooks.example.com/x" {
		t.Errorf("URL: got %q", got)
	}
	if got := (WebhookConfig{}).URL(); got != "" {
		t.Errorf("URL with empty env: got %q", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8080\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go Watch(ctx, p, func(c *Config) { got <- c }) //nolint:errcheck

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(p, []byte("server:\n  http_port: 9999\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	// A truncating write can surface an intermediate empty file first.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Server.HTTPPort == 9999 {
				return
			}
		case <-deadline:
			t.Fatal("no reload with http_port 9999 observed")
		}
	}
}
