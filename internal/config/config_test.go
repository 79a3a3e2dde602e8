package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
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
	p := writeConfig(t, `server: {}
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Server.Storage.Path != DefaultStoragePath {
		t.Errorf("storage.path: got %q, want %q", cfg.Server.Storage.Path, DefaultStoragePath)
	}
	if cfg.Server.Cache.TTL != DefaultCacheTTL {
		t.Errorf("cache.ttl: got %v, want %v", cfg.Server.Cache.TTL, DefaultCacheTTL)
	}
	if cfg.Server.Monitor.WarmupInterval != DefaultWarmupInterval {
		t.Errorf("monitor.warmup_interval: got %v, want %v", cfg.Server.Monitor.WarmupInterval, DefaultWarmupInterval)
	}
	if cfg.Server.Alerts.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("alerts.failure_threshold: got %d, want %d", cfg.Server.Alerts.FailureThreshold, DefaultFailureThreshold)
	}
	if cfg.Server.Alerts.Cooldown != DefaultAlertCooldown {
		t.Errorf("alerts.cooldown: got %v, want %v", cfg.Server.Alerts.Cooldown, DefaultAlertCooldown)
	}
}

func TestLoad_Full(t *testing.T) {
	p := writeConfig(t, `server:
  http_port: 9091
  auth:
    mode: apikey
    key_env: TW_API_KEY
    header: x-tw-key
  storage:
    path: /var/lib/taskwatch/fleet.db
  task_api:
    base_url: https://clickup.internal/api/v2
    timeout: 25s
  cache:
    ttl: 10m
  monitor:
    warmup_interval: 5m
    health_interval: 30s
  alerts:
    failure_threshold: 5
    cooldown: 1h
    email_relay_url_env: TW_EMAIL_RELAY
    whatsapp_relay_url_env: TW_WA_RELAY
  kpi:
    not_started_keywords: ["icebox", "waiting"]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9091 {
		t.Errorf("http_port: got %d, want 9091", cfg.Server.HTTPPort)
	}
	if cfg.Server.Auth.EffectiveHeader() != "x-tw-key" {
		t.Errorf("header: got %q", cfg.Server.Auth.EffectiveHeader())
	}
	if cfg.Server.Storage.Path != "/var/lib/taskwatch/fleet.db" {
		t.Errorf("storage.path: got %q", cfg.Server.Storage.Path)
	}
	if cfg.Server.TaskAPI.Timeout != 25*time.Second {
		t.Errorf("task_api.timeout: got %v", cfg.Server.TaskAPI.Timeout)
	}
	if cfg.Server.Monitor.HealthInterval != 30*time.Second {
		t.Errorf("monitor.health_interval: got %v", cfg.Server.Monitor.HealthInterval)
	}
	if cfg.Server.Alerts.FailureThreshold != 5 || cfg.Server.Alerts.Cooldown != time.Hour {
		t.Errorf("alerts: got %d / %v", cfg.Server.Alerts.FailureThreshold, cfg.Server.Alerts.Cooldown)
	}
	if len(cfg.Server.KPI.NotStartedKeywords) != 2 {
		t.Errorf("kpi.not_started_keywords: got %v", cfg.Server.KPI.NotStartedKeywords)
	}
}

func TestLoad_EnvResolution(t *testing.T) {
	t.Setenv("TW_TEST_KEY", "sekrit")
	t.Setenv("TW_TEST_EMAIL_RELAY", "https://relay.example.com/email")

	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TW_TEST_KEY
  alerts:
    email_relay_url_env: TW_TEST_EMAIL_RELAY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Server.Auth.Key(); got != "sekrit" {
		t.Errorf("Auth.Key: got %q", got)
	}
	if got := cfg.Server.Alerts.EmailRelayURL(); got != "https://relay.example.com/email" {
		t.Errorf("EmailRelayURL: got %q", got)
	}
	if got := cfg.Server.Alerts.WhatsappRelayURL(); got != "" {
		t.Errorf("WhatsappRelayURL: got %q, want empty when unset", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "server:\n  http_port: 70000\n"},
		{"bad auth mode", "server:\n  auth:\n    mode: oauth\n"},
		{"negative ttl", "server:\n  cache:\n    ttl: -1s\n"},
		{"empty storage path", "server:\n  storage:\n    path: \"\"\n"},
		{"broken yaml", "server: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.content)
			if _, err := Load(p); err == nil {
				t.Error("Load: want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load: want error for missing file")
	}
}
