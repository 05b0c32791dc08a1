package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/leadaging/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leadaging.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("LEADAGING_TIER", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierCommunity {
		t.Errorf("expected community tier, got %s", cfg.Tier)
	}
	if cfg.Repository.Driver != "sqlite" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected community stack %+v", cfg)
	}
}

func TestLoadProTier(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("LEADAGING_TIER", "pro")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tier != domain.TierPro || cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
		t.Errorf("unexpected pro stack %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("LEADAGING_TIER", "")

	path := writeConfig(t, `
server:
  port: 9090
engine:
  maxWorkers: 4
  failFast: true
  recommendations:
    stale:
      critical: "Hand over to win-back campaign"
schedule:
  enabled: true
  interval: 30m
  tenantIds: [acme, globex]
rules:
  - id: aging-new
    name: New Lead
    category: new
    minDays: 0
    maxDays: 2
    baseRisk: low
    automaticActions: [send_welcome]
    notificationThreshold: 1
    active: true
  - id: aging-rest
    name: Everything Else
    category: warm
    minDays: 3
    baseRisk: medium
    active: true
policies:
  - id: escalate-big
    actionId: send_welcome
    name: Big deals only
    expression: lead_value > 10000.0
    enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host kept, got %q", cfg.Server.Host)
	}
	if cfg.Engine.MaxWorkers != 4 || !cfg.Engine.FailFast {
		t.Errorf("unexpected engine config %+v", cfg.Engine)
	}
	if got := cfg.Engine.Recommendations[domain.CategoryStale][domain.RiskCritical]; got != "Hand over to win-back campaign" {
		t.Errorf("unexpected recommendation override %q", got)
	}
	if cfg.Schedule.Interval != 30*time.Minute || len(cfg.Schedule.TenantIDs) != 2 {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	if len(cfg.Rules) != 2 {
		t.Fatalf("expected 2 seed rules, got %d", len(cfg.Rules))
	}
	if cfg.Rules[0].MaxDays == nil || *cfg.Rules[0].MaxDays != 2 || cfg.Rules[1].MaxDays != nil {
		t.Errorf("unexpected rule ranges %+v %+v", cfg.Rules[0], cfg.Rules[1])
	}
	if len(cfg.Policies) != 1 || cfg.Policies[0].ActionID != "send_welcome" {
		t.Errorf("unexpected policies %+v", cfg.Policies)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("LEADAGING_TIER", "")
	t.Setenv("LEADAGING_PORT", "7070")
	t.Setenv("LEADAGING_TENANTS", "acme, globex ,")
	t.Setenv("LEADAGING_SCHEDULE_INTERVAL", "15m")
	t.Setenv("LEADAGING_FAIL_FAST", "true")
	t.Setenv("LEADAGING_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if len(cfg.Schedule.TenantIDs) != 2 || cfg.Schedule.TenantIDs[1] != "globex" {
		t.Errorf("unexpected tenants %v", cfg.Schedule.TenantIDs)
	}
	if !cfg.Schedule.Enabled || cfg.Schedule.Interval != 15*time.Minute {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	if !cfg.Engine.FailFast || cfg.Logging.Level != "debug" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("LEADAGING_TIER", "")

	tests := []struct {
		name string
		path func(t *testing.T) string
		env  map[string]string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "bad yaml",
			path: func(t *testing.T) string { return writeConfig(t, "server: [") },
		},
		{
			name: "bad port env",
			path: func(t *testing.T) string { return "" },
			env:  map[string]string{"LEADAGING_PORT": "http"},
		},
		{
			name: "bad bool env",
			path: func(t *testing.T) string { return "" },
			env:  map[string]string{"LEADAGING_KAFKA_ENABLED": "maybe"},
		},
		{
			name: "port out of range",
			path: func(t *testing.T) string { return writeConfig(t, "server:\n  port: 70000\n") },
		},
		{
			name: "kafka without topic",
			path: func(t *testing.T) string { return "" },
			env:  map[string]string{"LEADAGING_KAFKA_ENABLED": "true", "LEADAGING_KAFKA_BROKERS": " "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(PathEnv, "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(tt.path(t)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
