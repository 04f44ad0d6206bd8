package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load with missing file: %v", err)
	}

	if cfg.Interval != 5*time.Minute {
		t.Errorf("interval = %s, want 5m", cfg.Interval)
	}
	if cfg.StatusAddr != ":9090" {
		t.Errorf("statusAddr = %q, want :9090", cfg.StatusAddr)
	}
	if cfg.Backoff.Base != 30*time.Second || cfg.Backoff.Max != time.Hour {
		t.Errorf("backoff defaults = %s/%s, want 30s/1h", cfg.Backoff.Base, cfg.Backoff.Max)
	}
	if len(cfg.Resolver.IPv4) == 0 || len(cfg.Resolver.IPv6) == 0 {
		t.Error("default echo endpoints missing")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
interval: 2m
statePath: /tmp/test.db
providers:
  acme:
    type: custom
    url: https://dyn.example.com/update?host={record}&ip={ip}
    response:
      type: raw
      success: "OK|nochg"
records:
  - name: home
    zone: example.com
    provider: acme
  - name: office
    zone: example.com
    family: ipv6
    provider: acme
    interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Interval != 2*time.Minute {
		t.Errorf("interval = %s, want 2m", cfg.Interval)
	}
	if len(cfg.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(cfg.Records))
	}
	if cfg.Records[0].Family != "ipv4" {
		t.Errorf("record family defaulted to %q, want ipv4", cfg.Records[0].Family)
	}
	if cfg.Records[0].Interval != 2*time.Minute {
		t.Errorf("record interval = %s, want global 2m", cfg.Records[0].Interval)
	}
	if cfg.Records[1].Interval != 30*time.Second {
		t.Errorf("record interval = %s, want 30s", cfg.Records[1].Interval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DDNS_SYNC_INTERVAL", "45s")
	t.Setenv("DDNS_SYNC_STATUS_ADDR", ":8123")
	t.Setenv("DDNS_SYNC_IPV4_ENDPOINTS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Interval != 45*time.Second {
		t.Errorf("interval = %s, want 45s", cfg.Interval)
	}
	if cfg.StatusAddr != ":8123" {
		t.Errorf("statusAddr = %q, want :8123", cfg.StatusAddr)
	}
	if len(cfg.Resolver.IPv4) != 2 || cfg.Resolver.IPv4[1].URL != "https://b.example.com" {
		t.Errorf("ipv4 endpoints = %v", cfg.Resolver.IPv4)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "unknown provider reference",
			content: `
records:
  - name: home
    zone: example.com
    provider: nosuch
`,
		},
		{
			name: "duplicate record identity",
			content: `
providers:
  acme:
    type: custom
    url: https://dyn.example.com/u?ip={ip}
    response:
      type: raw
      success: OK
records:
  - name: home
    zone: example.com
    provider: acme
  - name: home
    zone: example.com
    provider: acme
`,
		},
		{
			name: "custom provider without url",
			content: `
providers:
  acme:
    type: custom
    response:
      type: raw
      success: OK
records:
  - name: home
    zone: example.com
    provider: acme
`,
		},
		{
			name: "template references unknown placeholder",
			content: `
providers:
  acme:
    type: custom
    url: https://dyn.example.com/u?ip={address}
    response:
      type: raw
      success: OK
records:
  - name: home
    zone: example.com
    provider: acme
`,
		},
		{
			name: "bad family",
			content: `
providers:
  acme:
    type: custom
    url: https://dyn.example.com/u?ip={ip}
    response:
      type: raw
      success: OK
records:
  - name: home
    zone: example.com
    family: ipv5
    provider: acme
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
