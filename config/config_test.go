package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
providers:
  - id: cf-main
    name: cloudflare-main
    type: cloudflare
    zone: example.com
    credentials:
      api_token: ${CF_API_TOKEN}
    cache_refresh_interval: 30m
  - id: r53
    type: route53
    zone: internal.example.com
    credentials:
      region: eu-west-1
desired:
  file: /etc/trafegodns/desired.yaml
sync:
  poll_interval: 5m
cleanup:
  grace_period: 15m
  sweep_interval: 5m
  protected_hostnames:
    - "*.critical.example.com"
tracker:
  type: file
  file:
    path: /var/lib/trafegodns/tracked.json
http:
  enabled: true
  listen: ":8080"
`

func TestLoadFromPath(t *testing.T) {
	t.Setenv("CF_API_TOKEN", "secret-token")
	path := writeConfig(t, validConfig)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Fatalf("providers = %d, want 2", len(cfg.Providers))
	}
	if got := cfg.Providers[0].Credentials["api_token"]; got != "secret-token" {
		t.Errorf("credential not expanded: %q", got)
	}
	if cfg.Providers[1].Credentials["region"] != "eu-west-1" {
		t.Errorf("plain credential altered: %+v", cfg.Providers[1].Credentials)
	}
	if cfg.Tracker.Type != "file" || cfg.Tracker.File.Path == "" {
		t.Errorf("tracker = %+v", cfg.Tracker)
	}
	if got := Duration(cfg.Cleanup.GracePeriod, 0); got != 15*time.Minute {
		t.Errorf("grace period = %v, want 15m", got)
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no providers", `
desired:
  file: /tmp/desired.yaml
`},
		{"missing provider id", `
providers:
  - type: cloudflare
    zone: example.com
desired:
  file: /tmp/desired.yaml
`},
		{"duplicate provider id", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
  - id: p1
    type: route53
    zone: example.org
desired:
  file: /tmp/desired.yaml
`},
		{"missing zone", `
providers:
  - id: p1
    type: cloudflare
desired:
  file: /tmp/desired.yaml
`},
		{"missing desired file", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
`},
		{"unknown tracker type", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
desired:
  file: /tmp/desired.yaml
tracker:
  type: redis
`},
		{"file tracker without path", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
desired:
  file: /tmp/desired.yaml
tracker:
  type: file
`},
		{"bad duration", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
desired:
  file: /tmp/desired.yaml
cleanup:
  grace_period: soon
`},
		{"auth enabled without token env", `
providers:
  - id: p1
    type: cloudflare
    zone: example.com
desired:
  file: /tmp/desired.yaml
http:
  enabled: true
  auth:
    enabled: true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := LoadFromPath(path); err == nil {
				t.Error("LoadFromPath() error = nil, want validation error")
			}
		})
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFromPath() on missing file should fail")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("Duration(empty) = %v, want fallback", got)
	}
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v", got)
	}
	if got := Duration("garbage", time.Minute); got != time.Minute {
		t.Errorf("Duration(garbage) = %v, want fallback", got)
	}
}
