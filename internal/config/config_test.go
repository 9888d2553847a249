package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
workers: 4
rate:
  cap: 10
  window: 30s
retry:
  max_attempts: 5
  base_delay: 2s
transport:
  driver: whatsapp
  whatsapp:
    token: secret
    phone_number_id: "12345"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 {
		t.Fatalf("Workers = %d", cfg.Workers)
	}
	if cfg.Rate.Cap != 10 || cfg.RateWindow() != 30*time.Second {
		t.Fatalf("rate = %+v", cfg.Rate)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("MaxAttempts = %d", cfg.Retry.MaxAttempts)
	}
	// defaults filled for omitted fields
	if cfg.Retry.MaxDelay != "60s" {
		t.Fatalf("MaxDelay = %q, want default", cfg.Retry.MaxDelay)
	}
	if cfg.Progress.EventsPerSec != 10 || cfg.Progress.FailureLogSize != 50 {
		t.Fatalf("progress = %+v", cfg.Progress)
	}
	if cfg.Transport.WhatsApp == nil || cfg.Transport.WhatsApp.Token != "secret" {
		t.Fatalf("whatsapp = %+v", cfg.Transport.WhatsApp)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json",
		`{"rate":{"cap":1,"window":"1s"},"retry":{},"transport":{"driver":"telegram","telegram":{"token":"x"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Driver != "telegram" {
		t.Fatalf("driver = %q", cfg.Transport.Driver)
	}
	if cfg.Workers != 2 {
		t.Fatalf("Workers default = %d, want 2", cfg.Workers)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
rate: {cap: 5, window: 10s}
retry: {}
transport: {driver: whatsapp}
ratee: {cap: 5}
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	t.Setenv("WABLAST_WA_TOKEN", "env-token")
	path := writeConfig(t, "config.yaml", `
rate: {cap: 5, window: 10s}
retry: {}
transport: {driver: whatsapp}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.WhatsApp == nil || cfg.Transport.WhatsApp.Token != "env-token" {
		t.Fatalf("whatsapp = %+v, want env token", cfg.Transport.WhatsApp)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	mutate := func(f func(*Config)) *Config {
		c := Default()
		f(c)
		return c
	}
	tests := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"workers too high", mutate(func(c *Config) { c.Workers = 100 }), "workers"},
		{"workers zero", mutate(func(c *Config) { c.Workers = 0 }), "workers"},
		{"cap zero", mutate(func(c *Config) { c.Rate.Cap = 0 }), "rate.cap"},
		{"bad window", mutate(func(c *Config) { c.Rate.Window = "fast" }), "rate.window"},
		{"zero window", mutate(func(c *Config) { c.Rate.Window = "0s" }), "rate.window"},
		{"attempts zero", mutate(func(c *Config) { c.Retry.MaxAttempts = 0 }), "max_attempts"},
		{"bad base delay", mutate(func(c *Config) { c.Retry.BaseDelay = "soon" }), "base_delay"},
		{"unknown driver", mutate(func(c *Config) { c.Transport.Driver = "smoke-signal" }), "driver"},
		{"bad busy timeout", mutate(func(c *Config) {
			c.Storage = &StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "later"}
		}), "busy_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", "1m30s"); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if _, err := ParseDurationField("x", "yesterday"); err == nil {
		t.Fatal("garbage accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}

func TestManagerLoadAndGet(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
rate: {cap: 3, window: 5s}
retry: {}
transport: {driver: whatsapp}
`)
	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rate.Cap != 3 {
		t.Fatalf("cap = %d", cfg.Rate.Cap)
	}
	if m.Get() == nil || m.Get().Rate.Cap != 3 {
		t.Fatal("Get should return the committed config")
	}
}

func TestManagerPublish(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
rate: {cap: 3, window: 5s}
retry: {}
transport: {driver: whatsapp}
`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := Default()
	first.Rate.Cap = 7
	second := Default()
	second.Rate.Cap = 9

	// buffer is 1; the older update is dropped, the newest wins
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got.Rate.Cap != 9 {
		t.Fatalf("cap = %d, want newest (9)", got.Rate.Cap)
	}
}
