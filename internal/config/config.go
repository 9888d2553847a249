package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Config is the full application configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Files may be YAML or JSON; YAML is normalized and decoded through the same
// strict JSON decoder so unknown keys are rejected in both formats.
type Config struct {
	Workers int `json:"workers,omitempty"`

	Rate      RateConfig      `json:"rate"`
	Retry     RetryConfig     `json:"retry"`
	Transport TransportConfig `json:"transport"`

	Progress   ProgressConfig   `json:"progress,omitempty"`
	Attachment AttachmentConfig `json:"attachment,omitempty"`
	Logging    LoggingConfig    `json:"logging,omitempty"`
	Storage    *StorageConfig   `json:"storage,omitempty"`

	// SendTimeout bounds one provider call. Use "0s" to disable.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// RateConfig is the hard admission cap: at most Cap sends within any trailing
// Window, across all workers combined.
//
// Defaults: cap 20 per "60s".
type RateConfig struct {
	Cap    int    `json:"cap,omitempty"`
	Window string `json:"window,omitempty"`
}

// RetryConfig controls the per-recipient retry policy.
//
// MaxAttempts counts total attempts (first try included). Backoff between
// retries is exponential from BaseDelay up to MaxDelay.
//
// Defaults: max_attempts 3, base_delay "5s", max_delay "60s".
type RetryConfig struct {
	MaxAttempts int    `json:"max_attempts,omitempty"`
	BaseDelay   string `json:"base_delay,omitempty"`
	MaxDelay    string `json:"max_delay,omitempty"`
}

// TransportConfig selects and configures the send capability.
type TransportConfig struct {
	// Driver is "whatsapp" (default) or "telegram".
	Driver   string          `json:"driver,omitempty"`
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type WhatsAppConfig struct {
	BaseURL       string `json:"base_url,omitempty"`
	Token         string `json:"token,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ProgressConfig tunes the progress tracker's push side.
//
// EventsPerSec throttles aggregate progress events (terminal per-job events
// are never throttled). FailureLogSize bounds the recent-failure list.
type ProgressConfig struct {
	EventsPerSec   int `json:"events_per_sec,omitempty"`
	FailureLogSize int `json:"failure_log_size,omitempty"`
}

type AttachmentConfig struct {
	MaxBytes     int64    `json:"max_bytes,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional send-log persistence.
//
// Example:
//
//	storage: { driver: "file", path: "./wablast_sends" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Default returns a config with every documented default filled in.
func Default() *Config {
	console := true
	return &Config{
		Workers: 2,
		Rate:    RateConfig{Cap: 20, Window: "60s"},
		Retry:   RetryConfig{MaxAttempts: 3, BaseDelay: "5s", MaxDelay: "60s"},
		Transport: TransportConfig{
			Driver: "whatsapp",
		},
		Progress:    ProgressConfig{EventsPerSec: 10, FailureLogSize: 50},
		Attachment:  AttachmentConfig{MaxBytes: 5 * 1024 * 1024, AllowedTypes: []string{".jpg", ".jpeg", ".png"}},
		Logging:     LoggingConfig{Level: "info", Console: &console},
		SendTimeout: "30s",
	}
}

// Load reads, decodes and validates the config file, filling defaults for
// omitted fields. Token fields fall back to WABLAST_WA_TOKEN and
// WABLAST_TG_TOKEN so credentials can stay out of the file.
func Load(path string) (*Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes the file without defaults or validation.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, _, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.Rate.Cap <= 0 {
		c.Rate.Cap = d.Rate.Cap
	}
	if strings.TrimSpace(c.Rate.Window) == "" {
		c.Rate.Window = d.Rate.Window
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if strings.TrimSpace(c.Retry.BaseDelay) == "" {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if strings.TrimSpace(c.Retry.MaxDelay) == "" {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if strings.TrimSpace(c.Transport.Driver) == "" {
		c.Transport.Driver = d.Transport.Driver
	}
	if c.Progress.EventsPerSec <= 0 {
		c.Progress.EventsPerSec = d.Progress.EventsPerSec
	}
	if c.Progress.FailureLogSize <= 0 {
		c.Progress.FailureLogSize = d.Progress.FailureLogSize
	}
	if c.Attachment.MaxBytes <= 0 {
		c.Attachment.MaxBytes = d.Attachment.MaxBytes
	}
	if len(c.Attachment.AllowedTypes) == 0 {
		c.Attachment.AllowedTypes = d.Attachment.AllowedTypes
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Console == nil {
		c.Logging.Console = d.Logging.Console
	}
	if strings.TrimSpace(c.SendTimeout) == "" {
		c.SendTimeout = d.SendTimeout
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WABLAST_WA_TOKEN"); v != "" {
		if c.Transport.WhatsApp == nil {
			c.Transport.WhatsApp = &WhatsAppConfig{}
		}
		if c.Transport.WhatsApp.Token == "" {
			c.Transport.WhatsApp.Token = v
		}
	}
	if v := os.Getenv("WABLAST_TG_TOKEN"); v != "" {
		if c.Transport.Telegram == nil {
			c.Transport.Telegram = &TelegramConfig{}
		}
		if c.Transport.Telegram.Token == "" {
			c.Transport.Telegram.Token = v
		}
	}
}

// Validate rejects parameter combinations the engine cannot run with.
// A validation failure is fatal at startup, before any send.
func (c *Config) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("config: workers must be in 1..64, got %d", c.Workers)
	}
	if c.Rate.Cap < 1 {
		return fmt.Errorf("config: rate.cap must be >= 1, got %d", c.Rate.Cap)
	}
	w, err := ParseDurationField("rate.window", c.Rate.Window)
	if err != nil {
		return err
	}
	if w <= 0 {
		return fmt.Errorf("config: rate.window must be > 0")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if _, err := ParseDurationField("retry.base_delay", c.Retry.BaseDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("retry.max_delay", c.Retry.MaxDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("send_timeout", c.SendTimeout); err != nil {
		return err
	}
	switch strings.ToLower(c.Transport.Driver) {
	case "whatsapp", "telegram":
	default:
		return fmt.Errorf("config: unknown transport driver %q", c.Transport.Driver)
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// RateWindow returns the parsed rate window. Call only after Validate.
func (c *Config) RateWindow() time.Duration {
	d, _ := ParseDurationOrDefault("rate.window", c.Rate.Window, time.Minute)
	return d
}
