package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one duration-valued config field. path names the
// field in error messages ("rate.window", "retry.base_delay", ...). An empty
// value parses to zero so optional fields can stay omitted; negatives are
// rejected because no wablast duration (window, backoff, send timeout) means
// anything below zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("config: %s: bad duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("config: %s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField for fields whose omission
// means "use the documented default", e.g. rate.window falling back to one
// minute.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
