package dispatch

import (
	"errors"
	"testing"
	"time"

	"wablast/internal/transport"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	pol := RetryPolicy{MaxAttempts: 3, Base: time.Second, MaxDelay: time.Minute}
	transient := transport.Transient(errors.New("timeout"))
	permanent := transport.Permanent(errors.New("bad number"))

	tests := []struct {
		name     string
		err      error
		attempts int
		want     Verdict
	}{
		{"transient first attempt", transient, 1, VerdictRetry},
		{"transient second attempt", transient, 2, VerdictRetry},
		{"transient at ceiling", transient, 3, VerdictExhaust},
		{"transient past ceiling", transient, 4, VerdictExhaust},
		{"permanent first attempt", permanent, 1, VerdictExhaust},
		{"permanent mid run", permanent, 2, VerdictExhaust},
		{"unclassified counts as transient", errors.New("connection reset"), 1, VerdictRetry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, delay := pol.Decide(tt.err, tt.attempts)
			if got != tt.want {
				t.Fatalf("Decide(%v, %d) = %v, want %v", tt.err, tt.attempts, got, tt.want)
			}
			if got == VerdictRetry && delay <= 0 {
				t.Fatalf("retry verdict with delay %v", delay)
			}
			if got == VerdictExhaust && delay != 0 {
				t.Fatalf("exhaust verdict with delay %v", delay)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	pol := RetryPolicy{MaxAttempts: 10, Base: time.Second, MaxDelay: 8 * time.Second}

	// jitter is 0.7..1.3 around base*2^(attempt-1), capped at MaxDelay
	for attempt := 1; attempt <= 8; attempt++ {
		raw := time.Second << (attempt - 1)
		if raw > 8*time.Second {
			raw = 8 * time.Second
		}
		lo := time.Duration(float64(raw) * 0.7)
		for i := 0; i < 20; i++ {
			d := pol.backoff(attempt)
			if d < lo {
				t.Fatalf("attempt %d: backoff %v below jitter floor %v", attempt, d, lo)
			}
			if d > 8*time.Second {
				t.Fatalf("attempt %d: backoff %v above MaxDelay", attempt, d)
			}
		}
	}
}

func TestBackoffDefaults(t *testing.T) {
	t.Parallel()

	// zero-valued policy falls back to sane delays rather than busy-looping
	var pol RetryPolicy
	d := pol.backoff(1)
	if d < time.Second || d > time.Minute {
		t.Fatalf("default backoff = %v", d)
	}
}
