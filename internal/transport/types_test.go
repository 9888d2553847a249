package transport

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"transient", Transient(base), ClassTransient},
		{"permanent", Permanent(base), ClassPermanent},
		{"wrapped permanent", fmt.Errorf("send: %w", Permanent(base)), ClassPermanent},
		{"raw error defaults to transient", base, ClassTransient},
		{"nil defaults to transient", nil, ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendErrorUnwrap(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	se := &SendError{Class: ClassPermanent, StatusCode: 400, Err: base}
	if !errors.Is(se, base) {
		t.Fatal("Unwrap lost the cause")
	}
	msg := se.Error()
	if !strings.Contains(msg, "permanent") || !strings.Contains(msg, "400") {
		t.Fatalf("message = %q", msg)
	}
}
