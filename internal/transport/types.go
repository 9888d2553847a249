// Package transport defines the send-capability boundary the dispatch engine
// consumes. Adapters (whatsapp, telegram) live in subpackages; the engine only
// sees the Sender interface and the closed error classification below.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Target identifies one recipient at the provider boundary. For WhatsApp this
// is an international phone number; for Telegram a numeric chat ID.
type Target struct {
	Identity string
}

// Attachment references image content to send alongside the text.
// Either URL (remote, WhatsApp) or Path (local file, Telegram) is set.
type Attachment struct {
	URL  string
	Path string
}

// Sender is the opaque remote send capability. Implementations must return
// either nil or an error classified at this boundary (see SendError); an
// unclassified error is treated as transient by the retry policy.
type Sender interface {
	Send(ctx context.Context, to Target, text string, att *Attachment) error
}

// ErrorClass is the closed transient/permanent classification produced once
// at the provider boundary and consumed downstream as plain data.
type ErrorClass int

const (
	// ClassTransient failures are worth retrying: timeouts, throttling,
	// provider 5xx.
	ClassTransient ErrorClass = iota
	// ClassPermanent failures will recur: invalid destination, policy
	// rejection, malformed content.
	ClassPermanent
)

func (c ErrorClass) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// SendError is a classified provider failure.
type SendError struct {
	Class      ErrorClass
	StatusCode int // HTTP status when applicable, 0 otherwise
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send failed (%s, status %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("send failed (%s): %v", e.Class, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable send failure.
func Transient(err error) *SendError {
	return &SendError{Class: ClassTransient, Err: err}
}

// Permanent wraps err as a non-retryable send failure.
func Permanent(err error) *SendError {
	return &SendError{Class: ClassPermanent, Err: err}
}

// Classify extracts the error class. Errors that don't carry a SendError are
// treated as transient (a raw network error is worth another try).
func Classify(err error) ErrorClass {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}
