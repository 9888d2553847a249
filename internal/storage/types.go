package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": append-only jsonl send log
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SendRecord is one terminal send result.
// Keep it compact and schema-stable.
type SendRecord struct {
	At       time.Time
	BatchID  string
	Phone    string
	Status   string
	Attempts int
	Error    string
	TookMS   int64
}
