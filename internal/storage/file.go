package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wablast/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one append-only
// JSON Lines file of send records.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	file *os.File
}

type sendLine struct {
	At       string `json:"at"`
	BatchID  string `json:"batch_id"`
	Phone    string `json:"phone"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	TookMS   int64  `json:"took_ms"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if filepath.Ext(path) == "" {
		path += ".jsonl"
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, file: f}, nil
}

func (s *fileStore) AppendSend(ctx context.Context, rec SendRecord) error {
	if s == nil {
		return ErrDisabled
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	line := sendLine{
		At:       rec.At.Format(time.RFC3339Nano),
		BatchID:  rec.BatchID,
		Phone:    rec.Phone,
		Status:   rec.Status,
		Attempts: rec.Attempts,
		Error:    rec.Error,
		TookMS:   rec.TookMS,
	}
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrDisabled
	}
	_, err = s.file.Write(b)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
