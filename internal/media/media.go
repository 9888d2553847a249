// Package media validates batch attachments against the upload policy.
// Validation happens once, before the batch starts; a bad attachment is a
// configuration-level failure, not a per-recipient one.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Policy limits what may be attached to a batch.
type Policy struct {
	MaxBytes    int64
	AllowedExts []string
}

// DefaultPolicy matches the provider's image constraints: raster images only,
// at most 5 MiB.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:    5 * 1024 * 1024,
		AllowedExts: []string{".jpg", ".jpeg", ".png"},
	}
}

// ValidateFile checks a local attachment file against the policy.
func (p Policy) ValidateFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	ok := false
	for _, a := range p.AllowedExts {
		if ext == a {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("media: file type %q not allowed (want %s)", ext, strings.Join(p.AllowedExts, ", "))
	}

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("media: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("media: %s is a directory", path)
	}
	if p.MaxBytes > 0 && fi.Size() > p.MaxBytes {
		return fmt.Errorf("media: %s is %d bytes, exceeds limit of %d", path, fi.Size(), p.MaxBytes)
	}
	return nil
}
