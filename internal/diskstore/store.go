// Package diskstore persists the canonical universe document on the local
// filesystem. It is a byte-sequence primitive: no hashing, no validation.
package diskstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ErrNotFound is returned by Read when no document has ever been written to
// the path.
var ErrNotFound = errors.New("document not found")

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the absolute target path of this store.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Read() ([]byte, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return raw, nil
}

// Write replaces the document atomically: content lands in a temporary file
// first and is renamed over the target, so a failed write can never leave a
// truncated document behind.
func (s *Store) Write(raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
