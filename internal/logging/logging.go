// Package logging sets up the plain-text run log used by scheduled commands.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// New returns a logger writing to stderr and, when path is set, appending
// to that file. The returned close function releases the file.
func New(prefix, path string, stderr io.Writer) (*log.Logger, func() error, error) {
	if path == "" {
		return log.New(stderr, prefix, log.LstdFlags), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return log.New(io.MultiWriter(stderr, f), prefix, log.LstdFlags), f.Close, nil
}
