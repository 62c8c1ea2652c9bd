// FILE: callwisp/src/internal/sink/local.go
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// appendFile is a lazily opened, mutex-guarded append-only file shared by the local file sinks
type appendFile struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func newAppendFile(path string) (*appendFile, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &appendFile{path: path}, nil
}

// write runs fn with the open file and a flag telling whether the file was empty before.
// Writes after close are ignored.
func (a *appendFile) write(fn func(f *os.File, empty bool) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}

	if a.file == nil {
		f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", a.path, err)
		}
		a.file = f
	}

	info, err := a.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", a.path, err)
	}
	return fn(a.file, info.Size() == 0)
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
