// Package store implements the append-only JSON Lines stores, the progress
// ledger rebuilt from them, and the single-writer lock.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// #region appender

// Appender writes one JSON object per line and fsyncs after every record.
// Safe for concurrent use.
type Appender struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenAppender opens (or creates) a store in append mode.
func OpenAppender(path string) (*Appender, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Appender{path: path, f: f}, nil
}

// Path returns the store's file path.
func (a *Appender) Path() string {
	return a.path
}

// Append marshals v onto a single line and flushes it to disk.
func (a *Appender) Append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return fmt.Errorf("append %s: %w", a.path, os.ErrClosed)
	}
	if _, err := a.f.Write(line); err != nil {
		return fmt.Errorf("append %s: %w", a.path, err)
	}
	if err := a.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", a.path, err)
	}
	return nil
}

// Close closes the underlying file. Further appends fail.
func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// #endregion appender

// #region reader

// Scan calls fn for every non-blank line in the store. A missing file is not
// an error. Lines may be arbitrarily long.
func Scan(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open store %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if ferr := fn(trimmed); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read store %s: %w", path, err)
		}
	}
}

// ReadAll decodes every line of the store into T. Lines that fail to decode
// are skipped and counted.
func ReadAll[T any](path string) ([]T, int, error) {
	var out []T
	skipped := 0
	err := Scan(path, func(line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			skipped++
			return nil
		}
		out = append(out, v)
		return nil
	})
	return out, skipped, err
}

// #endregion reader
