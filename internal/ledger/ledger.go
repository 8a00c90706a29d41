// Package ledger persists the append-only per-attempt request log.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("ledger closed")

var header = []string{"ts", "method", "url", "status", "elapsed_sec", "error", "robots_allowed"}

// Ledger writes one CSV row per physical fetch attempt, ordered by append
// time. Appends are serialized and flushed before returning so a crash
// never leaves a partial record; a failed append is a run-fatal condition
// for the caller.
type Ledger struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	closed bool
}

// Open creates (or truncates) the ledger file for a run and writes the
// header row.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	l := &Ledger{file: f, w: csv.NewWriter(f)}
	if err := l.w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write ledger header: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flush ledger header: %w", err)
	}
	return l, nil
}

// Append writes one attempt record and flushes it to the OS before
// returning.
func (l *Ledger) Append(a fetch.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	status := ""
	if a.Status != 0 {
		status = strconv.Itoa(a.Status)
	}
	method := a.Target.Method
	if method == "" {
		method = "GET"
	}
	row := []string{
		a.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		method,
		a.Target.URL,
		status,
		strconv.FormatFloat(a.Elapsed.Seconds(), 'f', 3, 64),
		a.Err,
		strconv.FormatBool(a.RobotsAllowed),
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write ledger row: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush ledger row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}
