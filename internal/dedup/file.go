package dedup

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps the fingerprint set in a line-oriented text file, one
// fingerprint per line. The whole set loads at open; new fingerprints are
// appended and flushed as they are marked, so an interrupted run never
// loses already-recorded fingerprints.
type FileStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// OpenFile loads (or creates) the fingerprint file at path.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create dedup dir: %w", err)
	}

	seen := make(map[string]struct{})
	existing, err := os.Open(path)
	switch {
	case err == nil:
		scanner := bufio.NewScanner(existing)
		for scanner.Scan() {
			fp := strings.TrimSpace(scanner.Text())
			if fp != "" {
				seen[fp] = struct{}{}
			}
		}
		scanErr := scanner.Err()
		if cerr := existing.Close(); cerr != nil && scanErr == nil {
			scanErr = cerr
		}
		if scanErr != nil {
			return nil, fmt.Errorf("load dedup set %s: %w", path, scanErr)
		}
	case errors.Is(err, os.ErrNotExist):
		// First run, empty set.
	default:
		return nil, fmt.Errorf("open dedup set %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open dedup set for append: %w", err)
	}
	return &FileStore{seen: seen, file: f, w: bufio.NewWriter(f)}, nil
}

// Seen reports whether the fingerprint is in the set.
func (s *FileStore) Seen(fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[fingerprint]
	return ok, nil
}

// Mark adds the fingerprint. Marking an already-seen fingerprint is a
// no-op.
func (s *FileStore) Mark(fingerprint string) error {
	_, err := s.MarkIfNew(fingerprint)
	return err
}

// MarkIfNew marks the fingerprint and reports whether it was unseen.
func (s *FileStore) MarkIfNew(fingerprint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.New("dedup store closed")
	}
	if _, ok := s.seen[fingerprint]; ok {
		return false, nil
	}
	if _, err := s.w.WriteString(fingerprint + "\n"); err != nil {
		return false, fmt.Errorf("append fingerprint: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return false, fmt.Errorf("flush fingerprint: %w", err)
	}
	s.seen[fingerprint] = struct{}{}
	return true, nil
}

// Close flushes and closes the backing file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("flush dedup set: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close dedup set: %w", err)
	}
	return nil
}
