package ledger

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

func sampleAttempt(url string, status int, errText string) fetch.Attempt {
	return fetch.Attempt{
		Target:        fetch.Target{URL: url, Method: "GET", Domain: "example.com", Source: "s"},
		Number:        1,
		StartedAt:     time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Elapsed:       1500 * time.Millisecond,
		Status:        status,
		Err:           errText,
		RobotsAllowed: true,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read ledger csv: %v", err)
	}
	return rows
}

func TestLedgerAppendsOrderedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "requests_run1.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := l.Append(sampleAttempt("https://example.com/1", 200, "")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := l.Append(sampleAttempt("https://example.com/2", 0, "connection reset")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	wantHeader := []string{"ts", "method", "url", "status", "elapsed_sec", "error", "robots_allowed"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header col %d = %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[1][2] != "https://example.com/1" || rows[1][3] != "200" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[1][4] != "1.500" {
		t.Fatalf("elapsed_sec = %q, want 1.500", rows[1][4])
	}
	if rows[2][3] != "" || rows[2][5] != "connection reset" {
		t.Fatalf("unexpected error row %v", rows[2])
	}
}

func TestLedgerAppendAfterClose(t *testing.T) {
	t.Parallel()

	l, err := Open(filepath.Join(t.TempDir(), "requests.csv"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Append(sampleAttempt("https://example.com", 200, "")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestLedgerSerializesConcurrentAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "requests.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := l.Append(sampleAttempt("https://example.com/x", 200, "")); err != nil {
					t.Errorf("append: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readRows(t, path)
	if got := len(rows) - 1; got != writers*perWriter {
		t.Fatalf("expected %d rows without interleaving, got %d", writers*perWriter, got)
	}
	for i, row := range rows {
		if len(row) != 7 {
			t.Fatalf("row %d has %d columns: %v", i, len(row), row)
		}
	}
}
