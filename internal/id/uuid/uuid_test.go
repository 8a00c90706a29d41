// Package uuid includes tests for the run ID generator.
package uuid

import (
	"strings"
	"testing"
	"time"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if _, err := goUUID.Parse(id1); err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
}

// TestGeneratorNewRunID checks the timestamp prefix and uniqueness.
func TestGeneratorNewRunID(t *testing.T) {
	t.Parallel()

	gen := New()
	at := time.Date(2026, 8, 31, 10, 15, 3, 0, time.UTC)
	id, err := gen.NewRunID(at)
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if !strings.HasPrefix(id, "run_20260831T101503_") {
		t.Fatalf("unexpected run id %s", id)
	}
	other, err := gen.NewRunID(at)
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if id == other {
		t.Fatalf("expected unique run IDs, got %s twice", id)
	}
}
