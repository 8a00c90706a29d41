// Package uuid provides run ID generation helpers.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewRunID returns a run identifier with a sortable timestamp prefix,
// e.g. run_20260831T101503_018f3c2e. Run artifacts (ledger, manifest,
// output dirs) are named after it.
func (g Generator) NewRunID(now time.Time) (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("run_%s_%s", now.UTC().Format("20060102T150405"), id[:8]), nil
}
