// Package manifest aggregates fetch outcomes into one audit record per
// run.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

// ErrFinalized is returned when Finalize is called twice.
var ErrFinalized = errors.New("manifest already finalized")

// SourceCounts tallies outcomes for one source tag. The invariant
// Fetched+Skipped+Failed+Deduped == targets submitted holds per source.
type SourceCounts struct {
	Fetched int `json:"fetched"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Deduped int `json:"deduped"`
}

// TargetError attributes an error to the target that produced it.
type TargetError struct {
	Source string `json:"source"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

// Manifest is the persisted per-run record.
type Manifest struct {
	RunID       string                   `json:"run_id"`
	StartedAt   time.Time                `json:"started_at"`
	EndedAt     time.Time                `json:"ended_at"`
	Parameters  map[string]any           `json:"parameters"`
	Sources     map[string]*SourceCounts `json:"per_source_counts"`
	OutputPaths []string                 `json:"output_paths"`
	Errors      []TargetError            `json:"errors"`
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// Recorder mutates the manifest incrementally during a run and persists
// it exactly once at run end. Finalize is safe to call from a deferred
// cleanup path so even aborted runs leave a manifest.
type Recorder struct {
	mu        sync.Mutex
	m         Manifest
	path      string
	clock     Clock
	finalized bool
}

// NewRecorder starts a manifest for runID, persisted under dir.
func NewRecorder(runID string, params map[string]any, dir string, clock Clock) *Recorder {
	return &Recorder{
		m: Manifest{
			RunID:      runID,
			StartedAt:  clock.Now(),
			Parameters: params,
			Sources:    make(map[string]*SourceCounts),
		},
		path:  filepath.Join(dir, fmt.Sprintf("manifest_%s.json", runID)),
		clock: clock,
	}
}

// Record folds one outcome into the per-source counters and, for failures,
// the ordered error list.
func (r *Recorder) Record(o fetch.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts, ok := r.m.Sources[o.Target.Source]
	if !ok {
		counts = &SourceCounts{}
		r.m.Sources[o.Target.Source] = counts
	}

	switch {
	case o.Status == fetch.StatusSuccess:
		counts.Fetched++
	case o.Status == fetch.StatusSkipped && o.SkipReason == fetch.SkipReasonDuplicate:
		counts.Deduped++
	case o.Status == fetch.StatusSkipped:
		counts.Skipped++
	default:
		counts.Failed++
	}

	if o.Err != nil {
		r.m.Errors = append(r.m.Errors, TargetError{
			Source: o.Target.Source,
			URL:    o.Target.URL,
			Error:  o.Err.Error(),
		})
	}
}

// AddOutput appends a produced output path, once per distinct path.
func (r *Recorder) AddOutput(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.m.OutputPaths {
		if p == path {
			return
		}
	}
	r.m.OutputPaths = append(r.m.OutputPaths, path)
}

// Counts returns a copy of the tallies for one source.
func (r *Recorder) Counts(source string) SourceCounts {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m.Sources[source]; ok {
		return *c
	}
	return SourceCounts{}
}

// Finalize stamps the end time and writes the manifest to disk. It
// succeeds exactly once; later calls return ErrFinalized.
func (r *Recorder) Finalize() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return "", ErrFinalized
	}
	r.finalized = true
	r.m.EndedAt = r.clock.Now()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		return "", fmt.Errorf("create runs dir: %w", err)
	}
	data, err := json.MarshalIndent(r.m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o640); err != nil {
		return "", fmt.Errorf("write manifest %s: %w", r.path, err)
	}
	return r.path, nil
}
