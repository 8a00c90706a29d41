// Package sink persists raw response bodies for downstream parsers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/fetch"
)

// FileSink writes each successful outcome as a body file plus a metadata
// JSON next to it, under root/<run_id>/<source>/. Parsing the bytes is a
// downstream concern; the sink only guarantees the parser has everything
// it needs without re-fetching.
type FileSink struct {
	root   string
	runID  string
	hasher fetch.Hasher
	logger *zap.Logger
}

// meta is the sidecar record written per body.
type meta struct {
	URL         string            `json:"url"`
	Source      string            `json:"source"`
	HTTPStatus  int               `json:"http_status"`
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attempts    int               `json:"attempts"`
	SavedAt     time.Time         `json:"saved_at"`
}

// New creates a sink rooted at dir for one run.
func New(dir, runID string, hasher fetch.Hasher, logger *zap.Logger) (*FileSink, error) {
	root := filepath.Join(dir, runID)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FileSink{root: root, runID: runID, hasher: hasher, logger: logger}, nil
}

// Save writes the outcome's body and metadata, returning the directory
// the source's artifacts live in.
func (s *FileSink) Save(ctx context.Context, o fetch.Outcome) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if len(o.Body) == 0 {
		return "", fmt.Errorf("empty body for %s", o.Target.URL)
	}

	name, err := s.hasher.Hash([]byte(o.Target.URL))
	if err != nil {
		return "", fmt.Errorf("hash body name: %w", err)
	}
	name = name[:16]

	dir := filepath.Join(s.root, o.Target.Source)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create source dir %s: %w", dir, err)
	}

	bodyPath := filepath.Join(dir, name+".raw")
	if err := os.WriteFile(bodyPath, o.Body, 0o640); err != nil {
		return "", fmt.Errorf("write body %s: %w", bodyPath, err)
	}

	m := meta{
		URL:         o.Target.URL,
		Source:      o.Target.Source,
		HTTPStatus:  o.HTTPStatus,
		ContentType: o.ContentType,
		Metadata:    o.Target.Metadata,
		Attempts:    len(o.Attempts),
		SavedAt:     time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal body meta: %w", err)
	}
	metaPath := filepath.Join(dir, name+".json")
	if err := os.WriteFile(metaPath, data, 0o640); err != nil {
		return "", fmt.Errorf("write body meta %s: %w", metaPath, err)
	}

	s.logger.Debug("body saved",
		zap.String("url", o.Target.URL),
		zap.String("path", bodyPath))
	return dir, nil
}
