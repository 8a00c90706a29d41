package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/config"
	"github.com/fetchwright/fetchwright/internal/manifest"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Output.DataDir = filepath.Join(dir, "data")
	cfg.Output.LogsDir = filepath.Join(dir, "logs")
	cfg.Output.RunsDir = filepath.Join(dir, "runs")
	cfg.Dedup.Path = filepath.Join(dir, "seen")
	return cfg
}

func readManifest(t *testing.T, cfg config.Config, runID string) manifest.Manifest {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(cfg.Output.RunsDir,
		fmt.Sprintf("manifest_%s.json", runID)))
	require.NoError(t, err)
	var m manifest.Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestRunRecordsLedgerPathEvenWhenAborted(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.WorldBank.Enabled = false
	// A hostless base URL makes source construction fail, aborting the run
	// before any source produces output.
	cfg.Sources.GovSearch.BaseURL = "/s.htm"

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.Error(t, a.Run(context.Background()))

	m := readManifest(t, cfg, a.RunID())
	ledgerPath := filepath.Join(cfg.Output.LogsDir,
		fmt.Sprintf("requests_%s.csv", a.RunID()))
	assert.Contains(t, m.OutputPaths, ledgerPath,
		"the ledger exists from run start and must survive an abort")
	assert.Equal(t, a.RunID(), m.RunID)
}

func TestRunWithNoEnabledSourcesStillWritesManifest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.GovSearch.Enabled = false
	cfg.Sources.WorldBank.Enabled = false

	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	m := readManifest(t, cfg, a.RunID())
	assert.Len(t, m.OutputPaths, 1, "only the ledger was produced")
	assert.False(t, m.EndedAt.IsZero())
}
