package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.HTTP.TimeoutSeconds)
	assert.Equal(t, 3, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 12, cfg.Politeness.RequestsPerMinute)
	assert.Equal(t, 2, cfg.Politeness.Concurrency)
	assert.Contains(t, cfg.Politeness.UserAgent, "fetchwright/")
	assert.Equal(t, "file", cfg.Dedup.Backend)
	assert.False(t, cfg.Ops.Enabled)
	assert.True(t, cfg.Sources.GovSearch.Enabled)
	assert.Equal(t, 3, cfg.Sources.GovSearch.MaxPages)
	assert.True(t, cfg.Sources.WorldBank.Enabled)
	assert.Len(t, cfg.Sources.WorldBank.Indicators, 4)
	assert.Equal(t, time.Now().Year(), cfg.Sources.WorldBank.EndYear)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
http:
  max_attempts: 5
politeness:
  requests_per_minute: 30
dedup:
  backend: sqlite
  path: custom/seen.db
sources:
  gov_search:
    query: custom query
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.HTTP.MaxAttempts)
	assert.Equal(t, 30, cfg.Politeness.RequestsPerMinute)
	assert.Equal(t, "sqlite", cfg.Dedup.Backend)
	assert.Equal(t, "custom/seen.db", cfg.Dedup.Path)
	assert.Equal(t, "custom query", cfg.Sources.GovSearch.Query)
	// Untouched keys keep defaults.
	assert.Equal(t, 15, cfg.HTTP.TimeoutSeconds)
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero max attempts",
			mutate: func(c *Config) { c.HTTP.MaxAttempts = 0 },
			want:   "max_attempts",
		},
		{
			name:   "zero timeout",
			mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 },
			want:   "timeout_seconds",
		},
		{
			name:   "negative rpm",
			mutate: func(c *Config) { c.Politeness.RequestsPerMinute = -1 },
			want:   "requests_per_minute",
		},
		{
			name:   "empty user agent",
			mutate: func(c *Config) { c.Politeness.UserAgent = "" },
			want:   "user_agent",
		},
		{
			name:   "unknown dedup backend",
			mutate: func(c *Config) { c.Dedup.Backend = "redis" },
			want:   "dedup.backend",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	c := HTTPConfig{TimeoutSeconds: 15, BackoffBaseMs: 500, BackoffCapMs: 15000}
	assert.Equal(t, 15*time.Second, c.Timeout())
	assert.Equal(t, 500*time.Millisecond, c.BackoffBase())
	assert.Equal(t, 15*time.Second, c.BackoffCap())
}
