// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob the collector accepts, resolved from file,
// environment and flags before any component sees it.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Output     OutputConfig     `mapstructure:"output"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Ops        OpsConfig        `mapstructure:"ops"`
	Sources    SourcesConfig    `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig configures the retrying transport.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
	BackoffCapMs   int `mapstructure:"backoff_cap_ms"`
}

// PolitenessConfig governs robots handling and per-domain pacing.
type PolitenessConfig struct {
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	UserAgent         string `mapstructure:"user_agent"`
	Concurrency       int    `mapstructure:"concurrency"`
}

// OutputConfig sets where run artifacts land.
type OutputConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogsDir string `mapstructure:"logs_dir"`
	RunsDir string `mapstructure:"runs_dir"`
}

// DedupConfig selects the fingerprint store backend.
type DedupConfig struct {
	Backend string `mapstructure:"backend"` // "file" or "sqlite"
	Path    string `mapstructure:"path"`
}

// OpsConfig controls the optional health/metrics listener.
type OpsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// SourcesConfig parameterizes the two collection sources.
type SourcesConfig struct {
	GovSearch GovSearchConfig `mapstructure:"gov_search"`
	WorldBank WorldBankConfig `mapstructure:"worldbank"`
}

// GovSearchConfig configures the listing source.
type GovSearchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	Query     string `mapstructure:"query"`
	MaxPages  int    `mapstructure:"max_pages"`
	PageSize  int    `mapstructure:"page_size"`
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// WorldBankConfig configures the statistics API source.
type WorldBankConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	BaseURL    string   `mapstructure:"base_url"`
	Country    string   `mapstructure:"country"`
	Indicators []string `mapstructure:"indicators"`
	StartYear  int      `mapstructure:"start_year"`
	EndYear    int      `mapstructure:"end_year"`
}

// Load builds a Config from disk and environment. An empty path skips the
// config file and uses defaults plus FETCHWRIGHT_* environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FETCHWRIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base_ms", 500)
	v.SetDefault("http.backoff_cap_ms", 15000)

	v.SetDefault("politeness.requests_per_minute", 12)
	v.SetDefault("politeness.user_agent",
		"fetchwright/1.0 (+https://github.com/fetchwright/fetchwright)")
	v.SetDefault("politeness.concurrency", 2)

	v.SetDefault("output.data_dir", "data")
	v.SetDefault("output.logs_dir", "logs")
	v.SetDefault("output.runs_dir", "runs")

	v.SetDefault("dedup.backend", "file")
	v.SetDefault("dedup.path", "data/.seen_fingerprints")

	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.addr", ":9090")

	v.SetDefault("sources.gov_search.enabled", true)
	v.SetDefault("sources.gov_search.query", "金融 五篇 大文章")
	v.SetDefault("sources.gov_search.max_pages", 3)
	v.SetDefault("sources.gov_search.page_size", 20)

	v.SetDefault("sources.worldbank.enabled", true)
	v.SetDefault("sources.worldbank.country", "CHN")
	v.SetDefault("sources.worldbank.indicators", []string{
		"IP.PAT.RESD",
		"EN.ATM.CO2E.PC",
		"SP.POP.65UP.TO.ZS",
		"IT.NET.USER.ZS",
	})
	v.SetDefault("sources.worldbank.start_year", 2000)
	v.SetDefault("sources.worldbank.end_year", time.Now().Year())
}

// Validate rejects configurations no component could run with.
func (c Config) Validate() error {
	if c.HTTP.MaxAttempts < 1 {
		return fmt.Errorf("http.max_attempts must be >= 1, got %d", c.HTTP.MaxAttempts)
	}
	if c.HTTP.TimeoutSeconds < 1 {
		return fmt.Errorf("http.timeout_seconds must be >= 1, got %d", c.HTTP.TimeoutSeconds)
	}
	if c.Politeness.RequestsPerMinute < 0 {
		return fmt.Errorf("politeness.requests_per_minute must be >= 0, got %d",
			c.Politeness.RequestsPerMinute)
	}
	if c.Politeness.UserAgent == "" {
		return fmt.Errorf("politeness.user_agent must not be empty")
	}
	switch c.Dedup.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("dedup.backend must be file or sqlite, got %q", c.Dedup.Backend)
	}
	return nil
}

// Timeout returns the transport timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay as a duration.
func (c HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns the maximum retry delay as a duration.
func (c HTTPConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapMs) * time.Millisecond
}
