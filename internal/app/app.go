// Package app initializes and holds the long-lived services for one
// collection run, acting as the composition root for the fetch core.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/api"
	"github.com/fetchwright/fetchwright/internal/clock/system"
	"github.com/fetchwright/fetchwright/internal/config"
	"github.com/fetchwright/fetchwright/internal/dedup"
	"github.com/fetchwright/fetchwright/internal/fetch"
	"github.com/fetchwright/fetchwright/internal/hash/sha256"
	"github.com/fetchwright/fetchwright/internal/id/uuid"
	"github.com/fetchwright/fetchwright/internal/ledger"
	"github.com/fetchwright/fetchwright/internal/manifest"
	"github.com/fetchwright/fetchwright/internal/metrics"
	"github.com/fetchwright/fetchwright/internal/policy/ratelimit"
	"github.com/fetchwright/fetchwright/internal/sink"
	"github.com/fetchwright/fetchwright/internal/sources"
)

// App wires the fetch core for one run: ledger, dedup store, manifest
// recorder, robots gate, limiter, transport and orchestrator.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	ledger   *ledger.Ledger
	dedup    dedup.Store
	recorder *manifest.Recorder
	orch     *fetch.Orchestrator
	sink     *sink.FileSink
	ops      *api.Server
}

// New builds all services. It fails fast if any part of the audit trail
// (ledger file, dedup store) cannot be opened.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	clk := system.New()
	hasher := sha256.New()

	runID, err := uuid.New().NewRunID(clk.Now())
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	ledgerPath := filepath.Join(cfg.Output.LogsDir, fmt.Sprintf("requests_%s.csv", runID))
	led, err := ledger.Open(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("open request ledger: %w", err)
	}

	var store dedup.Store
	switch cfg.Dedup.Backend {
	case "sqlite":
		store, err = dedup.OpenSQLite(cfg.Dedup.Path)
	default:
		store, err = dedup.OpenFile(cfg.Dedup.Path)
	}
	if err != nil {
		_ = led.Close()
		return nil, fmt.Errorf("open dedup store: %w", err)
	}

	recorder := manifest.NewRecorder(runID, paramsSnapshot(cfg), cfg.Output.RunsDir, clk)
	// The ledger exists from this point on, so it belongs in the manifest
	// even when the run aborts before any source completes.
	recorder.AddOutput(ledgerPath)

	gate := fetch.NewRobotsGate(cfg.Politeness.UserAgent, cfg.HTTP.Timeout(), clk, logger)
	limiter := ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.Politeness.RequestsPerMinute})
	transport := fetch.NewRetryingTransport(fetch.TransportConfig{
		MaxAttempts: cfg.HTTP.MaxAttempts,
		BackoffBase: cfg.HTTP.BackoffBase(),
		BackoffCap:  cfg.HTTP.BackoffCap(),
		Timeout:     cfg.HTTP.Timeout(),
		UserAgent:   cfg.Politeness.UserAgent,
	}, led, clk, logger)

	orch := fetch.NewOrchestrator(gate, limiter, transport, store, recorder, hasher,
		cfg.Politeness.Concurrency, logger)

	fileSink, err := sink.New(cfg.Output.DataDir, runID, hasher, logger)
	if err != nil {
		_ = led.Close()
		_ = store.Close()
		return nil, fmt.Errorf("create body sink: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger.With(zap.String("run_id", runID)),
		runID:    runID,
		ledger:   led,
		dedup:    store,
		recorder: recorder,
		orch:     orch,
		sink:     fileSink,
	}
	if cfg.Ops.Enabled {
		a.ops = api.NewServer(cfg.Ops.Addr, a.logger)
	}
	return a, nil
}

// RunID returns the identifier all run artifacts are named after.
func (a *App) RunID() string {
	return a.runID
}

// Run executes every enabled source in order and finalizes the manifest,
// even when the run is canceled or aborts on a fatal persistence error.
func (a *App) Run(ctx context.Context) (runErr error) {
	if a.ops != nil {
		go a.ops.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.ops.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("ops server shutdown", zap.Error(err))
			}
		}()
	}

	defer func() {
		path, err := a.recorder.Finalize()
		if err != nil {
			a.logger.Error("manifest finalize failed", zap.Error(err))
			if runErr == nil {
				runErr = &fetch.PersistenceError{Op: "manifest finalize", Err: err}
			}
			return
		}
		a.logger.Info("manifest written", zap.String("path", path))
	}()

	batch, err := a.buildSources()
	if err != nil {
		return err
	}

	for _, src := range batch {
		a.logger.Info("collecting source",
			zap.String("source", src.Tag),
			zap.Int("targets", len(src.Targets)))

		for outcome := range a.orch.Run(ctx, src) {
			if outcome.Status != fetch.StatusSuccess {
				continue
			}
			dir, serr := a.sink.Save(ctx, outcome)
			if serr != nil {
				a.logger.Warn("body save failed",
					zap.String("url", outcome.Target.URL), zap.Error(serr))
				continue
			}
			a.recorder.AddOutput(dir)
		}

		if ferr := a.orch.Err(); ferr != nil {
			a.logger.Error("run aborted", zap.String("source", src.Tag), zap.Error(ferr))
			return ferr
		}

		counts := a.recorder.Counts(src.Tag)
		a.logger.Info("source finished",
			zap.String("source", src.Tag),
			zap.Int("fetched", counts.Fetched),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
			zap.Int("deduped", counts.Deduped))
	}

	return ctx.Err()
}

// Close releases the run's file handles.
func (a *App) Close() {
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("close ledger", zap.Error(err))
	}
	if err := a.dedup.Close(); err != nil {
		a.logger.Warn("close dedup store", zap.Error(err))
	}
}

func (a *App) buildSources() ([]fetch.Source, error) {
	var batch []fetch.Source

	if a.cfg.Sources.GovSearch.Enabled {
		src, err := sources.GovSearch(sources.GovSearchConfig{
			BaseURL:   a.cfg.Sources.GovSearch.BaseURL,
			Query:     a.cfg.Sources.GovSearch.Query,
			MaxPages:  a.cfg.Sources.GovSearch.MaxPages,
			PageSize:  a.cfg.Sources.GovSearch.PageSize,
			StartDate: a.cfg.Sources.GovSearch.StartDate,
			EndDate:   a.cfg.Sources.GovSearch.EndDate,
		})
		if err != nil {
			return nil, fmt.Errorf("build gov search source: %w", err)
		}
		batch = append(batch, src)
	}

	if a.cfg.Sources.WorldBank.Enabled {
		src, err := sources.WorldBank(sources.WorldBankConfig{
			BaseURL:    a.cfg.Sources.WorldBank.BaseURL,
			Country:    a.cfg.Sources.WorldBank.Country,
			Indicators: a.cfg.Sources.WorldBank.Indicators,
			StartYear:  a.cfg.Sources.WorldBank.StartYear,
			EndYear:    a.cfg.Sources.WorldBank.EndYear,
		})
		if err != nil {
			return nil, fmt.Errorf("build worldbank source: %w", err)
		}
		batch = append(batch, src)
	}

	return batch, nil
}

func paramsSnapshot(cfg config.Config) map[string]any {
	return map[string]any{
		"rpm":           cfg.Politeness.RequestsPerMinute,
		"user_agent":    cfg.Politeness.UserAgent,
		"concurrency":   cfg.Politeness.Concurrency,
		"timeout_sec":   cfg.HTTP.TimeoutSeconds,
		"max_attempts":  cfg.HTTP.MaxAttempts,
		"backoff_base":  cfg.HTTP.BackoffBase().String(),
		"backoff_cap":   cfg.HTTP.BackoffCap().String(),
		"dedup_backend": cfg.Dedup.Backend,
		"gov_search": map[string]any{
			"enabled":   cfg.Sources.GovSearch.Enabled,
			"query":     cfg.Sources.GovSearch.Query,
			"max_pages": cfg.Sources.GovSearch.MaxPages,
		},
		"worldbank": map[string]any{
			"enabled":    cfg.Sources.WorldBank.Enabled,
			"country":    cfg.Sources.WorldBank.Country,
			"indicators": cfg.Sources.WorldBank.Indicators,
			"start_year": cfg.Sources.WorldBank.StartYear,
			"end_year":   cfg.Sources.WorldBank.EndYear,
		},
	}
}
