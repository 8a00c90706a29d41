package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fetchwright/fetchwright/internal/app"
	"github.com/fetchwright/fetchwright/internal/config"
	"github.com/fetchwright/fetchwright/internal/logging"
)

// newCollectCmd creates the 'collect' subcommand, which executes one
// end-to-end collection run across all enabled sources.
func newCollectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Runs one collection pass across all configured sources",
		Long: `Fetches every configured target, in order per source, under the
politeness and compliance policies in the configuration. Interrupting the
run (Ctrl-C) stops issuing new fetches but still writes the run manifest.`,
		RunE: runCollectCommand,
	}
	return cmd
}

func runCollectCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize run: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("run starting", zap.String("run_id", a.RunID()))
	if err := a.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted; manifest flushed")
			return nil
		}
		return fmt.Errorf("run collection: %w", err)
	}
	logger.Info("run finished", zap.String("run_id", a.RunID()))
	return nil
}
