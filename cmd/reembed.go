package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sqlpilot/sqlpilot/internal/app"
	"github.com/sqlpilot/sqlpilot/internal/config"
)

// runReembed re-embeds every stored knowledge record with the currently
// configured embedder. Needed after switching embedder model or dimension;
// until then retrieval quality degrades or dimension checks fail.
func runReembed() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	needed, err := a.Migrator.NeedsMigration(ctx)
	if err != nil {
		return fmt.Errorf("checking embedding config: %w", err)
	}
	if !needed {
		logger.Info("stored embeddings already match the configured embedder, nothing to do",
			"embedder", a.Embedder.Name(),
			"dimension", a.Embedder.Dimension(),
		)
		return nil
	}

	report, err := a.Migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("re-embedding knowledge: %w", err)
	}

	logger.Info("re-embedding complete",
		"total", report.Total,
		"migrated", report.Migrated,
		"skipped", report.Skipped,
	)
	return nil
}
