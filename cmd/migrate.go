package cmd

import (
	"fmt"

	"github.com/sqlpilot/sqlpilot/db"
	"github.com/sqlpilot/sqlpilot/internal/config"
)

// runMigrate applies pending database schema migrations and exits.
func runMigrate() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("running database migrations", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database schema is up to date")
	return nil
}
