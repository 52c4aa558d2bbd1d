package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlpilot/sqlpilot/internal/embed"
)

// Migrator re-embeds every stored record when the configured embedder
// changes, e.g. after switching embedding models.
//
// Two migration shapes exist:
//   - Same dimension (model rename or compatible model swap): records that
//     fail to re-embed are skipped and counted; old vectors remain valid
//     coordinates in a space of the right dimensionality.
//   - Dimension change: a partially migrated store would mix incomparable
//     vectors, so any re-embedding failure aborts the migration before a
//     single vector is written.
type Migrator struct {
	store    Store
	embedder embed.Embedder
	logger   *slog.Logger
}

// Report summarizes a completed migration.
type Report struct {
	Total    int // records examined
	Migrated int // records re-embedded and written
	Skipped  int // records left with their old embedding (same-dimension only)
}

// NewMigrator creates a Migrator targeting the given embedder.
func NewMigrator(store Store, embedder embed.Embedder, logger *slog.Logger) (*Migrator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{store: store, embedder: embedder, logger: logger}, nil
}

// NeedsMigration reports whether the store's vectors were produced by a
// different embedder than the configured one. A store with no config yet
// (never written to) needs no migration.
func (m *Migrator) NeedsMigration(ctx context.Context) (bool, error) {
	cfg, err := m.store.Config(ctx)
	if err != nil {
		return false, fmt.Errorf("reading store config: %w", err)
	}
	if cfg == nil {
		return false, nil
	}
	return cfg.EmbedderName != m.embedder.Name() || cfg.Dimension != m.embedder.Dimension(), nil
}

// Migrate re-embeds all records with the target embedder and updates the
// store config. It is a no-op when NeedsMigration is false.
//
// All new vectors are computed before any write, and the write itself is a
// single atomic ApplyMigration, so an aborted migration leaves the store
// untouched and concurrent readers never see a half-migrated store.
func (m *Migrator) Migrate(ctx context.Context) (*Report, error) {
	cfg, err := m.store.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store config: %w", err)
	}

	target := StoreConfig{EmbedderName: m.embedder.Name(), Dimension: m.embedder.Dimension()}
	if cfg != nil && *cfg == target {
		m.logger.Info("embedding migration not needed", "embedder", target.EmbedderName)
		return &Report{}, nil
	}

	dimensionChange := cfg != nil && cfg.Dimension != target.Dimension

	records, err := m.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}

	m.logger.Info("starting embedding migration",
		"records", len(records),
		"target_embedder", target.EmbedderName,
		"target_dimension", target.Dimension,
		"dimension_change", dimensionChange)

	report := &Report{Total: len(records)}

	// Phase 1: compute every new vector up front.
	pending := make(map[string][]float32, len(records))
	for i := range records {
		rec := &records[i]
		vec, embedErr := m.embedder.Embed(ctx, rec.EmbeddingText())
		if embedErr != nil {
			if dimensionChange {
				return nil, fmt.Errorf("re-embedding record %s: %w", rec.ID, embedErr)
			}
			m.logger.Warn("skipping record during migration", "id", rec.ID, "error", embedErr)
			report.Skipped++
			continue
		}
		pending[rec.ID] = vec
	}

	// Phase 2: swap vectors and config in one atomic store operation. The
	// store rejects the swap if a dimension-changing migration raced with
	// new writes; rerunning picks up the new records.
	if err := m.store.ApplyMigration(ctx, pending, target); err != nil {
		return report, fmt.Errorf("applying migration: %w", err)
	}
	report.Migrated = len(pending)

	m.logger.Info("embedding migration completed",
		"migrated", report.Migrated,
		"skipped", report.Skipped)
	return report, nil
}
