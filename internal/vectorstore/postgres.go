package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/sqlpilot/sqlpilot/internal/embed"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// recordCols is the standard SELECT column list for scanRecords.
const recordCols = `id, project_id, category, COALESCE(question, ''), content, metadata, created_at`

// upsertRecordSQL refreshes content on id conflict, making re-adds of
// identical knowledge idempotent. Metadata echoes the record's provenance.
const upsertRecordSQL = `INSERT INTO knowledge_records (id, project_id, category, question, content, embedding, metadata)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, jsonb_build_object('project_id', ($2)::text, 'category', ($3)::text))
	ON CONFLICT (id) DO UPDATE
	SET question = EXCLUDED.question,
	    content = EXCLUDED.content,
	    embedding = EXCLUDED.embedding`

// Postgres is the pgvector-backed Store.
//
// Postgres is safe for concurrent use by multiple goroutines.
type Postgres struct {
	pool     *pgxpool.Pool
	embedder embed.Embedder
	checker  ProjectChecker // nil disables project existence checks
	logger   *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a pgvector-backed store. checker may be nil when the
// schema's foreign keys are considered sufficient.
func NewPostgres(pool *pgxpool.Pool, embedder embed.Embedder, checker ProjectChecker, logger *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, embedder: embedder, checker: checker, logger: logger}, nil
}

// AddQuestionSQL implements Store.
func (s *Postgres) AddQuestionSQL(ctx context.Context, projectID uuid.UUID, question, sql string) (string, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(sql) == "" {
		return "", ErrEmptyContent
	}
	return s.add(ctx, Record{
		ID:        recordID(projectID, CategorySQL, question, sql),
		ProjectID: projectID,
		Category:  CategorySQL,
		Question:  question,
		Content:   sql,
	})
}

// AddDDL implements Store.
func (s *Postgres) AddDDL(ctx context.Context, projectID uuid.UUID, ddl string) (string, error) {
	if strings.TrimSpace(ddl) == "" {
		return "", ErrEmptyContent
	}
	return s.add(ctx, Record{
		ID:        recordID(projectID, CategoryDDL, ddl),
		ProjectID: projectID,
		Category:  CategoryDDL,
		Content:   ddl,
	})
}

// AddDocumentation implements Store.
func (s *Postgres) AddDocumentation(ctx context.Context, projectID uuid.UUID, doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", ErrEmptyContent
	}
	return s.add(ctx, Record{
		ID:        recordID(projectID, CategoryDocumentation, doc),
		ProjectID: projectID,
		Category:  CategoryDocumentation,
		Content:   doc,
	})
}

// add embeds the record and upserts it inside a transaction that also
// guards the store config.
func (s *Postgres) add(ctx context.Context, rec Record) (string, error) {
	if err := s.checkProject(ctx, rec.ProjectID); err != nil {
		return "", err
	}

	vec, err := s.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("embedding record: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if err := s.ensureConfig(ctx, tx, len(vec)); err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx, upsertRecordSQL,
		rec.ID, rec.ProjectID, rec.Category, rec.Question, rec.Content, pgvector.NewVector(vec),
	); err != nil {
		return "", fmt.Errorf("upserting knowledge record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing knowledge record: %w", err)
	}
	return rec.ID, nil
}

// ensureConfig initializes the store config row on first write and rejects
// vectors from a different embedding space afterwards. The row is locked
// for the duration of the transaction.
func (s *Postgres) ensureConfig(ctx context.Context, q querier, dim int) error {
	var stored int
	err := q.QueryRow(ctx,
		`SELECT dimension FROM store_config FOR UPDATE`,
	).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, insErr := q.Exec(ctx,
			`INSERT INTO store_config (embedder_name, dimension) VALUES ($1, $2)`,
			s.embedder.Name(), dim,
		); insErr != nil {
			return fmt.Errorf("initializing store config: %w", insErr)
		}
		return nil
	case err != nil:
		return fmt.Errorf("reading store config: %w", err)
	case stored != dim:
		return fmt.Errorf("%w: store has %d, got %d", ErrDimensionMismatch, stored, dim)
	default:
		return nil
	}
}

// Remove implements Store.
func (s *Postgres) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting knowledge record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListByProject implements Store.
func (s *Postgres) ListByProject(ctx context.Context, projectID uuid.UUID, category Category) ([]Record, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+`
		 FROM knowledge_records
		 WHERE project_id = $1 AND category = $2
		 ORDER BY seq ASC`,
		projectID, category,
	)
	if err != nil {
		return nil, fmt.Errorf("listing knowledge records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// All implements Store.
func (s *Postgres) All(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+`, embedding
		 FROM knowledge_records
		 ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing all knowledge records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var vec pgvector.Vector
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Category, &r.Question, &r.Content, &r.Metadata, &r.CreatedAt, &vec); err != nil {
			return nil, fmt.Errorf("scanning knowledge record: %w", err)
		}
		r.Embedding = vec.Slice()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge records: %w", err)
	}
	return records, nil
}

// Search implements Store.
func (s *Postgres) Search(ctx context.Context, projectID uuid.UUID, category Category, embedding []float32, k int) ([]SearchResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	// Cosine distance against a zero vector is undefined; rank by
	// insertion order with similarity 0 instead.
	if isZeroVector(embedding) {
		return s.searchZeroNorm(ctx, projectID, category, k)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+`, 1 - (embedding <=> $3) AS similarity
		 FROM knowledge_records
		 WHERE project_id = $1 AND category = $2
		 ORDER BY embedding <=> $3 ASC, seq ASC
		 LIMIT $4`,
		projectID, category, pgvector.NewVector(embedding), k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge records: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// searchZeroNorm returns the first k records by insertion order, all with
// similarity 0.
func (s *Postgres) searchZeroNorm(ctx context.Context, projectID uuid.UUID, category Category, k int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordCols+`, 0::float8 AS similarity
		 FROM knowledge_records
		 WHERE project_id = $1 AND category = $2
		 ORDER BY seq ASC
		 LIMIT $3`,
		projectID, category, k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge records: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// Count implements Store.
func (s *Postgres) Count(ctx context.Context, projectID uuid.UUID, category Category) (int, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return 0, err
	}

	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_records WHERE project_id = $1 AND category = $2`,
		projectID, category,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting knowledge records: %w", err)
	}
	return count, nil
}

// DeleteProject implements Store.
func (s *Postgres) DeleteProject(ctx context.Context, projectID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM knowledge_records WHERE project_id = $1`,
		projectID,
	); err != nil {
		return fmt.Errorf("deleting knowledge records for project %s: %w", projectID, err)
	}
	return nil
}

// migrationLockID is the advisory lock key serializing embedding migrations
// against each other across processes.
const migrationLockID = 0x73716c70

// ApplyMigration implements Store. The swap runs in one transaction holding
// an advisory lock plus the store_config row lock that every add takes, so
// concurrent adds serialize against the config change and concurrent
// searches read a consistent snapshot.
func (s *Postgres) ApplyMigration(ctx context.Context, vectors map[string][]float32, cfg StoreConfig) error {
	for id, vec := range vectors {
		if len(vec) != cfg.Dimension {
			return fmt.Errorf("%w: config has %d, vector for %s has %d",
				ErrDimensionMismatch, cfg.Dimension, id, len(vec))
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("acquiring migration lock: %w", err)
	}

	var storedDim int
	err = tx.QueryRow(ctx, `SELECT dimension FROM store_config FOR UPDATE`).Scan(&storedDim)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("locking store config: %w", err)
	}

	if storedDim != 0 && storedDim != cfg.Dimension {
		ids := make([]string, 0, len(vectors))
		for id := range vectors {
			ids = append(ids, id)
		}
		var stray string
		err := tx.QueryRow(ctx,
			`SELECT id FROM knowledge_records WHERE NOT (id = ANY($1)) LIMIT 1`,
			ids,
		).Scan(&stray)
		switch {
		case err == nil:
			return fmt.Errorf("record %s added during dimension-changing migration, rerun", stray)
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("checking migration coverage: %w", err)
		}
	}

	for id, vec := range vectors {
		if _, err := tx.Exec(ctx,
			`UPDATE knowledge_records SET embedding = $2 WHERE id = $1`,
			id, pgvector.NewVector(vec),
		); err != nil {
			return fmt.Errorf("replacing embedding for %s: %w", id, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO store_config (id, embedder_name, dimension)
		 VALUES (true, $1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET embedder_name = EXCLUDED.embedder_name,
		     dimension = EXCLUDED.dimension,
		     updated_at = now()`,
		cfg.EmbedderName, cfg.Dimension,
	); err != nil {
		return fmt.Errorf("writing store config: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

// Config implements Store.
func (s *Postgres) Config(ctx context.Context) (*StoreConfig, error) {
	var cfg StoreConfig
	err := s.pool.QueryRow(ctx,
		`SELECT embedder_name, dimension FROM store_config`,
	).Scan(&cfg.EmbedderName, &cfg.Dimension)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading store config: %w", err)
	default:
		return &cfg, nil
	}
}

// checkProject consults the injected ProjectChecker, if any.
func (s *Postgres) checkProject(ctx context.Context, projectID uuid.UUID) error {
	if s.checker == nil {
		return nil
	}
	exists, err := s.checker.ProjectExists(ctx, projectID)
	if err != nil {
		return fmt.Errorf("checking project %s: %w", projectID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}

// scanRecords reads Record structs from pgx.Rows (standard column set).
func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Category, &r.Question, &r.Content, &r.Metadata, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning knowledge record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating knowledge records: %w", err)
	}
	return records, nil
}

// scanResults reads SearchResult structs plus a trailing similarity column.
func scanResults(rows pgx.Rows) ([]SearchResult, error) {
	results := []SearchResult{}
	for rows.Next() {
		var res SearchResult
		if err := rows.Scan(&res.ID, &res.ProjectID, &res.Category, &res.Question, &res.Content, &res.Metadata, &res.CreatedAt, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}
