//go:build integration
// +build integration

package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sqlpilot/sqlpilot/internal/testutil"
)

// insertProject creates a project row directly for store tests.
func insertProject(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO projects (id, name) VALUES ($1, $2)`,
		id, "test project")
	if err != nil {
		t.Fatalf("inserting project: %v", err)
	}
	return id
}

func setupPostgresStore(t *testing.T) (*Postgres, *testutil.MockEmbedder, *pgxpool.Pool) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	embedder := testutil.NewMockEmbedder("mock-embedder", 4)
	store, err := NewPostgres(db.Pool, embedder, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewPostgres() error: %v", err)
	}
	return store, embedder, db.Pool
}

func TestPostgresAddSearchRemove(t *testing.T) {
	ctx := context.Background()
	store, embedder, pool := setupPostgresStore(t)
	projectID := insertProject(t, pool)

	embedder.SetVector("revenue by month", []float32{1, 0, 0, 0})
	embedder.SetVector("active users", []float32{0, 1, 0, 0})
	embedder.SetVector("monthly revenue", []float32{0.95, 0.05, 0, 0})

	id1, err := store.AddQuestionSQL(ctx, projectID, "revenue by month",
		"SELECT date_trunc('month', created_at), SUM(amount) FROM orders GROUP BY 1")
	if err != nil {
		t.Fatalf("AddQuestionSQL() error: %v", err)
	}
	if _, err := store.AddQuestionSQL(ctx, projectID, "active users",
		"SELECT COUNT(*) FROM users WHERE active"); err != nil {
		t.Fatal(err)
	}

	// Idempotent re-add.
	id1again, err := store.AddQuestionSQL(ctx, projectID, "revenue by month",
		"SELECT date_trunc('month', created_at), SUM(amount) FROM orders GROUP BY 1")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id1again {
		t.Errorf("duplicate add produced new id: %q vs %q", id1, id1again)
	}
	count, err := store.Count(ctx, projectID, CategorySQL)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	queryVec, _ := embedder.Embed(ctx, "monthly revenue")
	results, err := store.Search(ctx, projectID, CategorySQL, queryVec, 1)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Question != "revenue by month" {
		t.Errorf("top result question = %q", results[0].Question)
	}
	if results[0].Similarity <= 0.9 {
		t.Errorf("similarity = %v, want > 0.9", results[0].Similarity)
	}
	if got := results[0].Metadata["project_id"]; got != projectID.String() {
		t.Errorf("metadata project_id = %q, want %q", got, projectID)
	}

	if err := store.Remove(ctx, id1); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := store.Remove(ctx, id1); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Remove(gone) error = %v, want ErrRecordNotFound", err)
	}
}

func TestPostgresZeroNormQuery(t *testing.T) {
	ctx := context.Background()
	store, _, pool := setupPostgresStore(t)
	projectID := insertProject(t, pool)

	if _, err := store.AddDocumentation(ctx, projectID, "first note"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDocumentation(ctx, projectID, "second note"); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, projectID, CategoryDocumentation, []float32{0, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Content != "first note" || results[1].Content != "second note" {
		t.Errorf("zero-norm results not in insertion order: [%q, %q]",
			results[0].Content, results[1].Content)
	}
	for _, r := range results {
		if r.Similarity != 0 {
			t.Errorf("zero-norm similarity = %v, want 0", r.Similarity)
		}
	}
}

func TestPostgresConfigAndDimension(t *testing.T) {
	ctx := context.Background()
	store, embedder, pool := setupPostgresStore(t)
	projectID := insertProject(t, pool)

	cfg, err := store.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != nil {
		t.Errorf("fresh store config = %+v, want nil", cfg)
	}

	if _, err := store.AddDDL(ctx, projectID, "CREATE TABLE t (id INT)"); err != nil {
		t.Fatal(err)
	}

	cfg, err = store.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || cfg.Dimension != 4 || cfg.EmbedderName != "mock-embedder" {
		t.Errorf("config = %+v", cfg)
	}

	embedder.SetVector("bad", []float32{1, 0})
	if _, err := store.AddDocumentation(ctx, projectID, "bad"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong-dimension add error = %v, want ErrDimensionMismatch", err)
	}
}

func TestPostgresMigration(t *testing.T) {
	ctx := context.Background()
	store, _, pool := setupPostgresStore(t)
	projectID := insertProject(t, pool)

	if _, err := store.AddQuestionSQL(ctx, projectID, "count orders", "SELECT COUNT(*) FROM orders"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDDL(ctx, projectID, "CREATE TABLE orders (id INT)"); err != nil {
		t.Fatal(err)
	}

	newEmbedder := testutil.NewMockEmbedder("new-embedder", 8)
	newStore, err := NewPostgres(pool, newEmbedder, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	migrator, err := NewMigrator(newStore, newEmbedder, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}

	needs, err := migrator.NeedsMigration(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !needs {
		t.Fatal("expected migration to be needed")
	}

	report, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if report.Migrated != 2 {
		t.Errorf("report = %+v, want 2 migrated", report)
	}

	queryVec, _ := newEmbedder.Embed(ctx, "count orders")
	results, err := newStore.Search(ctx, projectID, CategorySQL, queryVec, 5)
	if err != nil {
		t.Fatalf("Search() after migration error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want 1", len(results))
	}
}

func TestPostgresDeleteProjectCascade(t *testing.T) {
	ctx := context.Background()
	store, _, pool := setupPostgresStore(t)
	projectID := insertProject(t, pool)

	if _, err := store.AddDDL(ctx, projectID, "CREATE TABLE t (id INT)"); err != nil {
		t.Fatal(err)
	}

	// Deleting the project row cascades to knowledge_records via FK.
	if _, err := pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_records WHERE project_id = $1`, projectID,
	).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("knowledge records survived project deletion: %d", count)
	}
}
