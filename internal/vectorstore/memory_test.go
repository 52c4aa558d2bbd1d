package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/testutil"
)

// allowAllChecker accepts every project id.
type allowAllChecker struct{}

func (allowAllChecker) ProjectExists(context.Context, uuid.UUID) (bool, error) { return true, nil }

// singleProjectChecker accepts exactly one project id.
type singleProjectChecker struct{ id uuid.UUID }

func (c singleProjectChecker) ProjectExists(_ context.Context, id uuid.UUID) (bool, error) {
	return id == c.id, nil
}

func newTestStore(t *testing.T, checker ProjectChecker) (*Memory, *testutil.MockEmbedder) {
	t.Helper()
	embedder := testutil.NewMockEmbedder("mock-embedder", 4)
	store, err := NewMemory(embedder, checker, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewMemory() error: %v", err)
	}
	return store, embedder
}

func TestMemoryAddAndList(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectID := uuid.New()

	id, err := store.AddQuestionSQL(ctx, projectID, "total sales by region", "SELECT region, SUM(amount) FROM sales GROUP BY region")
	if err != nil {
		t.Fatalf("AddQuestionSQL() error: %v", err)
	}

	records, err := store.ListByProject(ctx, projectID, CategorySQL)
	if err != nil {
		t.Fatalf("ListByProject() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].ID != id {
		t.Errorf("record id = %q, want %q", records[0].ID, id)
	}
	if records[0].Question != "total sales by region" {
		t.Errorf("question = %q", records[0].Question)
	}
	if records[0].Embedding != nil {
		t.Error("ListByProject should not populate embeddings")
	}
	if got := records[0].Metadata["project_id"]; got != projectID.String() {
		t.Errorf("metadata project_id = %q, want %q", got, projectID)
	}
	if got := records[0].Metadata["category"]; got != string(CategorySQL) {
		t.Errorf("metadata category = %q, want %q", got, CategorySQL)
	}
}

func TestMemoryAddIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectID := uuid.New()

	id1, err := store.AddDDL(ctx, projectID, "CREATE TABLE sales (id INT)")
	if err != nil {
		t.Fatalf("AddDDL() error: %v", err)
	}
	id2, err := store.AddDDL(ctx, projectID, "CREATE TABLE sales (id INT)")
	if err != nil {
		t.Fatalf("AddDDL() error: %v", err)
	}
	if id1 != id2 {
		t.Errorf("re-adding same DDL produced different ids: %q vs %q", id1, id2)
	}

	count, err := store.Count(ctx, projectID, CategoryDDL)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after duplicate add", count)
	}
}

func TestMemoryAddEmptyContent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectID := uuid.New()

	if _, err := store.AddDDL(ctx, projectID, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("AddDDL(blank) error = %v, want ErrEmptyContent", err)
	}
	if _, err := store.AddQuestionSQL(ctx, projectID, "question", ""); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("AddQuestionSQL(empty sql) error = %v, want ErrEmptyContent", err)
	}
	if _, err := store.AddDocumentation(ctx, projectID, ""); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("AddDocumentation(empty) error = %v, want ErrEmptyContent", err)
	}
}

func TestMemoryProjectChecker(t *testing.T) {
	ctx := context.Background()
	known := uuid.New()
	store, _ := newTestStore(t, singleProjectChecker{id: known})

	if _, err := store.AddDDL(ctx, known, "CREATE TABLE t (id INT)"); err != nil {
		t.Fatalf("AddDDL(known project) error: %v", err)
	}

	unknown := uuid.New()
	if _, err := store.AddDDL(ctx, unknown, "CREATE TABLE t (id INT)"); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("AddDDL(unknown project) error = %v, want ErrProjectNotFound", err)
	}
	if _, err := store.Search(ctx, unknown, CategoryDDL, []float32{1, 0, 0, 0}, 5); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("Search(unknown project) error = %v, want ErrProjectNotFound", err)
	}
	if _, err := store.ListByProject(ctx, unknown, CategoryDDL); !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("ListByProject(unknown project) error = %v, want ErrProjectNotFound", err)
	}
}

func TestMemorySearchRanking(t *testing.T) {
	ctx := context.Background()
	store, embedder := newTestStore(t, nil)
	projectID := uuid.New()

	// Pin embeddings so the similarity order is exact.
	embedder.SetVector("close", []float32{1, 0, 0, 0})
	embedder.SetVector("closer", []float32{0.9, 0.1, 0, 0})
	embedder.SetVector("far", []float32{0, 0, 1, 0})
	embedder.SetVector("query", []float32{0.9, 0.1, 0, 0})

	for _, doc := range []string{"far", "close", "closer"} {
		if _, err := store.AddDocumentation(ctx, projectID, doc); err != nil {
			t.Fatalf("AddDocumentation(%q) error: %v", doc, err)
		}
	}

	queryVec, _ := embedder.Embed(ctx, "query")
	results, err := store.Search(ctx, projectID, CategoryDocumentation, queryVec, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Content != "closer" || results[1].Content != "close" {
		t.Errorf("ranking = [%q, %q], want [closer, close]", results[0].Content, results[1].Content)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Error("results not ordered by descending similarity")
	}
}

func TestMemorySearchZeroNormQuery(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectID := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := store.AddDocumentation(ctx, projectID, fmt.Sprintf("doc %d", i)); err != nil {
			t.Fatalf("AddDocumentation() error: %v", err)
		}
	}

	results, err := store.Search(ctx, projectID, CategoryDocumentation, []float32{0, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	// Insertion order with similarity 0.
	if results[0].Content != "doc 0" || results[1].Content != "doc 1" {
		t.Errorf("zero-norm ranking = [%q, %q], want insertion order", results[0].Content, results[1].Content)
	}
	for _, r := range results {
		if r.Similarity != 0 {
			t.Errorf("zero-norm similarity = %v, want 0", r.Similarity)
		}
	}
}

func TestMemorySearchScopedByCategoryAndProject(t *testing.T) {
	ctx := context.Background()
	store, embedder := newTestStore(t, nil)
	projectA := uuid.New()
	projectB := uuid.New()

	if _, err := store.AddDDL(ctx, projectA, "CREATE TABLE a (id INT)"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDocumentation(ctx, projectA, "table a holds things"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDDL(ctx, projectB, "CREATE TABLE b (id INT)"); err != nil {
		t.Fatal(err)
	}

	queryVec, _ := embedder.Embed(ctx, "anything")
	results, err := store.Search(ctx, projectA, CategoryDDL, queryVec, 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].Content != "CREATE TABLE a (id INT)" {
		t.Errorf("leaked record across scope: %q", results[0].Content)
	}
}

func TestMemorySearchInvalidCategory(t *testing.T) {
	store, _ := newTestStore(t, nil)

	_, err := store.Search(context.Background(), uuid.New(), Category("bogus"), []float32{1, 0, 0, 0}, 5)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("Search(bogus category) error = %v, want ErrInvalidCategory", err)
	}
}

func TestMemoryRemove(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectID := uuid.New()

	id, err := store.AddDocumentation(ctx, projectID, "obsolete note")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Remove(ctx, id); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := store.Remove(ctx, id); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Remove(gone) error = %v, want ErrRecordNotFound", err)
	}

	count, err := store.Count(ctx, projectID, CategoryDocumentation)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count = %d after removal, want 0", count)
	}
}

func TestMemoryDeleteProject(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)
	projectA := uuid.New()
	projectB := uuid.New()

	if _, err := store.AddDDL(ctx, projectA, "CREATE TABLE a (id INT)"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDDL(ctx, projectB, "CREATE TABLE b (id INT)"); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteProject(ctx, projectA); err != nil {
		t.Fatalf("DeleteProject() error: %v", err)
	}

	countA, _ := store.Count(ctx, projectA, CategoryDDL)
	countB, _ := store.Count(ctx, projectB, CategoryDDL)
	if countA != 0 {
		t.Errorf("project A count = %d, want 0", countA)
	}
	if countB != 1 {
		t.Errorf("project B count = %d, want 1", countB)
	}
}

func TestMemoryConfigLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, nil)

	cfg, err := store.Config(ctx)
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if cfg != nil {
		t.Errorf("fresh store config = %+v, want nil", cfg)
	}

	if _, err := store.AddDocumentation(ctx, uuid.New(), "first write"); err != nil {
		t.Fatal(err)
	}

	cfg, err = store.Config(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		t.Fatal("config still nil after first write")
	}
	if cfg.EmbedderName != "mock-embedder" || cfg.Dimension != 4 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store, embedder := newTestStore(t, nil)
	projectID := uuid.New()

	if _, err := store.AddDocumentation(ctx, projectID, "seed"); err != nil {
		t.Fatal(err)
	}

	// A pinned vector of the wrong size simulates an embedder change.
	embedder.SetVector("wrong size", []float32{1, 0})
	if _, err := store.AddDocumentation(ctx, projectID, "wrong size"); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add with wrong dimension error = %v, want ErrDimensionMismatch", err)
	}

	if _, err := store.Search(ctx, projectID, CategoryDocumentation, []float32{1, 0}, 5); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search with wrong dimension error = %v, want ErrDimensionMismatch", err)
	}
}
