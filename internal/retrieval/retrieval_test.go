package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/testutil"
	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

func setupRetriever(t *testing.T, limits Limits) (*Retriever, *vectorstore.Memory, *testutil.MockEmbedder, uuid.UUID) {
	t.Helper()

	embedder := testutil.NewMockEmbedder("mock-embedder", 4)
	store, err := vectorstore.NewMemory(embedder, nil, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewMemory() error: %v", err)
	}
	retriever, err := New(store, embedder, limits, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return retriever, store, embedder, uuid.New()
}

func TestRetrieveAll(t *testing.T) {
	ctx := context.Background()
	retriever, store, embedder, projectID := setupRetriever(t, Limits{})

	if _, err := store.AddQuestionSQL(ctx, projectID, "total sales", "SELECT SUM(amount) FROM sales"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDDL(ctx, projectID, "CREATE TABLE sales (amount NUMERIC)"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDocumentation(ctx, projectID, "sales holds completed orders"); err != nil {
		t.Fatal(err)
	}

	before := embedder.Calls()
	result, err := retriever.RetrieveAll(ctx, projectID, "what were total sales last month")
	if err != nil {
		t.Fatalf("RetrieveAll() error: %v", err)
	}

	if len(result.QuestionSQL) != 1 || len(result.DDL) != 1 || len(result.Documentation) != 1 {
		t.Errorf("retrieved %d/%d/%d, want 1/1/1",
			len(result.QuestionSQL), len(result.DDL), len(result.Documentation))
	}
	if result.Empty() {
		t.Error("Empty() = true with populated context")
	}

	// The question is embedded exactly once for all three searches.
	if calls := embedder.Calls() - before; calls != 1 {
		t.Errorf("embedder calls = %d, want 1", calls)
	}
}

func TestSingleCategoryLookups(t *testing.T) {
	ctx := context.Background()
	retriever, store, embedder, projectID := setupRetriever(t, Limits{})

	if _, err := store.AddQuestionSQL(ctx, projectID, "total sales", "SELECT SUM(amount) FROM sales"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDDL(ctx, projectID, "CREATE TABLE sales (amount NUMERIC)"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddDocumentation(ctx, projectID, "sales holds completed orders"); err != nil {
		t.Fatal(err)
	}

	before := embedder.Calls()
	pairs, err := retriever.SimilarQuestionSQL(ctx, projectID, "total sales")
	if err != nil {
		t.Fatalf("SimilarQuestionSQL() error: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Content != "SELECT SUM(amount) FROM sales" {
		t.Errorf("SimilarQuestionSQL() = %+v, want the stored pair", pairs)
	}
	if calls := embedder.Calls() - before; calls != 1 {
		t.Errorf("SimilarQuestionSQL embedder calls = %d, want 1", calls)
	}

	ddl, err := retriever.RelatedDDL(ctx, projectID, "sales table shape")
	if err != nil {
		t.Fatalf("RelatedDDL() error: %v", err)
	}
	if len(ddl) != 1 || ddl[0].Category != vectorstore.CategoryDDL {
		t.Errorf("RelatedDDL() = %+v, want the stored DDL", ddl)
	}

	docs, err := retriever.RelatedDocumentation(ctx, projectID, "what is in sales")
	if err != nil {
		t.Fatalf("RelatedDocumentation() error: %v", err)
	}
	if len(docs) != 1 || docs[0].Category != vectorstore.CategoryDocumentation {
		t.Errorf("RelatedDocumentation() = %+v, want the stored snippet", docs)
	}
}

func TestSingleCategoryLookupsEmptyQuery(t *testing.T) {
	ctx := context.Background()
	retriever, _, _, projectID := setupRetriever(t, Limits{})

	if _, err := retriever.SimilarQuestionSQL(ctx, projectID, ""); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("SimilarQuestionSQL(blank) error = %v, want ErrEmptyQuery", err)
	}
	if _, err := retriever.RelatedDDL(ctx, projectID, " \t"); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("RelatedDDL(blank) error = %v, want ErrEmptyQuery", err)
	}
	if _, err := retriever.RelatedDocumentation(ctx, projectID, "\n"); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("RelatedDocumentation(blank) error = %v, want ErrEmptyQuery", err)
	}
}

func TestSingleCategoryLookupsProjectScoped(t *testing.T) {
	ctx := context.Background()
	retriever, store, _, projectID := setupRetriever(t, Limits{})

	other := uuid.New()
	if _, err := store.AddDDL(ctx, other, "CREATE TABLE other (id INT)"); err != nil {
		t.Fatal(err)
	}

	ddl, err := retriever.RelatedDDL(ctx, projectID, "tables")
	if err != nil {
		t.Fatalf("RelatedDDL() error: %v", err)
	}
	if len(ddl) != 0 {
		t.Errorf("RelatedDDL() crossed projects: %+v", ddl)
	}
}

func TestSingleCategoryLookupsRespectLimits(t *testing.T) {
	ctx := context.Background()
	retriever, store, _, projectID := setupRetriever(t, Limits{SQL: 2})

	for i := 0; i < 5; i++ {
		q := string(rune('a'+i)) + " question"
		if _, err := store.AddQuestionSQL(ctx, projectID, q, "SELECT "+q); err != nil {
			t.Fatal(err)
		}
	}

	pairs, err := retriever.SimilarQuestionSQL(ctx, projectID, "question")
	if err != nil {
		t.Fatalf("SimilarQuestionSQL() error: %v", err)
	}
	if len(pairs) != 2 {
		t.Errorf("len(pairs) = %d, want 2", len(pairs))
	}
}

func TestRetrieveAllEmptyQuery(t *testing.T) {
	retriever, _, _, projectID := setupRetriever(t, Limits{})

	if _, err := retriever.RetrieveAll(context.Background(), projectID, "  \n"); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("RetrieveAll(blank) error = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveAllEmptyStore(t *testing.T) {
	retriever, _, _, projectID := setupRetriever(t, Limits{})

	result, err := retriever.RetrieveAll(context.Background(), projectID, "anything")
	if err != nil {
		t.Fatalf("RetrieveAll() error: %v", err)
	}
	if !result.Empty() {
		t.Errorf("expected empty context, got %+v", result)
	}
}

func TestRetrieveAllRespectsLimits(t *testing.T) {
	ctx := context.Background()
	retriever, store, _, projectID := setupRetriever(t, Limits{SQL: 2, DDL: 1, Doc: 1})

	for i := 0; i < 5; i++ {
		q := string(rune('a'+i)) + " question"
		if _, err := store.AddQuestionSQL(ctx, projectID, q, "SELECT "+q); err != nil {
			t.Fatal(err)
		}
	}

	result, err := retriever.RetrieveAll(ctx, projectID, "question")
	if err != nil {
		t.Fatalf("RetrieveAll() error: %v", err)
	}
	if len(result.QuestionSQL) != 2 {
		t.Errorf("len(QuestionSQL) = %d, want 2", len(result.QuestionSQL))
	}
}

func TestRetrieveAllEmbedderFailure(t *testing.T) {
	retriever, _, embedder, projectID := setupRetriever(t, Limits{})

	embedder.SetError(errors.New("provider down"))
	if _, err := retriever.RetrieveAll(context.Background(), projectID, "question"); err == nil {
		t.Error("expected error when embedding fails")
	}
}

func TestRetrieveAllProjectScoped(t *testing.T) {
	ctx := context.Background()
	retriever, store, _, projectID := setupRetriever(t, Limits{})

	other := uuid.New()
	if _, err := store.AddDDL(ctx, other, "CREATE TABLE other (id INT)"); err != nil {
		t.Fatal(err)
	}

	result, err := retriever.RetrieveAll(ctx, projectID, "tables")
	if err != nil {
		t.Fatalf("RetrieveAll() error: %v", err)
	}
	if !result.Empty() {
		t.Errorf("retrieved records from another project: %+v", result)
	}
}
