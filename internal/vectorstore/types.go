// Package vectorstore persists project-scoped knowledge records with vector
// embeddings and retrieves them by cosine similarity.
//
// Three record categories exist: question/SQL pairs, DDL statements, and
// free-form documentation. Record ids are deterministic content hashes, so
// re-adding identical knowledge is idempotent.
//
// Two backends implement Store: Postgres (pgvector) for production and
// Memory for tests and ephemeral setups. Both enforce that stored vectors
// share a single embedding space, described by a StoreConfig.
package vectorstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category identifies the kind of knowledge a record holds.
type Category string

const (
	// CategorySQL holds question/SQL example pairs. The question text is
	// embedded; the SQL is the retrieval payload.
	CategorySQL Category = "sql"

	// CategoryDDL holds schema definition statements.
	CategoryDDL Category = "ddl"

	// CategoryDocumentation holds free-form schema or business documentation.
	CategoryDocumentation Category = "documentation"
)

// AllCategories returns every valid category.
func AllCategories() []Category {
	return []Category{CategorySQL, CategoryDDL, CategoryDocumentation}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategorySQL, CategoryDDL, CategoryDocumentation:
		return true
	}
	return false
}

// idSuffix returns the record-id suffix for the category.
func (c Category) idSuffix() string {
	switch c {
	case CategorySQL:
		return "-sql"
	case CategoryDDL:
		return "-ddl"
	default:
		return "-doc"
	}
}

// Record is a stored knowledge entry.
type Record struct {
	ID        string
	ProjectID uuid.UUID
	Category  Category
	// Question is set only for CategorySQL records; it is the text that
	// was embedded.
	Question  string
	Content   string
	Embedding []float32
	// Metadata echoes record provenance, at minimum the owning project id.
	Metadata  map[string]string
	CreatedAt time.Time
}

// EmbeddingText returns the text whose embedding represents this record:
// the question for SQL pairs, the content otherwise.
func (r *Record) EmbeddingText() string {
	if r.Category == CategorySQL {
		return r.Question
	}
	return r.Content
}

// SearchResult is a record with its cosine similarity to a query.
type SearchResult struct {
	Record
	Similarity float64
}

// StoreConfig describes the embedding space of a store's vectors.
type StoreConfig struct {
	EmbedderName string
	Dimension    int
}

// ProjectChecker verifies project existence before scoped operations.
// The project package's Store satisfies this.
type ProjectChecker interface {
	ProjectExists(ctx context.Context, projectID uuid.UUID) (bool, error)
}

// Store is the knowledge persistence interface.
//
// All Add methods embed their input, upsert by deterministic id, and return
// that id. Implementations must be safe for concurrent use.
type Store interface {
	// AddQuestionSQL stores a question/SQL example pair.
	AddQuestionSQL(ctx context.Context, projectID uuid.UUID, question, sql string) (string, error)

	// AddDDL stores a DDL statement.
	AddDDL(ctx context.Context, projectID uuid.UUID, ddl string) (string, error)

	// AddDocumentation stores a documentation snippet.
	AddDocumentation(ctx context.Context, projectID uuid.UUID, doc string) (string, error)

	// Remove deletes a record by id. Returns ErrRecordNotFound if absent.
	Remove(ctx context.Context, id string) error

	// ListByProject returns a project's records in one category, in
	// insertion order. Embeddings are not populated.
	ListByProject(ctx context.Context, projectID uuid.UUID, category Category) ([]Record, error)

	// All returns every record in the store, embeddings included,
	// in insertion order. Used by the embedding migrator.
	All(ctx context.Context) ([]Record, error)

	// Search returns up to k records of one category ranked by cosine
	// similarity to the query embedding, descending. Ties and zero-norm
	// queries fall back to insertion order.
	Search(ctx context.Context, projectID uuid.UUID, category Category, embedding []float32, k int) ([]SearchResult, error)

	// Count returns the number of records a project has in one category.
	Count(ctx context.Context, projectID uuid.UUID, category Category) (int, error)

	// DeleteProject removes all records belonging to a project.
	DeleteProject(ctx context.Context, projectID uuid.UUID) error

	// ApplyMigration atomically replaces the stored vectors for the given
	// record ids and the store config. Concurrent reads and writes never
	// observe a partially applied migration: Memory applies it under its
	// write lock, Postgres in a single transaction that locks the config
	// row every add also locks. When the dimension changes, every record
	// in the store must be covered by vectors; ids no longer present are
	// ignored.
	ApplyMigration(ctx context.Context, vectors map[string][]float32, cfg StoreConfig) error

	// Config returns the stored embedding-space description, or nil when
	// the store has never been written to.
	Config(ctx context.Context) (*StoreConfig, error)
}
