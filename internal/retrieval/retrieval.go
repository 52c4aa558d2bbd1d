// Package retrieval assembles generation context from the vector store:
// the top-K most similar question/SQL pairs, DDL statements, and
// documentation snippets for a natural-language question.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sqlpilot/sqlpilot/internal/embed"
	"github.com/sqlpilot/sqlpilot/internal/vectorstore"
)

// ErrEmptyQuery indicates the retrieval query is empty or whitespace.
var ErrEmptyQuery = errors.New("empty retrieval query")

// DefaultLimit is the per-category top-K when a limit is unset.
const DefaultLimit = 10

// Limits holds per-category top-K values. Zero values fall back to
// DefaultLimit.
type Limits struct {
	SQL int
	DDL int
	Doc int
}

func (l Limits) normalized() Limits {
	if l.SQL <= 0 {
		l.SQL = DefaultLimit
	}
	if l.DDL <= 0 {
		l.DDL = DefaultLimit
	}
	if l.Doc <= 0 {
		l.Doc = DefaultLimit
	}
	return l
}

// Context is the retrieved knowledge for one question.
type Context struct {
	QuestionSQL   []vectorstore.SearchResult
	DDL           []vectorstore.SearchResult
	Documentation []vectorstore.SearchResult
}

// Empty reports whether nothing was retrieved in any category.
func (c *Context) Empty() bool {
	return len(c.QuestionSQL) == 0 && len(c.DDL) == 0 && len(c.Documentation) == 0
}

// Retriever looks up knowledge similar to a natural-language question,
// per category or across all three at once. Every lookup embeds the
// question exactly once.
type Retriever struct {
	store    vectorstore.Store
	embedder embed.Embedder
	limits   Limits
	logger   *slog.Logger
}

// New creates a Retriever.
func New(store vectorstore.Store, embedder embed.Embedder, limits Limits, logger *slog.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		limits:   limits.normalized(),
		logger:   logger,
	}, nil
}

// embedQuestion validates and embeds a retrieval question.
func (r *Retriever) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	return vec, nil
}

// searchQuestionSQL runs the question/SQL search for an already embedded question.
func (r *Retriever) searchQuestionSQL(ctx context.Context, projectID uuid.UUID, vec []float32) ([]vectorstore.SearchResult, error) {
	results, err := r.store.Search(ctx, projectID, vectorstore.CategorySQL, vec, r.limits.SQL)
	if err != nil {
		return nil, fmt.Errorf("searching question/sql pairs: %w", err)
	}
	return results, nil
}

// searchDDL runs the DDL search for an already embedded question.
func (r *Retriever) searchDDL(ctx context.Context, projectID uuid.UUID, vec []float32) ([]vectorstore.SearchResult, error) {
	results, err := r.store.Search(ctx, projectID, vectorstore.CategoryDDL, vec, r.limits.DDL)
	if err != nil {
		return nil, fmt.Errorf("searching ddl: %w", err)
	}
	return results, nil
}

// searchDocumentation runs the documentation search for an already embedded
// question.
func (r *Retriever) searchDocumentation(ctx context.Context, projectID uuid.UUID, vec []float32) ([]vectorstore.SearchResult, error) {
	results, err := r.store.Search(ctx, projectID, vectorstore.CategoryDocumentation, vec, r.limits.Doc)
	if err != nil {
		return nil, fmt.Errorf("searching documentation: %w", err)
	}
	return results, nil
}

// SimilarQuestionSQL returns the top-K question/SQL pairs most similar to the
// question. The question is embedded once.
func (r *Retriever) SimilarQuestionSQL(ctx context.Context, projectID uuid.UUID, question string) ([]vectorstore.SearchResult, error) {
	vec, err := r.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return r.searchQuestionSQL(ctx, projectID, vec)
}

// RelatedDDL returns the top-K DDL statements most similar to the question.
// The question is embedded once.
func (r *Retriever) RelatedDDL(ctx context.Context, projectID uuid.UUID, question string) ([]vectorstore.SearchResult, error) {
	vec, err := r.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return r.searchDDL(ctx, projectID, vec)
}

// RelatedDocumentation returns the top-K documentation snippets most similar
// to the question. The question is embedded once.
func (r *Retriever) RelatedDocumentation(ctx context.Context, projectID uuid.UUID, question string) ([]vectorstore.SearchResult, error) {
	vec, err := r.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return r.searchDocumentation(ctx, projectID, vec)
}

// RetrieveAll returns the top-K records of every category for the question.
// The question is embedded exactly once; the three category searches run
// concurrently and the first error cancels the rest.
func (r *Retriever) RetrieveAll(ctx context.Context, projectID uuid.UUID, question string) (*Context, error) {
	vec, err := r.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	var out Context
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := r.searchQuestionSQL(gctx, projectID, vec)
		if err != nil {
			return err
		}
		out.QuestionSQL = results
		return nil
	})
	g.Go(func() error {
		results, err := r.searchDDL(gctx, projectID, vec)
		if err != nil {
			return err
		}
		out.DDL = results
		return nil
	})
	g.Go(func() error {
		results, err := r.searchDocumentation(gctx, projectID, vec)
		if err != nil {
			return err
		}
		out.Documentation = results
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved context",
		"project_id", projectID,
		"sql_pairs", len(out.QuestionSQL),
		"ddl", len(out.DDL),
		"documentation", len(out.Documentation))
	return &out, nil
}
