package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sqlpilot/sqlpilot/internal/embed"
)

// Memory is an in-process Store backend. It keeps records in insertion
// order and computes cosine similarity in Go. Intended for tests and
// ephemeral single-node setups.
//
// Memory is safe for concurrent use.
type Memory struct {
	embedder embed.Embedder
	checker  ProjectChecker // nil disables project existence checks
	logger   *slog.Logger

	mu      sync.RWMutex
	records []*Record // insertion order
	byID    map[string]*Record
	cfg     *StoreConfig
}

var _ Store = (*Memory)(nil)

// NewMemory creates an in-memory store. checker may be nil.
func NewMemory(embedder embed.Embedder, checker ProjectChecker, logger *slog.Logger) (*Memory, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		embedder: embedder,
		checker:  checker,
		logger:   logger,
		byID:     make(map[string]*Record),
	}, nil
}

// AddQuestionSQL implements Store.
func (m *Memory) AddQuestionSQL(ctx context.Context, projectID uuid.UUID, question, sql string) (string, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(sql) == "" {
		return "", ErrEmptyContent
	}
	return m.add(ctx, Record{
		ID:        recordID(projectID, CategorySQL, question, sql),
		ProjectID: projectID,
		Category:  CategorySQL,
		Question:  question,
		Content:   sql,
	})
}

// AddDDL implements Store.
func (m *Memory) AddDDL(ctx context.Context, projectID uuid.UUID, ddl string) (string, error) {
	if strings.TrimSpace(ddl) == "" {
		return "", ErrEmptyContent
	}
	return m.add(ctx, Record{
		ID:        recordID(projectID, CategoryDDL, ddl),
		ProjectID: projectID,
		Category:  CategoryDDL,
		Content:   ddl,
	})
}

// AddDocumentation implements Store.
func (m *Memory) AddDocumentation(ctx context.Context, projectID uuid.UUID, doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", ErrEmptyContent
	}
	return m.add(ctx, Record{
		ID:        recordID(projectID, CategoryDocumentation, doc),
		ProjectID: projectID,
		Category:  CategoryDocumentation,
		Content:   doc,
	})
}

// add embeds the record and upserts it. Re-adding an existing id refreshes
// the record in place, keeping its insertion position.
func (m *Memory) add(ctx context.Context, rec Record) (string, error) {
	if err := m.checkProject(ctx, rec.ProjectID); err != nil {
		return "", err
	}

	vec, err := m.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return "", fmt.Errorf("embedding record: %w", err)
	}
	rec.Embedding = vec

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConfigLocked(len(vec)); err != nil {
		return "", err
	}

	if existing, ok := m.byID[rec.ID]; ok {
		existing.Question = rec.Question
		existing.Content = rec.Content
		existing.Embedding = rec.Embedding
		return rec.ID, nil
	}

	rec.CreatedAt = time.Now()
	rec.Metadata = map[string]string{
		"project_id": rec.ProjectID.String(),
		"category":   string(rec.Category),
	}
	stored := rec
	m.records = append(m.records, &stored)
	m.byID[rec.ID] = &stored
	return rec.ID, nil
}

// ensureConfigLocked initializes the store config on first write and
// rejects vectors from a different embedding space afterwards.
func (m *Memory) ensureConfigLocked(dim int) error {
	if m.cfg == nil {
		m.cfg = &StoreConfig{EmbedderName: m.embedder.Name(), Dimension: dim}
		return nil
	}
	if m.cfg.Dimension != dim {
		return fmt.Errorf("%w: store has %d, got %d", ErrDimensionMismatch, m.cfg.Dimension, dim)
	}
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.byID, id)
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			break
		}
	}
	return nil
}

// ListByProject implements Store.
func (m *Memory) ListByProject(ctx context.Context, projectID uuid.UUID, category Category) ([]Record, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := m.checkProject(ctx, projectID); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, r := range m.records {
		if r.ProjectID == projectID && r.Category == category {
			rec := *r
			rec.Embedding = nil
			out = append(out, rec)
		}
	}
	return out, nil
}

// All implements Store.
func (m *Memory) All(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

// Search implements Store.
func (m *Memory) Search(ctx context.Context, projectID uuid.UUID, category Category, embedding []float32, k int) ([]SearchResult, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := m.checkProject(ctx, projectID); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg != nil && len(embedding) != m.cfg.Dimension {
		return nil, fmt.Errorf("%w: store has %d, query has %d", ErrDimensionMismatch, m.cfg.Dimension, len(embedding))
	}

	var results []SearchResult
	for _, r := range m.records {
		if r.ProjectID != projectID || r.Category != category {
			continue
		}
		rec := *r
		rec.Embedding = nil
		results = append(results, SearchResult{
			Record:     rec,
			Similarity: CosineSimilarity(embedding, r.Embedding),
		})
	}

	// Stable sort keeps insertion order for equal similarities, which also
	// covers zero-norm queries where every similarity is 0.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > k {
		results = results[:k]
	}
	if results == nil {
		results = []SearchResult{}
	}
	return results, nil
}

// Count implements Store.
func (m *Memory) Count(ctx context.Context, projectID uuid.UUID, category Category) (int, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	if err := m.checkProject(ctx, projectID); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.records {
		if r.ProjectID == projectID && r.Category == category {
			count++
		}
	}
	return count, nil
}

// DeleteProject implements Store.
func (m *Memory) DeleteProject(_ context.Context, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if r.ProjectID == projectID {
			delete(m.byID, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return nil
}

// ApplyMigration implements Store. The whole swap happens under the write
// lock, so a concurrent Search sees either every old vector or every new one.
func (m *Memory) ApplyMigration(_ context.Context, vectors map[string][]float32, cfg StoreConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, vec := range vectors {
		if len(vec) != cfg.Dimension {
			return fmt.Errorf("%w: config has %d, vector for %s has %d",
				ErrDimensionMismatch, cfg.Dimension, id, len(vec))
		}
	}

	dimensionChange := m.cfg != nil && m.cfg.Dimension != cfg.Dimension
	if dimensionChange {
		for _, r := range m.records {
			if _, ok := vectors[r.ID]; !ok {
				return fmt.Errorf("record %s added during dimension-changing migration, rerun", r.ID)
			}
		}
	}

	for id, vec := range vectors {
		if r, ok := m.byID[id]; ok {
			r.Embedding = vec
		}
	}
	m.cfg = &cfg
	return nil
}

// Config implements Store.
func (m *Memory) Config(_ context.Context) (*StoreConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg == nil {
		return nil, nil
	}
	cfg := *m.cfg
	return &cfg, nil
}

// checkProject consults the injected ProjectChecker, if any.
func (m *Memory) checkProject(ctx context.Context, projectID uuid.UUID) error {
	if m.checker == nil {
		return nil
	}
	exists, err := m.checker.ProjectExists(ctx, projectID)
	if err != nil {
		return fmt.Errorf("checking project %s: %w", projectID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}
