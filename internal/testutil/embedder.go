package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"

	"github.com/sqlpilot/sqlpilot/internal/embed"
)

// MockEmbedder produces deterministic embeddings for testing: the vector is
// derived from a SHA-256 hash of the text, so the same text always embeds
// to the same vector and different texts (almost) never collide.
//
// SetVector overrides the embedding for specific texts, letting tests
// construct exact similarity orderings.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	name string
	dim  int

	mu        sync.Mutex
	overrides map[string][]float32
	err       error
	calls     int
}

// NewMockEmbedder creates a mock embedder with the given model name and
// output dimensionality.
func NewMockEmbedder(name string, dim int) *MockEmbedder {
	return &MockEmbedder{
		name:      name,
		dim:       dim,
		overrides: make(map[string][]float32),
	}
}

// SetVector pins the embedding returned for an exact text.
// The vector length must equal the embedder's dimension.
func (m *MockEmbedder) SetVector(text string, vec []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[text] = vec
}

// SetError makes all subsequent Embed calls fail with err.
// Pass nil to clear.
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Embed invocations.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed implements embed.Embedder. Empty input is rejected with the same
// sentinel the production embedder uses.
func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, embed.ErrEmptyInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if vec, ok := m.overrides[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}

	return hashVector(text, m.dim), nil
}

// Dimension implements embed.Embedder.
func (m *MockEmbedder) Dimension() int { return m.dim }

// Name implements embed.Embedder.
func (m *MockEmbedder) Name() string { return m.name }

// hashVector derives a unit-norm vector of the given dimension from the
// SHA-256 hash of the (trimmed, lowercased) text.
func hashVector(text string, dim int) []float32 {
	seed := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Stretch the 32-byte seed by hashing it with the index.
		var buf [40]byte
		copy(buf[:32], seed[:])
		binary.BigEndian.PutUint64(buf[32:], uint64(i))
		h := sha256.Sum256(buf[:])
		u := binary.BigEndian.Uint64(h[:8])
		// Map to [-1, 1).
		vec[i] = float32(int64(u)) / float32(math.MaxInt64)
		norm += float64(vec[i]) * float64(vec[i])
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
