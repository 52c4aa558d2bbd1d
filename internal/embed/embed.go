// Package embed defines the embedding abstraction used by the vector store
// and retrieval layers, plus the Genkit-backed production implementation.
//
// An Embedder turns text into a fixed-dimension float32 vector. The store
// records which embedder produced its vectors (name + dimension) so that a
// model change is detected at startup and handled by re-embedding rather
// than by silently mixing incompatible vectors.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"google.golang.org/genai"
)

var (
	// ErrEmptyInput indicates the text to embed is empty or whitespace.
	ErrEmptyInput = errors.New("empty input text")

	// ErrEmptyEmbedding indicates the provider returned no embedding.
	ErrEmptyEmbedding = errors.New("provider returned empty embedding")
)

// Embedder turns text into a vector.
//
// Implementations must be safe for concurrent use. Name and Dimension
// identify the embedding space: two embedders with the same name and
// dimension produce comparable vectors.
type Embedder interface {
	// Embed returns the embedding for text. The returned slice always has
	// length Dimension().
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the output dimensionality of this embedder.
	Dimension() int

	// Name returns a stable identifier for the embedding model,
	// e.g. "gemini-embedding-001".
	Name() string
}

// Genkit adapts a Genkit ai.Embedder to the Embedder interface,
// requesting a fixed output dimensionality from the provider.
type Genkit struct {
	embedder  ai.Embedder
	name      string
	dimension int
}

// NewGenkit wraps a Genkit embedder. name is the model identifier recorded
// in the store config; dimension is requested via OutputDimensionality.
func NewGenkit(embedder ai.Embedder, name string, dimension int) *Genkit {
	return &Genkit{embedder: embedder, name: name, dimension: dimension}
}

// Embed implements Embedder.
func (g *Genkit) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	dim := int32(g.dimension)
	req := &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(text, nil),
		},
		Options: &genai.EmbedContentConfig{
			OutputDimensionality: &dim,
		},
	}

	resp, err := g.embedder.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	vec := resp.Embeddings[0].Embedding
	if len(vec) != g.dimension {
		return nil, fmt.Errorf("provider returned %d dimensions, want %d", len(vec), g.dimension)
	}

	return vec, nil
}

// Dimension implements Embedder.
func (g *Genkit) Dimension() int { return g.dimension }

// Name implements Embedder.
func (g *Genkit) Name() string { return g.name }
