package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/sqlpilot/sqlpilot/internal/embed"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder("mock-embedder", 4)

	a, err := m.Embed(ctx, "total sales")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	b, err := m.Embed(ctx, "total sales")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 4 {
		t.Fatalf("len(vec) = %d, want 4", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same text embedded differently at %d: %v vs %v", i, a[i], b[i])
		}
	}
	if m.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", m.Calls())
	}
}

func TestMockEmbedderRejectsEmptyInput(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder("mock-embedder", 4)

	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := m.Embed(ctx, text); !errors.Is(err, embed.ErrEmptyInput) {
			t.Errorf("Embed(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
	if m.Calls() != 0 {
		t.Errorf("Calls() = %d, want 0 for rejected input", m.Calls())
	}
}

func TestMockEmbedderOverride(t *testing.T) {
	ctx := context.Background()
	m := NewMockEmbedder("mock-embedder", 4)
	m.SetVector("pinned", []float32{1, 0, 0, 0})

	vec, err := m.Embed(ctx, "pinned")
	if err != nil {
		t.Fatal(err)
	}
	if vec[0] != 1 || vec[1] != 0 {
		t.Errorf("Embed(pinned) = %v, want the pinned vector", vec)
	}
}
