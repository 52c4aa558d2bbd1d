// Package llm abstracts SQL generation behind a small Generator interface
// and provides the Genkit-backed production implementation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

var (
	// ErrProvider indicates the model provider returned an error.
	ErrProvider = errors.New("llm provider error")

	// ErrEmptyResponse indicates the model returned no text.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// Generator produces text completions.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate returns the model's completion for the given prompts.
	Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

// Genkit is the production Generator backed by a Genkit model.
// Calls are throttled by a token-bucket rate limiter.
type Genkit struct {
	g         *genkit.Genkit
	modelName string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewGenkit creates a Genkit-backed generator. modelName is the
// provider-qualified model name (e.g. "googleai/gemini-2.5-flash").
// rps caps requests per second; 0 disables throttling.
func NewGenkit(g *genkit.Genkit, modelName string, rps float64, logger *slog.Logger) (*Genkit, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Genkit{g: g, modelName: modelName, limiter: limiter, logger: logger}, nil
}

// Generate implements Generator.
func (l *Genkit) Generate(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
		ai.WithConfig(map[string]any{"temperature": temperature}),
	)
	if err != nil {
		l.logger.Warn("generation failed", "model", l.modelName, "error", err)
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
