// Package llm provides the language model clients used to group station
// items into offerings.
package llm

import (
	"context"
	"fmt"

	"fuelstack/internal/config"
	"fuelstack/internal/shared"
)

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator generates text for a system/user prompt pair. Implementations
// are asked for a JSON object.
type TextGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// NewFromConfig returns the generator selected by cfg.LLMProvider. The
// returned Closer is a no-op for providers without resources to release.
func NewFromConfig(ctx context.Context, cfg *config.Config) (TextGenerator, Closer, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, nil, err
	}
	switch cfg.LLMProvider {
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	case "groq":
		return NewGroqClient(cfg.GroqAPIKey), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
