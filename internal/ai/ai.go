// Package ai defines the generative and embedding model capabilities used by
// the extraction, composition and indexing layers, plus wrappers that add
// opt-in retries and metrics around any provider.
package ai

import (
	"context"
)

// Provider names accepted in configuration.
const (
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"
	ProviderGroq    = "groq"
	ProviderHashing = "hashing"
)

// DefaultTemperature matches the sampling temperature the prompts were tuned with.
const DefaultTemperature float32 = 0.7

// Generator turns a prompt into raw model text. Implementations are
// non-deterministic; callers must not rely on identical output for identical input.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into vectors, one per input text and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
