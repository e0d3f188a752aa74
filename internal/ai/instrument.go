package ai

import (
	"context"
	"time"

	"github.com/spigell/jd-validator/internal/metrics"
)

type instrumentedGenerator struct {
	next     Generator
	provider string
	model    string
}

// Instrument records request counts and latency for every generation call.
func Instrument(gen Generator, provider, model string) Generator {
	return &instrumentedGenerator{next: gen, provider: provider, model: model}
}

func (g *instrumentedGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := g.next.GenerateContent(ctx, prompt)

	metrics.GenerationRequestsTotal.WithLabelValues(g.provider, g.model, metrics.Status(err)).Inc()
	if err == nil {
		metrics.GenerationRequestDuration.WithLabelValues(g.provider, g.model).Observe(time.Since(start).Seconds())
	}
	return out, err
}

type instrumentedEmbedder struct {
	next     Embedder
	provider string
	model    string
}

// InstrumentEmbedder records request counts for every embedding call.
func InstrumentEmbedder(e Embedder, provider, model string) Embedder {
	return &instrumentedEmbedder{next: e, provider: provider, model: model}
}

func (e *instrumentedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := e.next.Embed(ctx, texts)
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, e.model, metrics.Status(err)).Inc()
	return out, err
}
