package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/metrics"
)

const (
	defaultBackoff    = 2 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// after is replaced in tests to skip real waiting.
var after = time.After

// Policy configures the opt-in retry wrapper. The zero value performs a single
// attempt, which is the default behaviour of every provider.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first one.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles on every retry.
	Backoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Retryable decides whether an error is worth another attempt. When nil
	// every error except context cancellation is retried.
	Retryable func(error) bool
}

// Enabled reports whether the policy performs more than one attempt.
func (p Policy) Enabled() bool {
	return p.MaxRetries > 0
}

func (p Policy) delay(retry int) time.Duration {
	d := p.Backoff
	if d <= 0 {
		d = defaultBackoff
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

func (p Policy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
func Do(ctx context.Context, p Policy, log *zap.Logger, operation string, fn func(context.Context) error) error {
	log = logger.OrNop(log)

	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := p.delay(attempt)
			log.Warn("retrying after failure",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", p.MaxRetries+1),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			metrics.RetriesTotal.WithLabelValues(operation).Inc()

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: %w (last error: %v)", operation, ctx.Err(), err)
			case <-after(wait):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return err
		}
	}

	if p.MaxRetries > 0 {
		return fmt.Errorf("%s: giving up after %d attempts: %w", operation, p.MaxRetries+1, err)
	}
	return err
}

type retryingGenerator struct {
	next   Generator
	policy Policy
	logger *zap.Logger
}

// WithRetry wraps gen with the retry policy. A disabled policy returns gen unchanged.
func WithRetry(gen Generator, p Policy, log *zap.Logger) Generator {
	if !p.Enabled() {
		return gen
	}
	return &retryingGenerator{next: gen, policy: p, logger: log}
}

func (r *retryingGenerator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var out string
	err := Do(ctx, r.policy, r.logger, "generate", func(ctx context.Context) error {
		var err error
		out, err = r.next.GenerateContent(ctx, prompt)
		return err
	})
	return out, err
}

type retryingEmbedder struct {
	next   Embedder
	policy Policy
	logger *zap.Logger
}

// WithEmbedRetry wraps e with the retry policy. A disabled policy returns e unchanged.
func WithEmbedRetry(e Embedder, p Policy, log *zap.Logger) Embedder {
	if !p.Enabled() {
		return e
	}
	return &retryingEmbedder{next: e, policy: p, logger: log}
}

func (r *retryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := Do(ctx, r.policy, r.logger, "embed", func(ctx context.Context) error {
		var err error
		out, err = r.next.Embed(ctx, texts)
		return err
	})
	return out, err
}
