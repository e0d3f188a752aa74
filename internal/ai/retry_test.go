package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func noWait(t *testing.T) *[]time.Duration {
	t.Helper()

	var waits []time.Duration
	original := after
	after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	t.Cleanup(func() { after = original })

	return &waits
}

type flakyGenerator struct {
	errs  []error
	calls int
}

func (f *flakyGenerator) GenerateContent(_ context.Context, _ string) (string, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return "ok", nil
}

func TestWithRetryDisabledReturnsSameGenerator(t *testing.T) {
	gen := &flakyGenerator{}
	if got := WithRetry(gen, Policy{}, zap.NewNop()); got != Generator(gen) {
		t.Fatalf("expected generator to be returned unchanged")
	}
}

func TestWithRetryRecoversFromTemporaryError(t *testing.T) {
	waits := noWait(t)

	gen := &flakyGenerator{errs: []error{errors.New("503"), errors.New("503")}}
	wrapped := WithRetry(gen, Policy{MaxRetries: 2, Backoff: time.Second}, zap.NewNop())

	out, err := wrapped.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output: %q", out)
	}
	if gen.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", gen.calls)
	}
	if len(*waits) != 2 || (*waits)[0] != time.Second || (*waits)[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence: %v", *waits)
	}
}

func TestWithRetryStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	gen := &flakyGenerator{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	wrapped := WithRetry(gen, Policy{MaxRetries: 1}, zap.NewNop())

	if _, err := wrapped.GenerateContent(context.Background(), "prompt"); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.calls)
	}
}

func TestWithRetrySkipsNonRetryableError(t *testing.T) {
	noWait(t)

	permanent := errors.New("bad request")
	gen := &flakyGenerator{errs: []error{permanent}}
	wrapped := WithRetry(gen, Policy{
		MaxRetries: 3,
		Retryable:  func(err error) bool { return !errors.Is(err, permanent) },
	}, zap.NewNop())

	_, err := wrapped.GenerateContent(context.Background(), "prompt")
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("expected single call, got %d", gen.calls)
	}
}

func TestDoDoesNotRetryCancellation(t *testing.T) {
	noWait(t)

	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3}, nil, "embed", func(context.Context) error {
		calls++
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
}

func TestPolicyDelayIsCapped(t *testing.T) {
	p := Policy{Backoff: time.Second, MaxBackoff: 3 * time.Second}

	if got := p.delay(1); got != time.Second {
		t.Fatalf("unexpected first delay: %v", got)
	}
	if got := p.delay(2); got != 2*time.Second {
		t.Fatalf("unexpected second delay: %v", got)
	}
	if got := p.delay(5); got != 3*time.Second {
		t.Fatalf("expected capped delay, got %v", got)
	}
}

type staticEmbedder struct{ calls int }

func (s *staticEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.calls == 1 {
		return nil, errors.New("timeout")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestWithEmbedRetry(t *testing.T) {
	noWait(t)

	e := &staticEmbedder{}
	vectors, err := WithEmbedRetry(e, Policy{MaxRetries: 1}, nil).Embed(context.Background(), []string{"go", "rust"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || e.calls != 2 {
		t.Fatalf("unexpected result: %d vectors after %d calls", len(vectors), e.calls)
	}
}
