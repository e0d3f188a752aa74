package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/page"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PageReport is the outcome of one URL.
type PageReport struct {
	URL    string  `json:"url"`
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`

	Err error `json:"-"`
}

// Runner feeds pages into a Pipeline.
type Runner struct {
	fetcher  Fetcher
	pipeline *Pipeline
	logger   *zap.Logger
}

func NewRunner(fetcher Fetcher, p *Pipeline, log *zap.Logger) *Runner {
	return &Runner{fetcher: fetcher, pipeline: p, logger: logger.OrNop(log)}
}

// Run processes urls in order. A failing page is recorded and the next one
// is processed; after cancellation the remaining pages are marked as failed.
func (r *Runner) Run(ctx context.Context, urls []string) []PageReport {
	reports := make([]PageReport, 0, len(urls))

	for _, u := range urls {
		pr := PageReport{URL: u}

		if err := ctx.Err(); err != nil {
			pr.Err = err
		} else {
			pr.Report, pr.Err = r.URL(ctx, u)
		}

		if pr.Err != nil {
			pr.Error = pr.Err.Error()
			r.logger.Error("page failed", zap.String("url", u), zap.Error(pr.Err))
		}

		reports = append(reports, pr)
	}

	return reports
}

// URL fetches a single page, cleans its text and processes it.
func (r *Runner) URL(ctx context.Context, u string) (*Report, error) {
	if r.fetcher == nil {
		return nil, errors.New("page fetcher is not configured")
	}

	text, err := r.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	report, err := r.Text(ctx, text)
	if err != nil {
		return report, fmt.Errorf("%s: %w", u, err)
	}
	return report, nil
}

// Text cleans already loaded page text and processes it.
func (r *Runner) Text(ctx context.Context, text string) (*Report, error) {
	cleaned := page.Clean(text)
	if cleaned == "" {
		return nil, errors.New("page has no text")
	}
	return r.pipeline.Process(ctx, cleaned)
}
