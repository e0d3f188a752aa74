// Package pipeline runs the page → jobs → matches → documents flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/jd-validator/internal/composer"
	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/jobs"
	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/metrics"
)

type Loader interface {
	Load(ctx context.Context, force bool) error
}

type Extractor interface {
	Extract(ctx context.Context, pageText string) ([]jobs.Record, error)
}

type Matcher interface {
	Match(ctx context.Context, rec jobs.Record) (index.MatchGroup, error)
}

type Composer interface {
	Compose(ctx context.Context, rec jobs.Record, matches index.MatchGroup) (string, error)
}

// Deps aggregates the components used by every processed page.
type Deps struct {
	Index     Loader
	Extractor Extractor
	Matcher   Matcher
	Composer  Composer
	Logger    *zap.Logger
}

type Options struct {
	// Concurrency is the number of jobs of one page processed at once.
	// Values below 2 process jobs sequentially.
	Concurrency int
}

// Result is the outcome for a single extracted job.
type Result struct {
	Job      jobs.Record      `json:"job"`
	Matches  index.MatchGroup `json:"matches"`
	Document string           `json:"document,omitempty"`
	Missing  []string         `json:"missing_sections,omitempty"`
	Error    string           `json:"error,omitempty"`

	Err error `json:"-"`
}

// Step summarizes a processed page.
type Step struct {
	Initial  int `json:"initial"`
	Failed   int `json:"failed"`
	Composed int `json:"composed"`
}

// Report holds the results of one page in extraction order.
type Report struct {
	Results []Result `json:"results"`
	Step    Step     `json:"step"`
}

type Pipeline struct {
	deps        Deps
	logger      *zap.Logger
	concurrency int
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Index == nil:
		return nil, errors.New("skill index is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Matcher == nil:
		return nil, errors.New("matcher is required")
	case deps.Composer == nil:
		return nil, errors.New("composer is required")
	}

	return &Pipeline{
		deps:        deps,
		logger:      logger.OrNop(deps.Logger),
		concurrency: opts.Concurrency,
	}, nil
}

// Process loads the index if it is empty, extracts the jobs of pageText and
// composes a document per job. A failing job is recorded in its Result and
// does not stop the others. Extraction or index load failures fail the page.
func (p *Pipeline) Process(ctx context.Context, pageText string) (*Report, error) {
	if err := p.deps.Index.Load(ctx, false); err != nil {
		return nil, fmt.Errorf("load skill index: %w", err)
	}

	records, err := p.deps.Extractor.Extract(ctx, pageText)
	if err != nil {
		return nil, fmt.Errorf("extract jobs: %w", err)
	}

	results := make([]Result, len(records))

	if p.concurrency > 1 && len(records) > 1 {
		var g errgroup.Group
		g.SetLimit(p.concurrency)
		for i, rec := range records {
			g.Go(func() error {
				results[i] = p.processJob(ctx, rec)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, rec := range records {
			results[i] = p.processJob(ctx, rec)
		}
	}

	report := &Report{Results: results, Step: Step{Initial: len(records)}}
	for _, r := range results {
		if r.Err != nil {
			report.Step.Failed++
			continue
		}
		report.Step.Composed++
	}

	p.logger.Info("page processed",
		zap.Int("initial", report.Step.Initial),
		zap.Int("failed", report.Step.Failed),
		zap.Int("composed", report.Step.Composed),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	return report, nil
}

func (p *Pipeline) processJob(ctx context.Context, rec jobs.Record) Result {
	res := Result{Job: rec}
	log := p.logger.With(zap.String("role", rec.Role))

	fail := func(err error) Result {
		res.Err = err
		res.Error = err.Error()
		metrics.JobsProcessedTotal.WithLabelValues("error").Inc()
		log.Warn("job failed", zap.Error(err))
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	matches, err := p.deps.Matcher.Match(ctx, rec)
	if err != nil {
		return fail(fmt.Errorf("match skills: %w", err))
	}
	res.Matches = matches

	doc, err := p.deps.Composer.Compose(ctx, rec, matches)
	if err != nil {
		return fail(err)
	}
	res.Document = doc

	if outline := composer.Sections(doc); !outline.Complete() {
		res.Missing = outline.Missing()
		log.Warn("composed document does not follow the requested outline",
			zap.Strings("missing", res.Missing),
			zap.Bool("in_order", outline.InOrder),
		)
	}

	metrics.JobsProcessedTotal.WithLabelValues("success").Inc()
	log.Debug("job composed", zap.Int("links", len(matches.Links())))

	return res
}
