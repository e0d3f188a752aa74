// Package composer writes the tailored output document for a job: an
// evaluation, CV suggestions and a cover letter.
package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/jobs"
	"github.com/spigell/jd-validator/internal/logger"
)

//go:embed compose.md
var composeTemplate string

const defaultMaxLogLength = 200

// ErrCompose marks a failed model call while composing a document.
var ErrCompose = errors.New("compose document")

// Composer drafts the application document for one job with a single
// generation call.
type Composer struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

// NewComposer creates a Composer. Prompt previews in debug logs are truncated
// to maxLogLength.
func NewComposer(generator ai.Generator, log *zap.Logger, maxLogLength int) *Composer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Composer{
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: maxLogLength,
	}
}

// Compose makes exactly one model call and returns its text unchanged.
func (c *Composer) Compose(ctx context.Context, rec jobs.Record, matches index.MatchGroup) (string, error) {
	prompt, err := buildPrompt(rec, matches)
	if err != nil {
		return "", err
	}

	c.logger.Debug("compose request",
		zap.String("role", rec.Role),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, c.maxLogLen)),
	)

	text, err := c.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w for %q: %w", ErrCompose, rec.Role, err)
	}

	c.logger.Debug("compose response",
		zap.String("role", rec.Role),
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", logger.TruncateForLog(text, c.maxLogLen)),
	)

	return text, nil
}

func buildPrompt(rec jobs.Record, matches index.MatchGroup) (string, error) {
	jobJSON, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job record: %w", err)
	}

	links := make([][]string, len(matches))
	for i, group := range matches {
		links[i] = make([]string, 0, len(group))
		for _, m := range group {
			if l := m[index.MetadataLinks]; l != "" {
				links[i] = append(links[i], l)
			}
		}
	}

	linksJSON, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("marshal links: %w", err)
	}

	prompt := strings.ReplaceAll(composeTemplate, "{{JOB_JSON}}", string(jobJSON))
	return strings.ReplaceAll(prompt, "{{LINKS_JSON}}", string(linksJSON)), nil
}
