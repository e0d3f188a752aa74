package jobs

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/ai"
	"github.com/spigell/jd-validator/internal/logger"
)

//go:embed extract.md
var extractTemplate string

const defaultMaxLogLength = 200

// Extractor asks a generative model for the job postings contained in page text.
type Extractor struct {
	generator ai.Generator
	logger    *zap.Logger
	maxLogLen int
}

// NewExtractor creates an Extractor. Prompts and responses are logged at debug
// level, truncated to maxLogLength.
func NewExtractor(generator ai.Generator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		generator: generator,
		logger:    logger.OrNop(log),
		maxLogLen: maxLogLength,
	}
}

// Extract makes exactly one model call. A response that does not parse
// yields a *ParseError and no records.
func (e *Extractor) Extract(ctx context.Context, pageText string) ([]Record, error) {
	prompt := buildExtractPrompt(pageText)

	e.logger.Debug("job extraction request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate job records: %w", err)
	}

	e.logger.Debug("job extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	records, err := parseRecords(raw)
	if err != nil {
		e.logger.Warn("job extraction response rejected",
			zap.Error(err),
			zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
		)
		return nil, err
	}

	e.logger.Info("jobs extracted", zap.Int("jobs", len(records)))

	return records, nil
}

func buildExtractPrompt(pageText string) string {
	return strings.ReplaceAll(extractTemplate, "{{PAGE_TEXT}}", pageText)
}
