// Package portfolio reads the portfolio corpus: one entry per CSV row with
// the skills of a project and the links that showcase it.
package portfolio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
)

const (
	ColumnTechstack = "Techstack"
	ColumnLinks     = "Links"
)

var (
	// ErrMissingColumns is returned when the header lacks a required column.
	ErrMissingColumns = errors.New("portfolio csv must contain Techstack and Links columns")
	// ErrEmpty is returned for a file without a header row.
	ErrEmpty = errors.New("portfolio csv is empty")
)

// Entry is one portfolio corpus row.
type Entry struct {
	Techstack string `json:"techstack" validate:"required"`
	Links     string `json:"links" validate:"required"`
}

// Rejection describes a row that failed validation. Row is 1-based and
// counts the header, so it matches what a spreadsheet shows.
type Rejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Corpus is the result of reading a portfolio file.
type Corpus struct {
	Entries  []Entry     `json:"entries"`
	Rejected []Rejection `json:"rejected,omitempty"`
}

// Reader parses portfolio CSV data.
type Reader struct {
	validate *validator.Validate
	logger   *zap.Logger
}

func NewReader(log *zap.Logger) *Reader {
	return &Reader{
		validate: validator.New(),
		logger:   logger.OrNop(log),
	}
}

// ReadFile reads and parses the portfolio file at path.
func (r *Reader) ReadFile(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio file: %w", err)
	}

	corpus, err := r.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse portfolio file %s: %w", path, err)
	}

	return corpus, nil
}

// Parse decodes raw CSV bytes in any of the supported encodings and returns
// the valid entries plus the rows that were quarantined.
func (r *Reader) Parse(data []byte) (*Corpus, error) {
	text, charset, err := Decode(data)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("portfolio encoding detected", zap.String("charset", charset))

	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	techIdx, linksIdx := columnIndex(header, ColumnTechstack), columnIndex(header, ColumnLinks)
	if techIdx < 0 || linksIdx < 0 {
		return nil, fmt.Errorf("%w (got %s)", ErrMissingColumns, strings.Join(header, ", "))
	}

	corpus := &Corpus{Entries: []Entry{}}
	row := 1

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row, err)
		}

		if isBlank(record) {
			continue
		}

		entry := Entry{
			Techstack: strings.TrimSpace(field(record, techIdx)),
			Links:     strings.TrimSpace(field(record, linksIdx)),
		}

		if err := r.validate.Struct(entry); err != nil {
			reason := describe(err)
			r.logger.Warn("portfolio row rejected", zap.Int("row", row), zap.String("reason", reason))
			corpus.Rejected = append(corpus.Rejected, Rejection{Row: row, Reason: reason})
			continue
		}

		corpus.Entries = append(corpus.Entries, entry)
	}

	r.logger.Info("portfolio parsed",
		zap.Int("entries", len(corpus.Entries)),
		zap.Int("rejected", len(corpus.Rejected)),
	)

	return corpus, nil
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return record[idx]
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}
