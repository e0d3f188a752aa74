package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/composer"
	"github.com/spigell/jd-validator/internal/index"
	"github.com/spigell/jd-validator/internal/jobs"
	"github.com/spigell/jd-validator/internal/page"
	"github.com/spigell/jd-validator/internal/pipeline"
)

const maxUploadSize = 10 << 20

type ProcessRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePortfolioCount(w http.ResponseWriter, r *http.Request) {
	s.respondCount(w, r, http.StatusOK)
}

func (s *Server) handlePortfolioLoad(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	// A forced load would only clear the index.
	if force && !s.index.HasCorpus() {
		respondError(w, http.StatusConflict, "no portfolio corpus available; upload a CSV first")
		return
	}

	if err := s.index.Load(r.Context(), force); err != nil {
		s.respondFailure(w, "load portfolio", err)
		return
	}
	s.respondCount(w, r, http.StatusOK)
}

func (s *Server) handlePortfolioClear(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Clear(r.Context()); err != nil {
		s.respondFailure(w, "clear portfolio", err)
		return
	}
	s.respondCount(w, r, http.StatusOK)
}

// handlePortfolioUpload replaces the corpus with an uploaded CSV and reloads
// the index from it.
func (s *Server) handlePortfolioUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "read upload: "+err.Error())
		return
	}

	corpus, err := s.parser.Parse(data)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(corpus.Entries) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":    "portfolio has no valid rows",
			"rejected": corpus.Rejected,
		})
		return
	}

	s.index.SetCorpus(corpus.Entries)
	if err := s.index.Load(r.Context(), true); err != nil {
		s.respondFailure(w, "load uploaded portfolio", err)
		return
	}

	count, err := s.index.Count(r.Context())
	if err != nil {
		s.respondFailure(w, "count portfolio", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"collection": s.index.Collection(),
		"count":      count,
		"rejected":   corpus.Rejected,
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if (req.URL == "") == (strings.TrimSpace(req.Text) == "") {
		respondError(w, http.StatusBadRequest, "exactly one of url or text is required")
		return
	}

	var (
		report *pipeline.Report
		err    error
	)
	if req.URL != "" {
		report, err = s.processor.URL(r.Context(), req.URL)
	} else {
		report, err = s.processor.Text(r.Context(), req.Text)
	}
	if err != nil {
		s.respondFailure(w, "process page", err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func (s *Server) respondCount(w http.ResponseWriter, r *http.Request, status int) {
	count, err := s.index.Count(r.Context())
	if err != nil {
		s.respondFailure(w, "count portfolio", err)
		return
	}
	respondJSON(w, status, map[string]any{
		"collection": s.index.Collection(),
		"count":      count,
		"has_corpus": s.index.HasCorpus(),
	})
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	}
	respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, jobs.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, page.ErrFetch), errors.Is(err, composer.ErrCompose):
		return http.StatusBadGateway
	case errors.Is(err, index.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
