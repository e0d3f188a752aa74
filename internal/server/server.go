// Package server exposes the pipeline and the skill index controls over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/jd-validator/internal/logger"
	"github.com/spigell/jd-validator/internal/pipeline"
	"github.com/spigell/jd-validator/internal/portfolio"
)

const shutdownTimeout = 10 * time.Second

// Index is the subset of the skill index the server controls.
type Index interface {
	Collection() string
	SetCorpus(entries []portfolio.Entry)
	HasCorpus() bool
	Load(ctx context.Context, force bool) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type Processor interface {
	URL(ctx context.Context, u string) (*pipeline.Report, error)
	Text(ctx context.Context, text string) (*pipeline.Report, error)
}

type CorpusParser interface {
	Parse(data []byte) (*portfolio.Corpus, error)
}

type Deps struct {
	Index     Index
	Processor Processor
	Parser    CorpusParser
	Logger    *zap.Logger
}

type Server struct {
	router    *chi.Mux
	index     Index
	processor Processor
	parser    CorpusParser
	logger    *zap.Logger
}

func New(deps Deps) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		index:     deps.Index,
		processor: deps.Processor,
		parser:    deps.Parser,
		logger:    logger.OrNop(deps.Logger),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/portfolio", func(r chi.Router) {
		r.Get("/", s.handlePortfolioCount)
		r.Delete("/", s.handlePortfolioClear)
		r.Post("/load", s.handlePortfolioLoad)
		r.Post("/upload", s.handlePortfolioUpload)
	})

	s.router.Post("/process", s.handleProcess)
}

func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
