// Package server exposes document analysis and stored records over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/metrics"
	"github.com/ziadkadry99/docintake/internal/pipeline"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

// DefaultMaxUploadBytes caps multipart uploads.
const DefaultMaxUploadBytes = 32 << 20

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
	// MaxUploadBytes caps the request body of /process-document.
	MaxUploadBytes int64
	// Policy is the confidence policy for /process-document.
	Policy classifier.Policy
	// UploadDir receives temporary upload copies. Empty means os.TempDir.
	UploadDir string
}

// Analyzer runs the unpersisted single-document pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, path string, policy classifier.Policy) (*pipeline.Analysis, error)
}

// RecordReader reads full records from the relational store.
type RecordReader interface {
	GetRecord(ctx context.Context, filename string) (*db.StoredRecord, error)
}

// Deps are the server's collaborators. Any of them may be nil, in which
// case the routes that need it answer 503.
type Deps struct {
	Analyzer Analyzer
	Records  RecordReader
	Store    vectordb.RecordStore
	Metrics  *metrics.Metrics
}

// Server is the document intake HTTP API.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a server with all routes mounted.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Policy == "" {
		cfg.Policy = classifier.PolicyInverseDistance
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.Middleware)
	}

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Post("/process-document", s.handleProcessDocument)
	r.Get("/records/{filename}", s.handleGetRecord)
	r.Get("/search", s.handleSearch)

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router { return s.router }

// Start listens on the configured port until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("docintake server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
