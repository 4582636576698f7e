// Package api provides HTTP handlers and the main API server logic for SurveyPipe.
//
// It exposes RESTful endpoints for managing surveys and driving survey
// conversation sessions. The API integrates the flow, genai, and store modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/SurveyPipe/internal/flow"
	"github.com/BTreeMap/SurveyPipe/internal/genai"
	"github.com/BTreeMap/SurveyPipe/internal/store"
)

// DefaultAddr is the address the API server listens on when none is configured.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server holds the API server dependencies.
type Server struct {
	st           store.Store
	orchestrator *flow.Orchestrator
	addr         string
}

// NewServer creates an API server with explicit dependencies.
func NewServer(st store.Store, language flow.LanguageService, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("api.NewServer: creating server", "addr", cfg.Addr, "hasStore", st != nil, "hasLanguage", language != nil)
	return &Server{
		st:           st,
		orchestrator: flow.NewOrchestrator(st, language),
		addr:         cfg.Addr,
	}
}

// Handler returns the routed HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /surveys", s.createSurveyHandler)
	mux.HandleFunc("GET /surveys/{externalID}", s.getSurveyHandler)
	mux.HandleFunc("POST /s/{externalID}/init", s.initSessionHandler)
	mux.HandleFunc("POST /s/{externalID}/respond", s.respondHandler)
	mux.HandleFunc("GET /sessions/{sessionID}/report", s.getReportHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	slog.Info("SurveyPipe API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// Run wires the configured store, GenAI client, and API server together and
// serves until the listener fails. When no OpenAI key is configured the
// passthrough language collaborator is used.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var storeCfg store.Opts
	for _, opt := range storeOpts {
		opt(&storeCfg)
	}

	var st store.Store
	var err error
	switch {
	case storeCfg.DSN == "":
		slog.Info("api.Run: no DSN configured, using in-memory store")
		st = store.NewInMemoryStore()
	case store.DetectBackendFromDSN(storeCfg.DSN) == "postgres":
		st, err = store.NewPostgresStore(storeOpts...)
	default:
		st, err = store.NewSQLiteStore(storeOpts...)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var language flow.LanguageService
	genaiClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("api.Run: GenAI client unavailable, using passthrough language collaborator", "error", err)
		language = flow.NewPassthroughLanguageService()
	} else {
		language = flow.NewGenAILanguageService(genaiClient)
	}

	server := NewServer(st, language, apiOpts...)
	return server.ListenAndServe()
}
