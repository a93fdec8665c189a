// Package server exposes the ingestion and compliance API over HTTP.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gbechtold/clawbot-dsgvo/internal/audit"
	"github.com/gbechtold/clawbot-dsgvo/internal/config"
	"github.com/gbechtold/clawbot-dsgvo/internal/events"
	"github.com/gbechtold/clawbot-dsgvo/internal/logger"
	"github.com/gbechtold/clawbot-dsgvo/internal/pipeline"
	"github.com/gbechtold/clawbot-dsgvo/internal/store"
	"go.uber.org/zap"
)

// Ingester processes inbound feedback.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// SignalReader serves stored signals and compliance reports.
type SignalReader interface {
	GetSignal(ctx context.Context, tenantID, signalID string) (*store.Signal, error)
	ListSignals(ctx context.Context, q store.SignalQuery) ([]store.Signal, int, error)
	Compliance(ctx context.Context, tenantID string) (*store.ComplianceReport, error)
}

// MappingEraser removes one pseudonym mapping, the erasure primitive.
type MappingEraser interface {
	Delete(ctx context.Context, tenantID, originalHash string) error
}

// SignalExporter streams a tenant's anonymized signals as Parquet.
type SignalExporter interface {
	WriteParquet(ctx context.Context, w io.Writer, tenantID, actor string) (int, error)
}

// HealthChecker reports the reachability of a dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AnalyzerChecker reports the reachability of the analysis service.
type AnalyzerChecker interface {
	Healthy(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	ingester Ingester
	signals  SignalReader
	ledger   *audit.Ledger
	eraser   MappingEraser
	exporter SignalExporter
	db       HealthChecker
	analyzer AnalyzerChecker
	hub      *events.Hub
	router   *mux.Router
	server   *http.Server
	limits   *clientLimiters
}

// Deps bundles the components the server serves.
type Deps struct {
	Ingester Ingester
	Signals  SignalReader
	Ledger   *audit.Ledger
	Eraser   MappingEraser
	Exporter SignalExporter
	DB       HealthChecker
	Analyzer AnalyzerChecker
	Hub      *events.Hub
}

// New creates the API server and wires its routes.
func New(cfg *config.Config, deps Deps, log *logger.Logger) *Server {
	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		ingester: deps.Ingester,
		signals:  deps.Signals,
		ledger:   deps.Ledger,
		eraser:   deps.Eraser,
		exporter: deps.Exporter,
		db:       deps.DB,
		analyzer: deps.Analyzer,
		hub:      deps.Hub,
		router:   mux.NewRouter(),
	}
	if cfg.Server.RateLimit.Enabled {
		s.limits = newClientLimiters(cfg.Server.RateLimit.Rate, cfg.Server.RateLimit.Burst)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.hub != nil && s.config.Events.Enabled {
		s.router.HandleFunc(s.config.Events.Path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limits != nil {
		api.Use(s.rateLimitMiddleware)
	}

	api.HandleFunc("/ingest", s.handleIngest).Methods("POST")
	api.HandleFunc("/signals", s.handleListSignals).Methods("GET")
	api.HandleFunc("/signals/export", s.handleExportSignals).Methods("GET")
	api.HandleFunc("/signals/{id}", s.handleGetSignal).Methods("GET")
	api.HandleFunc("/audit-log", s.handleAuditLog).Methods("GET")
	api.HandleFunc("/compliance/report", s.handleComplianceReport).Methods("GET")
	api.HandleFunc("/mappings/{hash}", s.handleDeleteMapping).Methods("DELETE")
}

// Start runs the event hub and serves HTTP. It blocks until the server
// stops.
func (s *Server) Start() error {
	s.logger.Info("Starting API server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("rate_limit", s.limits != nil),
		zap.Bool("events", s.hub != nil && s.config.Events.Enabled))

	if s.hub != nil && s.config.Events.Enabled {
		go s.hub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Router exposes the route table, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := map[string]string{}

	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status = "degraded"
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}
	if s.analyzer != nil {
		if err := s.analyzer.Healthy(ctx); err != nil {
			// Analysis degrades to keyword fallback, the service
			// stays available.
			status = "degraded"
			checks["analyzer"] = err.Error()
		} else {
			checks["analyzer"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
