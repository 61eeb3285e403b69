package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/bankrecon/internal/adapters/extractor"
	"github.com/eshaffer321/bankrecon/internal/api/handlers"
	"github.com/eshaffer321/bankrecon/internal/api/middleware"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/config"
	"github.com/eshaffer321/bankrecon/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	MaxUploadBytes int64
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		MaxUploadBytes: 32 << 20,
	}
}

// ConfigFrom builds the server config from the application config.
func ConfigFrom(cfg config.APIConfig) Config {
	c := DefaultConfig()
	if cfg.Port != 0 {
		c.Port = cfg.Port
	}
	if len(cfg.AllowedOrigins) > 0 {
		c.AllowedOrigins = cfg.AllowedOrigins
	}
	return c
}

// Dependencies are the services behind the routes. Only Repo is required;
// routes whose dependency is nil are not registered.
type Dependencies struct {
	Repo       storage.Repository
	Reconciler handlers.Reconciler
	Jobs       handlers.JobService
	ERP        interface {
		handlers.PartySearcher
		handlers.ERPBrowser
		handlers.Pinger
	}
	Extractor extractor.Extractor
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	deps       Dependencies
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: gin.New(),
		logger: logger,
		deps:   deps,
	}
	if cfg.MaxUploadBytes > 0 {
		s.router.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger, "/health"))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	d := s.deps

	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(d.Repo, d.ERP)
	s.router.GET("/health", healthHandler.Check)

	api := s.router.Group("/api")

	// Transactions
	txHandler := handlers.NewTransactionsHandler(d.Repo, d.Reconciler, s.logger)
	api.GET("/transactions", txHandler.List)
	api.GET("/transactions/stats", txHandler.Stats)
	api.GET("/transactions/:id", txHandler.Get)
	api.GET("/transactions/:id/actions", txHandler.Actions)
	api.POST("/transactions/:id/ignore", txHandler.Ignore)
	api.POST("/transactions/:id/reset", txHandler.Reset)

	// Label parsing
	labelsHandler := handlers.NewLabelsHandler(s.logger)
	api.GET("/labels/preview", labelsHandler.Preview)

	// Payment history
	historyHandler := handlers.NewHistoryHandler(d.Repo, s.logger)
	api.GET("/history/payments", historyHandler.Payments)
	api.GET("/history/statistics", historyHandler.Statistics)
	api.POST("/history/payments/:id/cancel", historyHandler.Cancel)

	// Matching and reconciliation (needs the ERP)
	if d.Reconciler != nil {
		api.POST("/transactions/import", txHandler.Import)
		api.GET("/transactions/:id/matches", txHandler.Matches)
		api.POST("/transactions/:id/reconcile", txHandler.Reconcile)
		api.POST("/transactions/:id/bank-line", txHandler.BankLine)

		reconcileHandler := handlers.NewReconcileHandler(d.Reconciler, d.Jobs, s.logger)
		api.POST("/match", reconcileHandler.MatchStatement)
		api.POST("/reconcile/batch", reconcileHandler.Batch)
		if d.Jobs != nil {
			api.POST("/reconcile/jobs", reconcileHandler.StartJob)
			api.GET("/reconcile/jobs", reconcileHandler.ListJobs)
			api.GET("/reconcile/jobs/:id", reconcileHandler.GetJob)
			api.DELETE("/reconcile/jobs/:id", reconcileHandler.CancelJob)
		}

		invoicesHandler := handlers.NewInvoicesHandler(d.Reconciler, d.Extractor, s.logger)
		api.POST("/invoices/extract", invoicesHandler.Extract)
		api.POST("/invoices/supplier", invoicesHandler.Supplier)
	}

	if d.ERP != nil {
		partiesHandler := handlers.NewPartiesHandler(d.ERP, s.logger)
		api.GET("/parties/search", partiesHandler.Search)

		erpHandler := handlers.NewERPHandler(d.ERP, s.logger)
		api.GET("/erp/invoices", erpHandler.Invoices)
		api.GET("/erp/accounts", erpHandler.Accounts)
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the gin engine for testing.
func (s *Server) Router() http.Handler {
	return s.router
}
