package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sivanadi/AstroCalc/internal/diag"
	"github.com/sivanadi/AstroCalc/internal/ephemeris"
	"github.com/sivanadi/AstroCalc/internal/handler"
	"github.com/sivanadi/AstroCalc/internal/server/middleware"
	"github.com/sivanadi/AstroCalc/internal/service"
	"github.com/sivanadi/AstroCalc/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// GlobalRateLimit is the per-IP request ceiling across the whole
	// router, independent of per-credential limits.
	GlobalRateLimit int
	// LoginRateLimit is the per-IP attempt ceiling on /admin/login.
	LoginRateLimit int

	// AllowDomainAuth admits chart requests by Origin/Referer/Host match.
	AllowDomainAuth bool
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		GlobalRateLimit: 600,
		LoginRateLimit:  10,
	}
}

// Server is the top-level HTTP server. It owns the chi router, the access
// engine, the session manager and the diagnostic recorder.
type Server struct {
	cfg        Config
	router     chi.Router
	store      *store.Store
	sessions   *service.SessionManager
	engine     *service.Engine
	recorder   *diag.Recorder
	calc       ephemeris.Calculator
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, sessions *service.SessionManager, recorder *diag.Recorder, calc ephemeris.Calculator, logger *slog.Logger) *Server {
	engine := service.NewEngine(st, recorder, logger)
	engine.AllowDomainAuth = cfg.AllowDomainAuth

	s := &Server{
		cfg:      cfg,
		store:    st,
		sessions: sessions,
		engine:   engine,
		recorder: recorder,
		calc:     calc,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.GlobalRateLimit > 0 {
		r.Use(middleware.RateLimit(s.cfg.GlobalRateLimit))
	}

	chartHandler := handler.NewChartHandler(s.engine, s.calc, s.logger)
	adminHandler := handler.NewAdminHandler(s.sessions)
	keyHandler := handler.NewKeyHandler(s.store)
	domainHandler := handler.NewDomainHandler(s.store)
	diagHandler := handler.NewDiagnosticsHandler(s.store, s.recorder)

	// --- Public surface ---
	r.Get("/health", s.handleHealth)
	r.Get("/chart", chartHandler.Chart)
	r.Post("/chart", chartHandler.Chart)

	// --- Admin surface ---
	r.Route("/admin", func(r chi.Router) {
		// Login is unauthenticated but throttled hard.
		r.Group(func(r chi.Router) {
			if s.cfg.LoginRateLimit > 0 {
				r.Use(middleware.LoginRateLimit(s.cfg.LoginRateLimit))
			}
			r.Post("/login", adminHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminSession(s.sessions))

			r.Post("/logout", adminHandler.Logout)
			r.Post("/logout-all", adminHandler.LogoutAll)
			r.Post("/password-change", adminHandler.ChangePassword)

			r.Get("/api-keys", keyHandler.List)
			r.Post("/api-keys", keyHandler.Create)
			r.Put("/api-keys/{id}", keyHandler.Update)
			r.Delete("/api-keys/{id}", keyHandler.Delete)
			r.Post("/api-keys/bulk", keyHandler.Bulk)

			r.Get("/domains", domainHandler.List)
			r.Post("/domains", domainHandler.Create)
			r.Put("/domains/{id}", domainHandler.Update)
			r.Delete("/domains/{id}", domainHandler.Delete)
			r.Post("/domains/bulk", domainHandler.Bulk)

			r.Get("/v1/api-keys", keyHandler.ListV1)
			r.Get("/v1/domains", domainHandler.ListV1)

			r.Get("/diagnostics/status", diagHandler.Status)
			r.Post("/diagnostics/toggle", diagHandler.Toggle)
			r.Post("/diagnostics/capture", diagHandler.Capture)
			r.Post("/diagnostics/test", diagHandler.Test)
			r.Get("/diagnostics/logs", diagHandler.Logs)
		})
	})

	s.router = r
}

// handleHealth is a liveness probe. No authentication and no usage metering.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests and flushing the diagnostic recorder before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.recorder.Shutdown()
	if err := s.store.Close(); err != nil {
		s.logger.Error("closing store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
