package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/config"
	"github.com/aristath/portfolio-sentry/internal/modules/monitor"
	"github.com/aristath/portfolio-sentry/internal/modules/rebalancer"
)

// Config holds server configuration
type Config struct {
	Port       int
	Log        zerolog.Logger
	Cfg        *config.Config
	Monitor    *monitor.Service
	Rebalancer *rebalancer.Rebalancer
	Audit      *rebalancer.AuditRepository
	Hub        *Hub
	DevMode    bool
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	cfg        *config.Config
	monitor    *monitor.Service
	rebalancer *rebalancer.Rebalancer
	audit      *rebalancer.AuditRepository
	hub        *Hub
	startedAt  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Cfg,
		monitor:    cfg.Monitor,
		rebalancer: cfg.Rebalancer,
		audit:      cfg.Audit,
		hub:        cfg.Hub,
		startedAt:  time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/portfolio", s.handleGetPortfolio)
			r.Post("/monitor/start", s.handleStartMonitor)
			r.Post("/monitor/stop", s.handleStopMonitor)
			r.Get("/alerts", s.handleGetAlerts)
			r.Get("/reallocations", s.handleGetReallocations)
			r.Get("/trades", s.handleGetTrades)
			r.Route("/rebalancer", func(r chi.Router) {
				r.Get("/stats", s.handleRebalancerStats)
				r.Post("/mode", s.handleSetRebalancerMode)
			})
		})

		r.Post("/debate", s.handleDebate)

		// Live stream of alerts and snapshots (websocket)
		r.Get("/alerts/stream", s.hub.handleStream)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
