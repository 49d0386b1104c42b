// Package server provides the HTTP server of the dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/config"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/handler"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/health"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/metrics"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/middleware"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	handlers     *handler.Handlers
	healthCheck  *health.HealthCheck
	errorHandler *apierrors.Handler
	metrics      *metrics.Metrics
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer creates the dashboard server. m may be nil to skip request
// metrics. Every cache clear also invalidates the readiness result.
func NewServer(cfg *config.Config, source handler.Source, healthCheck *health.HealthCheck, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(source, errorHandler, logger, healthCheck.Invalidate)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		handlers:     handlers,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		metrics:      m,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
		middleware.NoStore,
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.MetricsMiddleware(s.metrics))
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// HTML pages
	s.router.HandleFunc("/", s.handlers.GridPage).Methods(http.MethodGet)
	s.router.HandleFunc("/table", s.handlers.TablePage).Methods(http.MethodGet)
	s.router.HandleFunc("/refresh", s.handlers.RefreshForm).Methods(http.MethodPost)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/dataset", s.handlers.GetDataset).Methods(http.MethodGet)
	v1.HandleFunc("/plans", s.handlers.GetPlans).Methods(http.MethodGet)
	v1.HandleFunc("/grid", s.handlers.GetGrid).Methods(http.MethodGet)
	v1.HandleFunc("/table", s.handlers.GetTable).Methods(http.MethodGet)
	v1.HandleFunc("/refresh", s.handlers.Refresh).Methods(http.MethodPost)

	// mux does not run router middleware for unmatched routes, so the error
	// handlers carry their own request ID. Subrouters resolve misses on their
	// own and need the same handlers.
	notFound := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeNotFound, "endpoint not found", requestID)
	}))
	methodNotAllowed := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	}))
	for _, r := range []*mux.Router{s.router, v1} {
		r.NotFoundHandler = notFound
		r.MethodNotAllowedHandler = methodNotAllowed
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
