// Package server assembles the HTTP surface of the slide service: the chi
// router with its middleware chain, and the http.Server lifecycle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/config"
	"github.com/karimd18/project-C-case-study/server/auth"
	"github.com/karimd18/project-C-case-study/server/handlers"
	"github.com/karimd18/project-C-case-study/server/metrics"
	"github.com/karimd18/project-C-case-study/server/middleware"
	"github.com/karimd18/project-C-case-study/server/pipeline"
	"github.com/karimd18/project-C-case-study/server/validation"
	"github.com/karimd18/project-C-case-study/store"
)

// Dependencies are the components the router dispatches to.
type Dependencies struct {
	Config    *config.Config
	Pipeline  *pipeline.Pipeline
	Store     store.Repository
	Auth      *auth.Service
	Validator *validation.Validator
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewRouter builds the service router.
func NewRouter(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("router: config is required")
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("router: pipeline is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("router: store is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("router: auth service is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("router: validator is required")
	case deps.Metrics == nil:
		return nil, fmt.Errorf("router: metrics are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The pipeline routes share one admission queue when enabled.
	admit := func(next http.Handler) http.Handler { return next }
	if q := deps.Config.Queue; q.Enabled {
		qm, err := middleware.NewQueueMiddleware(middleware.QueueConfig{
			MaxConcurrent: q.MaxConcurrent,
			MaxQueued:     q.MaxQueued,
			Metrics:       deps.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		admit = qm.Handler
	}

	slides := handlers.NewSlideHandler(deps.Pipeline, deps.Validator, logger)
	chats := handlers.NewChatHandler(deps.Store, deps.Validator, logger)
	history := handlers.NewHistoryHandler(deps.Store, logger)
	accounts := handlers.NewAuthHandler(deps.Auth, deps.Validator, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTimer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(deps.Config.Server.AllowedOrigins))
	r.Use(middleware.PrometheusMetrics(deps.Metrics))

	r.Get("/health", health(deps.Store, logger))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	r.Post("/auth/register", accounts.Register)
	r.Post("/auth/login", accounts.Login)
	r.With(middleware.Authentication(deps.Auth)).Get("/user/me", accounts.Me)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.OptionalAuthentication(deps.Auth))

		r.Group(func(r chi.Router) {
			r.Use(admit)
			r.Post("/analyze", slides.Analyze)
			r.Post("/render", slides.Render)
			r.Post("/generate", slides.Generate)
		})

		r.Post("/chats", chats.Create)
		r.Get("/chats", chats.List)
		r.Get("/chats/{id}", chats.Get)
		r.Put("/chats/{id}", chats.Rename)
		r.Delete("/chats/{id}", chats.Delete)

		r.Get("/history", history.List)
		r.Get("/history/{id}", history.Get)
	})

	return r, nil
}

// health reports liveness, failing when the store is unreachable.
func health(repo store.Repository, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := repo.Ping(ctx); err != nil {
			logger.Warn("health check failed", zap.Error(err))
			status, code = "unavailable", http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *zap.Logger

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}
}

// NewServer creates a new server instance
func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		shutdownTimeout: timeout,
		logger:          logger,
		ready:           make(chan struct{}),
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start serves until ctx is done, then shuts down gracefully, waiting up
// to the configured shutdown timeout for in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Server started", zap.String("address", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down server", zap.Duration("timeout", s.shutdownTimeout))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}
