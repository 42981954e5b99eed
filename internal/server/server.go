// Package server is the HTTP façade over the jury pipeline.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/compass-dev/compass/internal/jury"
	"github.com/compass-dev/compass/internal/memory"
	"github.com/compass-dev/compass/internal/observability"
	"github.com/compass-dev/compass/internal/station"
)

// ModelLister is the router client surface the façade needs for /status.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Config holds façade settings.
type Config struct {
	Port   int
	Models []string

	// RateLimit is requests per second across all clients; zero disables
	// limiting.
	RateLimit float64
	RateBurst int
}

// Server wires the HTTP routes to the orchestrator and the control plane.
type Server struct {
	cfg      Config
	orch     *jury.Orchestrator
	sessions *memory.SessionManager
	longTerm *memory.LongTermStore
	station  *station.Client
	models   ModelLister

	limiter    *rate.Limiter
	httpServer *http.Server
}

// New builds the façade.
func New(cfg Config, orch *jury.Orchestrator, sessions *memory.SessionManager, longTerm *memory.LongTermStore, st *station.Client, models ModelLister) *Server {
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		sessions: sessions,
		longTerm: longTerm,
		station:  st,
		models:   models,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // fan-out plus retries can run long
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)
	r.Use(s.rateLimitMiddleware)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Session-Id"},
		MaxAge:         300,
	})
	r.Use(corsMiddleware.Handler)

	r.Post("/query", s.handleQuery)
	r.Post("/api/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/api/chat/history/{sessionID}", s.handleHistory)
	r.Get("/api/memory/stats", s.handleMemoryStats)

	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = r.URL.Path
		}
		observability.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(ww.Status()), time.Since(start))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the listener until the context is cancelled, then drains.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("http façade listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
