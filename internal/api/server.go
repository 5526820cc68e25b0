// Package api serves the optional read-only status API. It exposes the
// same snapshot and guidance the CLI computes; it never executes steps and
// never mutates coordination state.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/usher-cli/usher/internal/collector"
	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/handlers"
)

// GuidanceSource computes read-only guidance. Satisfied by
// *handlers.Handler constructed without execute mode.
type GuidanceSource interface {
	Review(ctx context.Context, beadID string) (*guidance.Guidance, error)
	Resume(ctx context.Context) (*handlers.ResumeSet, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// Token is the single bearer token; empty disables the protected
	// routes entirely.
	Token string
}

// Server is the HTTP status server.
type Server struct {
	config    Config
	col       *collector.Collector
	source    GuidanceSource
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates an API server over the given collector and guidance source.
func New(config Config, col *collector.Collector, source GuidanceSource, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		col:       col,
		source:    source,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes configures the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected, read-only API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/v1/context", s.handleContext)
		r.Get("/v1/guidance/review", s.handleGuidanceReview)
		r.Get("/v1/guidance/resume", s.handleGuidanceResume)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"agent":          s.col.Agent(),
		"project":        s.col.Project(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	snap, err := s.col.Collect(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "could not collect state: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"agent":        snap.Agent,
		"project":      snap.Project,
		"claims":       snap.Claims,
		"workspaces":   snap.Workspaces,
		"advice":       snap.Advice,
		"collected_at": snap.CollectedAt,
	})
}

func (s *Server) handleGuidanceReview(w http.ResponseWriter, r *http.Request) {
	beadID := r.URL.Query().Get("bead")
	if beadID == "" {
		s.writeError(w, http.StatusBadRequest, "bead query parameter is required")
		return
	}
	g, err := s.source.Review(r.Context(), beadID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleGuidanceResume(w http.ResponseWriter, r *http.Request) {
	set, err := s.source.Resume(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"per_bead": set.PerBead,
		"summary":  set.Summary,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
