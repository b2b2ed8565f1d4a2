// Package server exposes configured sources over a small read-only HTTP API:
//
//	GET /healthz
//	GET /sources
//	GET /sources/{name}/model
//	GET /sources/{name}/rows?limit=N
//
// Every request builds, opens and closes its own source instance.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/rowsource/internal/config"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/source"
)

// DefaultLimit is the number of rows returned when the request names none.
const DefaultLimit = 100

// Catalog is the part of catalog.Catalog the server needs.
type Catalog interface {
	Names() []string
	Open(ctx context.Context, name string) (source.RowSource, error)
}

// Server serves the preview API.
type Server struct {
	router *chi.Mux
	cat    Catalog
	cfg    config.ServerConfig
	log    *logger.Logger
}

// New builds the router. cfg.MaxRows caps the limit parameter.
func New(cat Catalog, cfg config.ServerConfig, log *logger.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cat:    cat,
		cfg:    cfg,
		log:    logger.OrNop(log).Named("server"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/sources", func(r chi.Router) {
		r.Get("/", s.handleListSources)
		r.Get("/{name}/model", s.handleModel)
		r.Get("/{name}/rows", s.handleRows)
	})
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on cfg.Addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// requestLogger replaces middleware.Logger so access logs go through zerolog.
// Handlers find the request's logger with logger.FromContext.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		reqLog := s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(reqLog.WithContext(r.Context()))

		defer func() {
			reqLog.DebugWith("request", map[string]any{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"elapsed_ms": time.Since(start).Milliseconds(),
			})
		}()
		next.ServeHTTP(ww, r)
	})
}
