// Package server exposes the relay over HTTP: JSON and SSE on POST /v1/chat
// and a WebSocket on GET /v1/chat/ws.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/scene-gateway/internal/config"
	"github.com/tjfontaine/scene-gateway/internal/ratelimit"
	"github.com/tjfontaine/scene-gateway/internal/relay"
)

// Chatter runs chat turns. *relay.Relay implements it.
type Chatter interface {
	Stream(ctx context.Context, req relay.ChatRequest, emit func(relay.Event) error) error
	Complete(ctx context.Context, req relay.ChatRequest) (*relay.ChatResponse, error)
}

type Server struct {
	Router *chi.Mux
	Port   int

	chat    Chatter
	timeout time.Duration
	logger  *slog.Logger
	http    *http.Server

	// closing is closed when shutdown begins; open sockets watch it since
	// hijacked connections are not drained by http.Server.Shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

func New(cfg config.ServerConfig, chat Chatter, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Router:  chi.NewRouter(),
		Port:    cfg.Port,
		chat:    chat,
		timeout: cfg.RequestTimeout,
		logger:  logger,
		closing: make(chan struct{}),
	}

	r := s.Router
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(cfg.RequestTimeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "scene-gateway")
	})

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(limiter))
		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatSocket)
	})

	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests for up
// to ten seconds.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.http.RegisterOnShutdown(s.beginClosing)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) beginClosing() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ts_ms":  time.Now().UnixMilli(),
	})
}
