// Package server is the HTTP network layer: listener lifecycle plus the
// cross-cutting middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cliniscope/cliniscope/internal/server/ratelimit"
)

// Service is the network layer interface.
type Service interface {
	// Start runs the listener. Blocks until a fatal error or ctx cancel.
	Start(ctx context.Context) error

	// Stop gracefully drains active connections.
	Stop(ctx context.Context) error

	// HTTPMux returns the mux for route registration. Register before Start.
	HTTPMux() *http.ServeMux
}

type serverImpl struct {
	cfg    Config
	logger *slog.Logger

	httpMux    *http.ServeMux
	httpServer *http.Server

	limiter *ratelimit.MemoryLimiter
	extra   []Middleware

	mu      sync.Mutex
	started bool
}

// New creates the server. extra middlewares (e.g. metrics) run innermost,
// after the built-in chain.
func New(cfg Config, logger *slog.Logger, extra ...Middleware) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &serverImpl{
		cfg:     cfg,
		logger:  logger.With("component", "server"),
		httpMux: http.NewServeMux(),
		extra:   extra,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
	}
	return s
}

func (s *serverImpl) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.wrapMiddleware(s.httpMux),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *serverImpl) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

func (s *serverImpl) HTTPMux() *http.ServeMux {
	return s.httpMux
}
