package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ShutdownHook runs during graceful shutdown
type ShutdownHook func(ctx context.Context) error

// RegisterHook adds a hook. Hooks run in registration order before the HTTP
// server stops accepting requests.
func (s *Server) RegisterHook(hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Shutdown runs the hooks and stops the server within ShutdownTimeout
func (s *Server) Shutdown() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	s.logger.Info("shutting down", zap.Duration("timeout", timeout), zap.Int("hooks", len(hooks)))

	for i, hook := range hooks {
		// A failing hook does not stop the others
		if err := hook(ctx); err != nil {
			s.logger.Warn("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}
