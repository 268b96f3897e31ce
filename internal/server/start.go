package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// fan-out engines stop before the feeds and the bus they drain from are
// discarded.
func (s *Server) Start() {
	if err := s.Host.Start(context.Background()); err != nil {
		s.E.Logger.Fatalf("starting fan-out engines: %v", err)
	}

	go func() {
		if err := s.E.Start(s.Cfg.Addr); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	s.Close()
}

// Close stops the fan-out engines, the feeds and the bus, in that order, so
// nothing publishes into a torn-down pipeline.
func (s *Server) Close() {
	s.Host.Stop()
	if err := s.bars.Close(); err != nil {
		slog.Error("Bar feed shutdown", "error", err)
	}
	if err := s.books.Close(); err != nil {
		slog.Error("Book feed shutdown", "error", err)
	}
	if err := s.Bus.Close(); err != nil {
		slog.Error("Bus shutdown", "error", err)
	}
}
