package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NicolasHaas/gochat/pkg/crypto"
	"github.com/NicolasHaas/gochat/pkg/model"
	"github.com/NicolasHaas/gochat/pkg/version"
)

// shutdownTimeout bounds how long in-flight requests may take to finish.
const shutdownTimeout = 10 * time.Second

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.store == nil {
		return fmt.Errorf("server: missing store dependency")
	}

	if err := s.ensureAdminUser(s.ctx); err != nil {
		return err
	}

	// Load channels from YAML config if provided
	if s.cfg.ChannelsFile != "" {
		if _, err := LoadChannelsFromYAML(s.ctx, s.cfg.ChannelsFile, s.store); err != nil {
			slog.Error("failed to load channels config", "err", err)
		}
	}

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	topo := s.resolver.Topology()
	slog.Info("gochat server running",
		"version", version.String(),
		"http", s.cfg.HTTPAddr,
		"topology", topo.Mode.String(),
		"websocket", topo.SharedEndpoint(),
		"sessions", s.cfg.Sessions,
	)

	s.metrics.StartPeriodicLog(s.cfg.MetricsLog, s.ctx.Done())

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
		slog.Info("shutting down...")
	case err := <-errCh:
		runErr = fmt.Errorf("server: http: %w", err)
	}
	s.Shutdown()
	return runErr
}

// Shutdown gracefully stops the server and closes the store.
func (s *Server) Shutdown() {
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		cancel()
	}
	s.cancel()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("close store", "err", err)
		}
	}
}

// ensureAdminUser creates an "admin" account with a random password only on
// first run (no users exist).
func (s *Server) ensureAdminUser(ctx context.Context) error {
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("server: count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	password, err := crypto.GenerateToken()
	if err != nil {
		return fmt.Errorf("server: generate admin password: %w", err)
	}
	password = password[:24]
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("server: hash admin password: %w", err)
	}
	u := &model.User{Username: "admin", PasswordHash: hash, Admin: true}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("server: create admin user: %w", err)
	}

	slog.Info("========================================")
	slog.Info("ADMIN LOGIN (save this!):", "name", u.Username, "password", password)
	slog.Info("========================================")
	return nil
}
