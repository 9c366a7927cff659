package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"abt-dashboard/internal/config"
)

// GracefulServer runs the HTTP server next to background tasks and stops
// all of them on SIGINT/SIGTERM or when any one fails.
type GracefulServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	mu         sync.Mutex
	background []func(ctx context.Context) error
	shutdownFn []func(ctx context.Context) error
}

func NewGracefulServer(server *http.Server, logger *slog.Logger, config *config.Config) *GracefulServer {
	return &GracefulServer{
		server: server,
		logger: logger,
		config: config,
	}
}

// Go registers a task that runs until its context is cancelled.
func (gs *GracefulServer) Go(fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.background = append(gs.background, fn)
}

func (gs *GracefulServer) RegisterShutdownHook(fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.shutdownFn = append(gs.shutdownFn, fn)
}

func (gs *GracefulServer) ListenAndServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gs.mu.Lock()
	background := append([]func(context.Context) error(nil), gs.background...)
	gs.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		gs.logger.Info("starting server",
			"addr", gs.server.Addr,
			"read_timeout", gs.config.Server.ReadTimeout,
			"write_timeout", gs.config.Server.WriteTimeout,
		)
		if err := gs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	for _, fn := range background {
		g.Go(func() error { return fn(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		gs.logger.Info("shutdown requested", "cause", context.Cause(gctx))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.config.Server.ShutdownTimeout)
		defer cancel()
		return gs.shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (gs *GracefulServer) shutdown(ctx context.Context) error {
	gs.logger.Info("starting graceful shutdown", "timeout", gs.config.Server.ShutdownTimeout)

	var errs []error
	if err := gs.server.Shutdown(ctx); err != nil {
		gs.logger.Error("HTTP server shutdown failed", "error", err)
		errs = append(errs, fmt.Errorf("HTTP server shutdown failed: %w", err))
	} else {
		gs.logger.Info("HTTP server stopped gracefully")
	}

	gs.mu.Lock()
	hooks := append([]func(context.Context) error(nil), gs.shutdownFn...)
	gs.mu.Unlock()

	for i, hook := range hooks {
		if err := hook(ctx); err != nil {
			gs.logger.Error("shutdown hook failed", "hook_index", i, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %d failed: %w", i, err))
		}
	}

	if ctx.Err() != nil {
		gs.logger.Warn("shutdown timeout exceeded")
	}
	return errors.Join(errs...)
}
