package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"abt-dashboard/internal/config"
	"abt-dashboard/internal/middleware"
	"abt-dashboard/internal/observability"
	"abt-dashboard/internal/server"
	"abt-dashboard/internal/services"
	"abt-dashboard/internal/session"
)

const csvLoadTimeout = 2 * time.Minute

func newAnalytics(cfg *config.Config, logger *slog.Logger) (*services.Analytics, *services.TableCache) {
	cache := services.NewTableCache(cfg.Data.SourceFile, services.LoadOptions{
		Encoding: cfg.Data.Encoding,
		Strict:   cfg.Data.Strict,
	}, logger)

	analytics := services.NewAnalytics(cache, services.AggregateOptions{
		TopN:         cfg.Data.TopN,
		CustomerTopN: cfg.Data.CustomerTopN,
		PreviewRows:  cfg.Data.PreviewRows,
	}, services.Defaults{
		Country: cfg.Data.DefaultCountry,
		Months:  cfg.Data.DefaultMonths,
	}, logger)

	return analytics, cache
}

func newHandler(cfg *config.Config, analytics *services.Analytics, sessions *session.Store, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	srv := server.NewServer(analytics, sessions, logger)

	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Session(sessions, cfg.Session),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(limiter, logger),
	)

	return chain(srv)
}

func main() {
	// Local development only; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"source", cfg.Data.SourceFile,
		"encoding", cfg.Data.Encoding,
		"addr", cfg.Address(),
	)

	analytics, cache := newAnalytics(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
	table, err := cache.Load(ctx)
	cancel()
	if err != nil {
		logger.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}
	logger.Info("dataset ready", "rows", table.Len())

	sessions := session.NewStore(cfg.Session.TTL)
	limiter := middleware.NewRateLimiter(cfg.Security)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, analytics, sessions, limiter, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)
	gracefulServer.Go(func(ctx context.Context) error {
		return sessions.Run(ctx, cfg.Session.SweepInterval, logger)
	})
	gracefulServer.Go(func(ctx context.Context) error {
		return limiter.Run(ctx, time.Minute)
	})

	if err := gracefulServer.ListenAndServe(context.Background()); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
