package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravikumar582002/API-TRACKER/internal/app/migrate"
	httpx "github.com/ravikumar582002/API-TRACKER/internal/http"
	"github.com/ravikumar582002/API-TRACKER/internal/repository/postgres"
	"github.com/ravikumar582002/API-TRACKER/internal/service/analytics"
	"github.com/ravikumar582002/API-TRACKER/internal/service/catalog"
	"github.com/ravikumar582002/API-TRACKER/internal/service/metrics"
	"github.com/ravikumar582002/API-TRACKER/internal/service/probe"
	"github.com/ravikumar582002/API-TRACKER/internal/service/retention"
	"github.com/ravikumar582002/API-TRACKER/internal/ws"
	"github.com/ravikumar582002/API-TRACKER/pkg/config"
	"github.com/ravikumar582002/API-TRACKER/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("tracker-api", slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("configure migrations", "error", err)
		os.Exit(1)
	}
	if err := runner.Ping(ctx); err != nil {
		log.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	if err := runner.Ensure(ctx); err != nil {
		log.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub()

	recorder := metrics.NewRecorder(repo, hub, log)
	executor := probe.NewExecutor(repo, recorder, log, probe.Config{
		Timeout:       cfg.ProbeTimeout,
		MaxConcurrent: cfg.ProbeMaxConcurrent,
		MaxBodyBytes:  cfg.ProbeMaxBodyBytes,
		Environment:   cfg.Environment,
	})
	analyticsSvc := analytics.New(repo, repo, repo, log, cfg.TopNDefault)
	catalogSvc := catalog.New(repo, repo, log)

	sweeper := retention.New(repo, log, time.Duration(cfg.RetentionDays)*24*time.Hour, cfg.RetentionSweepInterval)
	go sweeper.Run(ctx)

	var limiter httpx.RateLimiter
	if cfg.RateLimitRedisAddr != "" {
		limiter, err = httpx.NewRedisRateLimiter(cfg.RateLimitRedisAddr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable, using in-memory", "error", err)
			limiter = httpx.NewMemoryRateLimiter()
		}
	} else {
		limiter = httpx.NewMemoryRateLimiter()
	}

	router := httpx.NewRouter(log, catalogSvc, executor, recorder, analyticsSvc, hub, limiter, cfg.ExecuteRateLimit, cfg.StreamHeartbeat, pool.Ping)
	defer router.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", cfg.Addr, "env", cfg.Environment)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("api stopped")
}
