package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ravikumar582002/API-TRACKER/internal/app/migrate"
	"github.com/ravikumar582002/API-TRACKER/pkg/config"
	"github.com/ravikumar582002/API-TRACKER/pkg/logger"
)

func main() {
	var (
		command = flag.String("command", "up", "migration command: up, status, down")
		target  = flag.Int64("to", 0, "target version for down (0 rolls back one)")
	)
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("tracker-migrate", slog.LevelInfo)

	ctx := context.Background()
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

	switch *command {
	case "up":
		err = runner.Ensure(ctx)
	case "status":
		err = runner.Status(ctx)
	case "down":
		err = runner.Down(ctx, *target)
	default:
		err = fmt.Errorf("unknown command %q", *command)
	}
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
}
