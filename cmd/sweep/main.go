// Command sweep runs one recycle-bin expiry pass and exits. It is meant for
// cron-style schedulers when the server runs with SWEEP_ENABLED=false.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"compass/internal/app"
	"compass/internal/config"
	"compass/internal/database"
	"compass/internal/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	slog.SetDefault(slog.New(logger.NewPrettyHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.LogLevel),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()

	rdb, err := database.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		return 1
	}
	if rdb != nil {
		defer rdb.Close()
	}

	core, err := app.NewCore(db, cfg)
	if err != nil {
		slog.Error("failed to build recycle bin", "error", err)
		return 1
	}

	result, err := core.NewSweeper(app.NewLocker(rdb), cfg).RunOnce(ctx)
	if err != nil {
		slog.Error("sweep failed", "error", err)
		return 1
	}
	if result.Skipped {
		slog.Info("sweep skipped, another instance holds the lease")
		return 0
	}

	slog.Info("sweep finished",
		"purged", result.Purged,
		"already_gone", result.AlreadyGone,
		"failed", result.Failed,
		"duration", result.Duration.String(),
	)
	for _, itemErr := range result.Errors {
		slog.Warn("tombstone left for next run", "tombstone_id", itemErr.TombstoneID, "ref", itemErr.Ref.String(), "error", itemErr.Err)
	}

	if result.Failed > 0 {
		return 2
	}
	return 0
}
