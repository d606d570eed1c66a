package main

import (
	"context"
	"time"

	"fisse/internal/cli"
	"fisse/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentRollover)

	logger.Info("Starting fisse-rollover")

	b, svc := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	interval := cfg.RolloverInterval
	logger.Info("Rollover processor configured",
		"interval", interval,
		"sqlite_db", cfg.SQLiteDBPath)

	run := func(now time.Time) {
		result, err := svc.Rollover.ProcessRollover(ctx, now)
		if err != nil {
			logger.Error("Rollover failed", "error", err)
		}
		logger.Info("Rollover complete",
			"periods", result.Periods,
			"repaired", result.Repaired,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	logger.Info("Running initial rollover...")
	run(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Rollover shutdown complete")
			return
		case now := <-ticker.C:
			run(now)
		}
	}
}
