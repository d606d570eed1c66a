package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fisse/internal/cli"
	apphttp "fisse/internal/http"
	"fisse/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	b, svc := cli.InitBackend(context.Background(), logger, cfg)

	srv := apphttp.NewServer(":"+cfg.Port, svc, b.Ledger, b.Store.Reachable, apphttp.Options{
		Logger: logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := svc.Sync.Stop(shutdownCtx); err != nil {
			logger.Error("Sync processor shutdown error", "error", err)
		}
		if err := b.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	if cfg.WorkerOwnsOutbox() {
		logger.Info("Outbox drained by fisse-worker")
	} else if err := svc.Sync.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting fisse server",
		"port", cfg.Port,
		"remote", cfg.RemoteBackend,
		"ledger", cfg.LedgerBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
