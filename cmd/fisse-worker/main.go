package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fisse/internal/amqp"
	"fisse/internal/cli"
	"fisse/internal/log"
	"fisse/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if !cfg.WorkerOwnsOutbox() {
		logger.Error("AMQP_URL is empty, the API server drains the outbox")
		os.Exit(1)
	}

	logger.Info("Starting fisse-worker")

	b, svc := cli.InitBackend(context.Background(), logger, cfg)
	syncWorker := worker.NewSyncWorker(b.Local, svc.Sync)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := svc.Sync.Stop(shutdownCtx); err != nil {
			logger.Error("Sync processor shutdown error", "error", err)
		}
	})

	// Drain whatever a crash or a missed notification left behind
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := svc.Sync.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})

	if b.AMQP != nil {
		g.Go(func() error {
			err := b.AMQP.ConsumeOutboxChanged(gctx, func(msg *amqp.OutboxChangedMessage) error {
				return syncWorker.HandleOutboxMessage(gctx, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP unavailable - relying on periodic outbox polling",
			"interval", cfg.SyncInterval)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		_ = svc.Sync.Stop(context.Background())
		if cerr := b.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup error", "error", cerr)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	if err := b.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
	logger.Info("Worker shutdown complete")
}
