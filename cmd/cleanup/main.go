// The cleanup binary sweeps stale scratch files left by crashed workers.
// Intended to run from cron or as a Kubernetes CronJob.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/reelworks/reelpress/internal/config"
	"github.com/reelworks/reelpress/internal/logger"
	"github.com/reelworks/reelpress/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cleanup: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)
	log := logger.Default().With("component", "cleanup")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	removed, err := worker.SweepScratch(logger.WithLogger(ctx, log), cfg.ScratchPath, cfg.ScratchTTL)
	if err != nil {
		return err
	}
	log.Info("cleanup finished", "removed", removed)
	return nil
}
