package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MYH-Projet/dirhamy/internal/budget"
	"github.com/MYH-Projet/dirhamy/internal/cli"
	"github.com/MYH-Projet/dirhamy/internal/config"
	"github.com/MYH-Projet/dirhamy/internal/log"
	"github.com/MYH-Projet/dirhamy/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(config.Load().LogLevel)
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The worker only writes checkpoints, which are not ledger mutations, so
	// its ledger service publishes nothing. Finished sweeps are announced.
	svc := cli.NewLedger(repo, nil)
	amqpClient := cli.InitAMQP(logger, cfg)

	var opts []worker.Option
	if amqpClient != nil {
		opts = append(opts, worker.WithPublisher(amqpClient))
	}
	aggregator := budget.NewAggregator(repo, budget.WithPageSize(cfg.SweepPageSize))
	snapshots := worker.NewSnapshotWorker(svc, worker.Config{
		PageSize:       cfg.SweepPageSize,
		Concurrency:    cfg.SweepConcurrency,
		EagerThreshold: cfg.EagerCheckpointThreshold,
	}, opts...)

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		wg.Wait()
		if amqpClient != nil {
			amqpClient.Close()
		}
	})

	logger.Info("Worker configured",
		"snapshot_interval", cfg.SnapshotInterval,
		"budget_sweep_interval", cfg.BudgetSweepInterval,
		"eager_threshold", cfg.EagerCheckpointThreshold,
		"sqlite_db", cfg.SQLiteDBPath)

	// Checkpoint accounts whose events were missed while the worker was down
	if res, err := snapshots.CatchUp(ctx); err != nil {
		logger.Error("Startup catch-up failed", log.FieldError, err)
	} else {
		logger.Info("Startup catch-up complete", log.FieldProcessed, res.Processed, log.FieldFailed, res.Failed)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		every(ctx, cfg.SnapshotInterval, func(ctx context.Context) {
			if _, err := snapshots.RunDailySnapshotSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Snapshot sweep failed", log.FieldError, err)
			}
		})
	}()
	go func() {
		defer wg.Done()
		every(ctx, cfg.BudgetSweepInterval, func(ctx context.Context) {
			if _, err := aggregator.RunMonthlyBudgetSweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Budget sweep failed", log.FieldError, err)
			}
		})
	}()

	if amqpClient != nil && cfg.EagerCheckpointThreshold > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := amqpClient.ConsumeLedgerEvents(ctx, snapshots.HandleLedgerEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Ledger event consumption failed", log.FieldError, err)
			}
		}()
	} else {
		logger.Info("Skipping ledger event consumption - eager checkpoints disabled")
	}

	cli.WaitForShutdown(ctx, done)
}

// every runs fn on each tick of interval until ctx is cancelled.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
