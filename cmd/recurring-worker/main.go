package main

import (
	"os"

	"wealthflow/internal/cli"
	"wealthflow/internal/log"
	"wealthflow/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if !cfg.AMQPEnabled() {
		logger.Error("recurring-worker requires AMQP_URL")
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	result := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()
	if result.Runs == nil {
		logger.Error("Recurring run queue unavailable", "queue", cfg.AMQPRecurringQueue)
		os.Exit(1)
	}

	ledger, stopCache := cli.NewLedger(cfg, result)
	defer stopCache()

	logger.Info("Starting recurring-worker",
		"queue", cfg.AMQPRecurringQueue,
		"backend", cfg.DataBackend)

	if err := worker.NewRecurringWorker(ledger).Run(ctx, result.Runs); err != nil {
		logger.Error("Recurring worker stopped", "error", err)
		return
	}
	logger.Info("Recurring-worker shutdown complete")
}
