package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"wealthflow/internal/cli"
	"wealthflow/internal/grpcserver"
	apphttp "wealthflow/internal/http"
	"wealthflow/internal/log"
	"wealthflow/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	result := cli.OpenBackend(ctx, logger, cfg)
	ledger, stopCache := cli.NewLedger(cfg, result)

	opts := apphttp.Options{
		RateLimitRPM: cfg.RateLimitRPM,
		Logger:       logger,
	}
	if result.Runs != nil {
		opts.Runs = result.Runs
	}
	srv := apphttp.NewServer(":"+cfg.Port, ledger, opts)
	health := grpcserver.New(":"+cfg.GRPCPort, ledger, grpcserver.DefaultConfig())
	poller := services.NewRecurringPoller(ledger, services.RecurringPollerConfig{PollInterval: cfg.RecurringInterval})

	logger.Info("Starting wealthflow",
		"port", cfg.Port,
		"grpc_port", cfg.GRPCPort,
		"backend", cfg.DataBackend,
		"amqp", cfg.AMQPEnabled(),
		"recurring_interval", cfg.RecurringInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return health.Start(gctx)
	})
	g.Go(func() error {
		return poller.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := cli.ShutdownContext(30 * time.Second)
		defer shutdownCancel()

		logger.Info("Shutting down wealthflow")
		if err := poller.Stop(shutdownCtx); err != nil {
			logger.Warn("Recurring poller stop error", "error", err)
		}
		health.Stop()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	stopCache()
	if cleanupErr := result.Cleanup(); cleanupErr != nil {
		logger.Error("Backend cleanup error", "error", cleanupErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
