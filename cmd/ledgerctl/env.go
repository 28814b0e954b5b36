package main

import (
	"context"
	"fmt"
	"os"

	"wealthflow/internal/backend"
	"wealthflow/internal/cli"
	"wealthflow/internal/config"
	"wealthflow/internal/log"
	"wealthflow/internal/services"
)

// env is what every ledger command runs against.
type env struct {
	cfg     *config.Config
	logger  *log.Logger
	backend *backend.BackendResult
	ledger  *services.LedgerService
	close   func()
}

// openEnv loads configuration and opens the ledger. Logs go to stderr so
// command output stays clean.
func openEnv(ctx context.Context) (*env, error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", backendCfg.Type, err)
	}
	ledger, stopCache := cli.NewLedger(cfg, result)

	return &env{
		cfg:     cfg,
		logger:  logger,
		backend: result,
		ledger:  ledger,
		close: func() {
			stopCache()
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		},
	}, nil
}
