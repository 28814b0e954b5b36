// Package cli provides the initialization shared by the wealthflow commands.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"wealthflow/internal/backend"
	"wealthflow/internal/cache"
	"wealthflow/internal/config"
	"wealthflow/internal/log"
	"wealthflow/internal/services"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured store and broker clients or exits.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	return result
}

// NewLedger wires the ledger service over an opened backend. The returned
// stop function ends the balance cache cleanup; closing the backend is left
// to its Cleanup.
func NewLedger(cfg *config.Config, result *backend.BackendResult) (*services.LedgerService, func()) {
	var opts []services.Option
	if result.Events != nil {
		opts = append(opts, services.WithEvents(result.Events))
	}

	stop := func() {}
	if BalanceCacheEnabled(cfg) {
		balances := cache.NewLRUCache[decimal.Decimal](cfg.BalanceCacheSize, cfg.BalanceCacheTTL)
		manager := cache.NewManager()
		manager.Register(balances)
		manager.StartCleanup(cfg.BalanceCacheTTL)
		opts = append(opts, services.WithBalanceCache(balances))
		stop = manager.Stop
	}

	return services.NewLedgerService(result.Store, opts...), stop
}

// BalanceCacheEnabled reports whether balances may be cached in process. Only
// the memory store is private to one process; a SQLite or MySQL store is also
// written by the recurring worker and ledgerctl, whose purges never reach this
// process.
func BalanceCacheEnabled(cfg *config.Config) bool {
	if cfg.BalanceCacheSize <= 0 {
		return false
	}
	if cfg.DataBackend != string(backend.MemoryBackend) {
		slog.Info("Balance cache disabled for shared store", "backend", cfg.DataBackend)
		return false
	}
	return true
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, cancel
}

// ShutdownContext bounds the time given to graceful shutdown.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
