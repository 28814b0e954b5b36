package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wealthflow/internal/amqp"
	"wealthflow/internal/config"
	"wealthflow/internal/storage"
	"wealthflow/internal/storage/memory"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:               backendType,
		SQLiteDBPath:       appConfig.SQLiteDBPath,
		MySQLDSN:           appConfig.MySQLDSN,
		AMQPURL:            appConfig.AMQPURL,
		AMQPExchange:       appConfig.AMQPExchange,
		AMQPEventsQueue:    appConfig.AMQPEventsQueue,
		AMQPRecurringQueue: appConfig.AMQPRecurringQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MySQLBackend:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MySQL DSN is required for mysql backend")
		}
	}
	return nil
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and, when a broker URL is set,
// the event and recurring run clients. A broker that cannot be reached is
// logged and skipped: the ledger works without it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := f.openStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping %s store: %w", cfg.Type, err)
	}

	result := &BackendResult{Store: store}
	if cfg.AMQPURL != "" {
		result.Events = f.dial(cfg, cfg.AMQPEventsQueue)
		result.Runs = f.dial(cfg, cfg.AMQPRecurringQueue)
	}

	result.Cleanup = func() error {
		var errs []error
		for _, c := range []*amqp.Client{result.Events, result.Runs} {
			if c != nil {
				errs = append(errs, c.Close())
			}
		}
		errs = append(errs, store.Close())
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"backend", cfg.Type,
		"events_enabled", result.Events != nil,
		"recurring_queue_enabled", result.Runs != nil)

	return result, nil
}

func (f *DefaultFactory) openStore(cfg Config) (storage.Store, error) {
	switch cfg.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Opened SQLite ledger", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	case MySQLBackend:
		repo, err := storage.NewMySQLRepository(cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MySQL repository: %w", err)
		}
		f.logger.Info("Opened MySQL ledger")
		return repo, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory ledger, data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *DefaultFactory) dial(cfg Config, queue string) *amqp.Client {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, queue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without it", "queue", queue, "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", queue)
	return client
}
