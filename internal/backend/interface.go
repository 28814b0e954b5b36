package backend

import (
	"context"

	"wealthflow/internal/amqp"
	"wealthflow/internal/storage"
)

// CleanupFunc releases everything a backend opened
type CleanupFunc func() error

// BackendResult holds the ledger store and the optional broker clients. Events
// and Runs are nil when no broker is configured or it could not be reached.
type BackendResult struct {
	Store   storage.Store
	Events  *amqp.Client
	Runs    *amqp.Client
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	MySQLDSN     string

	AMQPURL            string
	AMQPExchange       string
	AMQPEventsQueue    string
	AMQPRecurringQueue string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	MySQLBackend  BackendType = "mysql"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MySQLBackend:
		return true
	default:
		return false
	}
}
