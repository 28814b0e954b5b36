package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-sql-driver/mysql"

	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend. It doubles as the database/sql
// driver name and the migrations directory.
type Dialect string

const (
	SQLite Dialect = "sqlite"
	MySQL  Dialect = "mysql"
)

func (d Dialect) driverName() string { return string(d) }

// SQLRepository is the Store backed by a SQL database.
type SQLRepository struct {
	*queries
	db      *sql.DB
	dialect Dialect
}

var _ Store = (*SQLRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the SQLite file at dbPath
// and migrates it.
func NewSQLiteRepository(dbPath string) (*SQLRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open(SQLite.driverName(), dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(SQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newSQLRepository(db, SQLite), nil
}

// NewMySQLRepository connects to MySQL and migrates the schema. The DSN is
// normalized so DATE columns scan as time.Time and UPDATE reports matched
// rather than changed rows.
func NewMySQLRepository(dsn string) (*SQLRepository, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true

	migrateCfg := cfg.Clone()
	migrateCfg.MultiStatements = true
	if err := RunMigrations(MySQL, migrateCfg.FormatDSN()); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newSQLRepository(db, MySQL), nil
}

func newSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{
		queries: &queries{db: db},
		db:      db,
		dialect: dialect,
	}
}

func (r *SQLRepository) Dialect() Dialect { return r.dialect }

// Atomic runs fn inside a database transaction.
func (r *SQLRepository) Atomic(ctx context.Context, fn func(Ledger) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLRepository) Close() error {
	if r.db != nil {
		slog.Info("Closing ledger database", "dialect", r.dialect)
		return r.db.Close()
	}
	return nil
}
