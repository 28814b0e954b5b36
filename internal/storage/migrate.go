package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

// RunMigrations brings the schema of the database at dsn up to date.
func RunMigrations(dialect Dialect, dsn string) error {
	m, done, err := openMigrate(dialect, dsn)
	if err != nil {
		return err
	}
	defer done()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// MigrationVersion reports the applied schema version and whether the last
// migration left it dirty. A fresh database reports version 0.
func MigrationVersion(dialect Dialect, dsn string) (uint, bool, error) {
	m, done, err := openMigrate(dialect, dsn)
	if err != nil {
		return 0, false, err
	}
	defer done()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func openMigrate(dialect Dialect, dsn string) (*migrate.Migrate, func(), error) {
	// Create a separate connection for migrations to avoid interfering with the main connection
	migrateDB, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration database: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case SQLite:
		driver, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
	case MySQL:
		driver, err = migratemysql.WithInstance(migrateDB, &migratemysql.Config{})
	default:
		err = fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create %s driver: %w", dialect, err)
	}

	d, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, string(dialect), driver)
	if err != nil {
		migrateDB.Close()
		return nil, nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return m, func() {
		m.Close()
		migrateDB.Close()
	}, nil
}
