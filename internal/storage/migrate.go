package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// migrate applies the embedded migrations for the connection's dialect.
// SQLite reuses the open connection so in-memory databases see the schema;
// PostgreSQL migrates over a dedicated pool that is closed afterwards.
func (db *DB) migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(db.dialect))
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	var driver database.Driver
	switch db.dialect {
	case DialectPostgres:
		migrateDB, err := sql.Open("postgres", dsn)
		if err != nil {
			src.Close()
			return fmt.Errorf("open migration database: %w", err)
		}
		driver, err = postgres.WithInstance(migrateDB, &postgres.Config{})
		if err != nil {
			src.Close()
			migrateDB.Close()
			return fmt.Errorf("create postgres migration driver: %w", err)
		}
	default:
		driver, err = migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
		if err != nil {
			src.Close()
			return fmt.Errorf("create sqlite migration driver: %w", err)
		}
	}

	m, err := migrate.NewWithInstance("iofs", src, string(db.dialect), driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if db.dialect == DialectPostgres {
		defer m.Close()
	} else {
		// m.Close would also close db.conn, so only the source is released.
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
