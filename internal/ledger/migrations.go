package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/btcsuite/btclog/v2"
	"github.com/golang-migrate/migrate/v4"
	migsqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// LatestMigrationVersion is the latest migration version of the
	// database, used to implement downgrade protection.
	//
	// NOTE: This MUST be updated when a new migration is added.
	LatestMigrationVersion uint = 1
)

// ErrMigrationDowngrade is returned when the database was created by a newer
// binary than the one currently running.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// migrationLogger adapts a btclog logger to the migrate.Logger interface.
type migrationLogger struct {
	log btclog.Logger
}

// Printf implements the migrate.Logger interface.
func (m *migrationLogger) Printf(format string, v ...any) {
	m.log.Infof(strings.TrimRight(format, "\n"), v...)
}

// Verbose returns true when verbose logging is enabled.
func (m *migrationLogger) Verbose() bool {
	return true
}

// ApplyMigrations brings the ledger schema up to the latest version using
// the embedded migration files. It refuses to run against a database that is
// already at a newer version than this binary understands.
func ApplyMigrations(db *sql.DB, log btclog.Logger) error {
	driver, err := migsqlite3.WithInstance(db, &migsqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := httpfs.New(http.FS(migrationsFS), "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	mig, err := migrate.NewWithInstance(
		"migrations", source, "detector", driver,
	)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}
	mig.Log = &migrationLogger{log: log}

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty migration state "+
			"at version %d", version)
	}
	if version > LatestMigrationVersion {
		return fmt.Errorf("%w: database version %d, binary supports "+
			"up to %d", ErrMigrationDowngrade, version,
			LatestMigrationVersion)
	}

	if err := mig.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}

		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
