package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/sqlite/*.sql files/postgres/*.sql
var migrationFiles embed.FS

// Dialect selects the SQL flavour of the migration set.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) dir() (string, error) {
	switch d {
	case DialectSQLite, DialectPostgres:
		return "files/" + string(d), nil
	default:
		return "", fmt.Errorf("unknown migration dialect %q", d)
	}
}

// CheckDBMigrationStatus verifies that the database schema is up-to-date.
// Returns nil if the database is at the latest version.
// Returns an error describing any version mismatch or migration issues.
//
// For DialectPostgres db is closed on return; pass a dedicated handle.
func CheckDBMigrationStatus(db *sql.DB, d Dialect) error {
	m, err := newMigrate(db, d)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer release(m, d)

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	latestVersion, err := LatestVersion(d)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}

	if version < latestVersion {
		return fmt.Errorf("database is at version %d but latest is %d (%d migrations behind)",
			version, latestVersion, latestVersion-version)
	}

	if version > latestVersion {
		return fmt.Errorf("database version %d is ahead of binary version %d (binary needs update)",
			version, latestVersion)
	}

	return nil
}

// MigrateUp runs all pending migrations to bring database to latest version.
//
// For DialectPostgres db is closed on return; pass a dedicated handle.
func MigrateUp(db *sql.DB, d Dialect) error {
	m, err := newMigrate(db, d)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer release(m, d)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// LatestVersion returns the highest migration version shipped for the dialect.
func LatestVersion(d Dialect) (uint, error) {
	dir, err := d.dir()
	if err != nil {
		return 0, err
	}
	src, err := iofs.New(migrationFiles, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()

	return latestVersion(src)
}

// release closes the migrate instance where that is safe.
// The sqlite driver would close the caller's connection, so it is left open;
// the pgx driver pins a session connection that must be returned.
func release(m *migrate.Migrate, d Dialect) {
	if d == DialectPostgres {
		m.Close()
	}
}

// newMigrate creates a new migrate instance for the given database.
func newMigrate(db *sql.DB, d Dialect) (*migrate.Migrate, error) {
	dir, err := d.dir()
	if err != nil {
		return nil, err
	}

	sourceDriver, err := iofs.New(migrationFiles, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	var (
		dbDriver database.Driver
		name     string
	)
	switch d {
	case DialectSQLite:
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
		name = "sqlite3"
	case DialectPostgres:
		dbDriver, err = pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
		name = "pgx5"
	}
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, name, dbDriver)
	if err != nil {
		sourceDriver.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

// latestVersion returns the highest version number available in the source.
func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}

	latest := version
	for {
		next, err := src.Next(latest)
		if err != nil {
			// Next errors once there are no more migrations.
			break
		}
		latest = next
	}

	return latest, nil
}
