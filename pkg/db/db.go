// Package db opens the database the provisioner keeps its event log
// and schedule index in, and brings its schema up to date.
package db

import (
	"net/url"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"

	// postgres driver for sqlx
	_ "github.com/lib/pq"
)

const (
	// MemoryScheme selects the in-memory stores, e.g., memory://
	MemoryScheme = "memory"
	dialect      = "postgres"
)

// IsMemory reports whether the database source names the in-memory
// stores rather than a database.
func IsMemory(source string) (bool, error) {
	u, err := url.Parse(source)
	if err != nil {
		return false, errors.Wrap(err, "parsing database source")
	}
	return u.Scheme == MemoryScheme, nil
}

// DriverForScheme maps the scheme of a database source URL to the
// name of the sql driver to open it with.
func DriverForScheme(scheme string) (string, error) {
	switch scheme {
	case "postgres", "postgresql":
		return dialect, nil
	}
	return "", errors.Errorf("unsupported database scheme %q", scheme)
}

// Open connects to the database at the source URL.
func Open(source string) (*sqlx.DB, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database source")
	}
	driver, err := DriverForScheme(u.Scheme)
	if err != nil {
		return nil, err
	}
	conn, err := sqlx.Connect(driver, source)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	return conn, nil
}

// Migrate makes sure the schema is up to date, returning the number of
// migrations applied.
func Migrate(conn *sqlx.DB) (int, error) {
	n, err := migrate.Exec(conn.DB, dialect, Migrations, migrate.Up)
	if err != nil {
		return n, errors.Wrap(err, "migrating database")
	}
	return n, nil
}
