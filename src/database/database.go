// Package database owns the SQLite handle behind the kv cache store and
// applies schema migrations at startup.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/username/cartera/backend/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

// InitDB opens the cache database. WAL plus a busy timeout keeps the single
// writer responsive; the connection cap avoids SQLITE_BUSY under the
// per-ticker fan-out.
func InitDB(databasePath string) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", databasePath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		stdlog.Fatalf("opening cache database %s: %v", databasePath, err)
	}
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		stdlog.Fatalf("cache database unreachable: %v", err)
	}
	DB = db
	logger.L.Info("Cache database ready", "path", databasePath)
}

// RunMigrations brings the cache schema up to date. The migration source is
// the local db/migrations directory, or the container path under GO_ENV=PRO.
func RunMigrations(databasePath string) {
	if DB == nil {
		stdlog.Fatal("RunMigrations called before InitDB")
	}

	driver, err := sqlite.WithInstance(DB, &sqlite.Config{})
	if err != nil {
		stdlog.Fatalf("creating migration driver: %v", err)
	}

	sourceURL := "file:///app/db/migrations"
	if os.Getenv("GO_ENV") != "PRO" {
		cwd, err := os.Getwd()
		if err != nil {
			stdlog.Fatalf("resolving working directory: %v", err)
		}
		sourceURL = "file://" + filepath.ToSlash(filepath.Join(cwd, "db", "migrations"))
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, databasePath, driver)
	if err != nil {
		stdlog.Fatalf("creating migration instance from %s: %v", sourceURL, err)
	}

	switch err := m.Up(); {
	case err == nil:
		logger.L.Info("Cache schema migrated", "source", sourceURL)
	case errors.Is(err, migrate.ErrNoChange):
		logger.L.Info("Cache schema already up to date")
	default:
		stdlog.Fatalf("applying migrations: %v", err)
	}
}
