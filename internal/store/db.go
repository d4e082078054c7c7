package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the database for the given dialect and verifies the
// connection. SQLite gets a single connection with WAL and foreign keys on.
func Open(ctx context.Context, dialect Dialect, databaseURL string) (*sql.DB, error) {
	dsn := databaseURL
	if dialect == SQLite {
		dsn = sqliteDSN(databaseURL)
	}
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch dialect {
	case SQLite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	default:
		db.SetConnMaxIdleTime(5 * time.Minute)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(20)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if dialect == SQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// sqliteDSN pins the time format so TIMESTAMP columns round-trip as time.Time.
func sqliteDSN(path string) string {
	if strings.Contains(path, "_time_format=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_time_format=sqlite"
	}
	return path + "?_time_format=sqlite"
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	return nil
}
