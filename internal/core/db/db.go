// Package db opens the rule store database and runs its embedded migrations
// and named queries.
//
// SQLite serves local use and tests, PostgreSQL production. Timestamps are
// fixed-width UTC text on both drivers so time windows compare as strings.
package db

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Pool limits assume a 100 connection PostgreSQL server shared by about six
// instances.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// Open connects to a sqlite://path or postgres:// URL and verifies the
// connection. sqlite://rules.db is relative, sqlite:///var/lib/rules.db
// absolute; a query string is passed to the driver.
func Open(dbURL string) (*sqlx.DB, error) {
	driver, dsn, err := dataSource(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func dataSource(dbURL string) (driver, dsn string, err error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return "postgres", dbURL, nil
	case "sqlite":
		dsn = u.Host + u.Path
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite URL has no path: %s", dbURL)
		}
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return "sqlite3", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}

// TimeFormat is the layout of every timestamp column.
const TimeFormat = "2006-01-02T15:04:05Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime reads a timestamp column; "" is the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
