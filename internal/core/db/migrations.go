package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/dispatchkeeper/migrations"
)

/*
 * Schema migrations.
 *
 * Migration files are embedded per driver and applied in file name order.
 * Each file runs in its own transaction together with its bookkeeping row in
 * the migrations table, so a failed file leaves no trace. Applied files are
 * pinned by SHA-256: editing a file after it ran is reported, never
 * silently re-applied.
 */

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// migration is one embedded file.
type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// appliedRow is one bookkeeping row.
type appliedRow struct {
	ID          string `db:"migration_id"`
	Checksum    string `db:"checksum"`
	AppliedAt   string `db:"applied_at"`
	ExecutionMs int64  `db:"execution_ms"`
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS migrations (
	migration_id TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	applied_at TEXT NOT NULL,
	execution_ms INTEGER NOT NULL
)`

// MigrateUp applies every pending migration. It fails before applying
// anything when an applied file was changed or removed.
func MigrateUp(ctx context.Context, db *sqlx.DB) error {
	files, applied, err := prepare(ctx, db)
	if err != nil {
		return err
	}
	if err := verifyChecksums(files, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, m := range files {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration, applied or pending, in
// the order MigrateUp would run them.
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	files, applied, err := prepare(ctx, db)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, m := range files {
		row, ok := applied[m.ID]
		if !ok {
			statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
			continue
		}
		status := MigrationStatus{ID: row.ID, Checksum: row.Checksum, Applied: true, ExecutionMs: row.ExecutionMs}
		if t, err := ParseTime(row.AppliedAt); err == nil && !t.IsZero() {
			status.AppliedAt = &t
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Pending returns the ids of migrations not applied yet. Services call it at
// startup and refuse to run against an outdated schema.
func Pending(ctx context.Context, db *sqlx.DB) ([]string, error) {
	statuses, err := MigrateStatus(ctx, db)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, s := range statuses {
		if !s.Applied {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

// prepare ensures the bookkeeping table and loads both sides.
func prepare(ctx context.Context, db *sqlx.DB) ([]migration, map[string]appliedRow, error) {
	dir, err := migrationDir(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	files, err := loadMigrations(embeddedmigrations.FS, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse migrations: %w", err)
	}

	var rows []appliedRow
	if err := db.SelectContext(ctx, &rows,
		"SELECT migration_id, checksum, applied_at, execution_ms FROM migrations"); err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	applied := make(map[string]appliedRow, len(rows))
	for _, r := range rows {
		applied[r.ID] = r
	}
	return files, applied, nil
}

// migrationDir is the directory of migrations.FS holding the driver's files.
func migrationDir(driver string) (string, error) {
	switch driver {
	case "sqlite3":
		return "sqlite", nil
	case "postgres":
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// loadMigrations reads the .sql files of dir sorted by name.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			ID:       e.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func verifyChecksums(files []migration, applied map[string]appliedRow) error {
	embedded := make(map[string]string, len(files))
	for _, m := range files {
		embedded[m.ID] = m.Checksum
	}

	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got := applied[id].Checksum; got != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, got)
		}
	}
	return nil
}

// apply runs one file and records it in a single transaction.
func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}
	defer tx.Rollback()

	// lib/pq rejects several statements in one Exec
	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = stripComments(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: statement failed: %w", m.ID, err)
		}
	}

	record := tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)")
	if _, err := tx.ExecContext(ctx, record,
		m.ID, m.Checksum, FormatTime(time.Now()), time.Since(start).Milliseconds()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// stripComments drops full-line "--" comments so a statement preceded by a
// comment block still runs.
func stripComments(stmt string) string {
	var kept []string
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
