package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs the named statements of queries/*.sql ("-- name: list-groups")
// against a database. Statements use ? placeholders and are rebound for the
// connected driver.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries parses every embedded query file.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var all strings.Builder
	err := fs.WalkDir(queriesFS, "queries", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || path.Ext(p) != ".sql" {
			return err
		}
		content, err := queriesFS.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		all.Write(content)
		all.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(all.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

// Query returns the SQL of a named statement bound for the driver.
func (q *Queries) Query(name string) (string, error) {
	raw, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(raw), nil
}

func (q *Queries) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	return execNamed(ctx, q, q.db, name, args)
}

// GetContext scans one row into dest. A missing row is sql.ErrNoRows,
// unwrapped.
func (q *Queries) GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	return getNamed(ctx, q, q.db, name, dest, args)
}

func (q *Queries) SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	return selectNamed(ctx, q, q.db, name, dest, args)
}

// Tx is a transaction offering the same named statements as Queries.
type Tx struct {
	q  *Queries
	tx *sqlx.Tx
}

// InTx commits when fn returns nil and rolls back otherwise.
func (q *Queries) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{q: q, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Tx) ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	return execNamed(ctx, t.q, t.tx, name, args)
}

func (t *Tx) GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	return getNamed(ctx, t.q, t.tx, name, dest, args)
}

func (t *Tx) SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	return selectNamed(ctx, t.q, t.tx, name, dest, args)
}

// *sqlx.DB and *sqlx.Tx both satisfy sqlx.ExtContext.

func execNamed(ctx context.Context, q *Queries, ext sqlx.ExtContext, name string, args []interface{}) (sql.Result, error) {
	query, err := q.Query(name)
	if err != nil {
		return nil, err
	}
	return ext.ExecContext(ctx, query, args...)
}

func getNamed(ctx context.Context, q *Queries, ext sqlx.ExtContext, name string, dest interface{}, args []interface{}) error {
	query, err := q.Query(name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, ext, dest, query, args...)
}

func selectNamed(ctx context.Context, q *Queries, ext sqlx.ExtContext, name string, dest interface{}, args []interface{}) error {
	query, err := q.Query(name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, ext, dest, query, args...)
}
