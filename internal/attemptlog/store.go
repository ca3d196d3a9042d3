// Package attemptlog persists one journal row per rotation attempt so
// operators can reconstruct how a request traversed the credential/model
// grid. The journal is write-mostly and purely observational: nothing in
// the rotation core reads it back.
package attemptlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry is one recorded attempt.
type Entry struct {
	TraceID      string
	Model        string
	Client       string // ordinal label, e.g. "client-2"
	Slot         string // "primary" or "secondary"
	Outcome      string // "success", "failure", "fatal"
	ErrorMessage string
	CreatedAt    time.Time
}

// Writer persists attempt entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite or Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (and initialises) a SQLite-backed journal.
// dsn can be a file path or SQLite DSN; empty defaults to genrotor-attempts.db.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "genrotor-attempts.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite attempt journal: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens (and initialises) a Postgres-backed journal.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres attempt journal: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s attempt journal: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS attempt_log (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	model TEXT NOT NULL,
	client TEXT NOT NULL,
	slot TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS attempt_log (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	model TEXT NOT NULL,
	client TEXT NOT NULL,
	slot TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize attempt journal schema: %w", err)
	}
	return nil
}

// Write appends one attempt row. A zero CreatedAt is stamped with now.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO attempt_log(trace_id, model, client, slot, outcome, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO attempt_log(trace_id, model, client, slot, outcome, error_message, created_at)
	VALUES($1, $2, $3, $4, $5, $6, $7)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Model,
		entry.Client,
		entry.Slot,
		entry.Outcome,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write attempt log: %w", err)
	}
	return nil
}

// List returns the most recent limit entries, newest first. limit <= 0
// defaults to 50.
func (w *SQLWriter) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT trace_id, model, client, slot, outcome, error_message, created_at
	FROM attempt_log ORDER BY created_at DESC, id DESC LIMIT ?`
	if w.dialect == "postgres" {
		query = `SELECT trace_id, model, client, slot, outcome, error_message, created_at
	FROM attempt_log ORDER BY created_at DESC, id DESC LIMIT $1`
	}

	rows, err := w.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempt log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Model, &e.Client, &e.Slot, &e.Outcome, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes entries created before the cutoff and reports how many
// rows were removed.
func (w *SQLWriter) Purge(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM attempt_log WHERE created_at < ?`
	if w.dialect == "postgres" {
		query = `DELETE FROM attempt_log WHERE created_at < $1`
	}

	res, err := w.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("purge attempt log: %w", err)
	}
	return res.RowsAffected()
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
