// Package metrics persists historical run data to a local SQLite database,
// one row per multiplex.Outcome. It is the optional sink the original
// mussh's metrics table hinted at but never shipped; enabling it is always
// the caller's choice (via a --metrics-db flag), and a write failure here
// never aborts a run — it is reported the same best-effort way a hostlog
// write failure is.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agent462/mussh/internal/multiplex"
)

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	hostname  TEXT NOT NULL,
	cmdname   TEXT NOT NULL,
	secs      INTEGER NOT NULL,
	micros    INTEGER NOT NULL,
	timestamp TEXT NOT NULL
);
`

// Sink writes Outcome records to a SQLite database.
type Sink struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the metrics table exists.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("metrics: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metrics: create schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// Record inserts one row for o. secs/micros split o.Duration the way the
// original schema's two integer columns imply, rather than a single
// sub-second float.
func (s *Sink) Record(ctx context.Context, o multiplex.Outcome) error {
	secs := int64(o.Duration / time.Second)
	micros := int64((o.Duration % time.Second) / time.Microsecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics (hostname, cmdname, secs, micros, timestamp) VALUES (?, ?, ?, ?, ?)`,
		o.Host, o.Cmd, secs, micros, o.Started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("metrics: insert: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Sink) Close() error {
	return s.db.Close()
}
