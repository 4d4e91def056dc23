// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

// schema is applied once per connection. Events are append-only; the
// koid indexes serve the history queries.
const schema = `
CREATE TABLE IF NOT EXISTS process_events (
	id         INTEGER PRIMARY KEY,
	at         INTEGER NOT NULL,
	koid       INTEGER NOT NULL,
	process_id INTEGER NOT NULL,
	name       TEXT    NOT NULL,
	state      TEXT    NOT NULL,
	retcode    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS process_events_koid ON process_events (koid);

CREATE TABLE IF NOT EXISTS thread_events (
	id           INTEGER PRIMARY KEY,
	at           INTEGER NOT NULL,
	koid         INTEGER NOT NULL,
	process_koid INTEGER NOT NULL,
	name         TEXT    NOT NULL,
	state        TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS thread_events_koid ON thread_events (koid);
`

// Config holds the parameters for opening a journal.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Use ":memory:" with PoolSize 1 for
	// tests.
	Path string

	// PoolSize is the number of connections. Defaults to 4 if zero or
	// negative. Writes are serialized by SQLite regardless; extra
	// connections help concurrent history queries.
	PoolSize int

	// Logger receives operational messages and dropped-write reports.
	// If nil, a no-op logger is used.
	Logger *slog.Logger
}

// Journal is a SQLite-backed lifecycle event log. It is safe for
// concurrent use and implements task.Observer.
type Journal struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// ProcessRecord is one persisted process transition.
type ProcessRecord struct {
	Time    time.Time `cbor:"time"`
	Koid    uint64    `cbor:"koid"`
	ID      uint64    `cbor:"id"`
	Name    string    `cbor:"name"`
	State   string    `cbor:"state"`
	Retcode int64     `cbor:"retcode"`
}

// ThreadRecord is one persisted thread transition.
type ThreadRecord struct {
	Time        time.Time `cbor:"time"`
	Koid        uint64    `cbor:"koid"`
	ProcessKoid uint64    `cbor:"process_koid"`
	Name        string    `cbor:"name"`
	State       string    `cbor:"state"`
}

// Open creates or opens a journal database. WAL mode and the standard
// pragmas are applied to every connection; the schema is created on
// first use. The caller must Close the journal when done.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			pragmas := []string{
				"PRAGMA journal_mode=WAL",
				"PRAGMA synchronous=NORMAL",
				"PRAGMA busy_timeout=5000",
			}
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("journal: %s: %w", pragma, err)
				}
			}
			if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
				return fmt.Errorf("journal: creating schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: opening %s: %w", cfg.Path, err)
	}

	logger.Info("journal opened", "path", cfg.Path, "pool_size", poolSize)
	return &Journal{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes the journal. Blocks until in-flight writes complete.
func (j *Journal) Close() error {
	if err := j.pool.Close(); err != nil {
		return fmt.Errorf("journal: closing %s: %w", j.path, err)
	}
	return nil
}

// ProcessTransition implements task.Observer. Write failures are
// logged and dropped: the journal must never stall or fail a
// lifecycle transition.
func (j *Journal) ProcessTransition(event task.ProcessEvent) {
	err := j.execute(`INSERT INTO process_events (at, koid, process_id, name, state, retcode)
		VALUES (:at, :koid, :process_id, :name, :state, :retcode)`,
		map[string]any{
			":at":         event.Time.UnixNano(),
			":koid":       int64(event.Koid),
			":process_id": int64(event.ID),
			":name":       event.Name,
			":state":      event.State.String(),
			":retcode":    event.Retcode,
		}, nil)
	if err != nil {
		j.logger.Warn("dropped process event", "koid", event.Koid, "error", err)
	}
}

// ThreadTransition implements task.Observer.
func (j *Journal) ThreadTransition(event task.ThreadEvent) {
	err := j.execute(`INSERT INTO thread_events (at, koid, process_koid, name, state)
		VALUES (:at, :koid, :process_koid, :name, :state)`,
		map[string]any{
			":at":           event.Time.UnixNano(),
			":koid":         int64(event.Koid),
			":process_koid": int64(event.ProcessKoid),
			":name":         event.Name,
			":state":        event.State.String(),
		}, nil)
	if err != nil {
		j.logger.Warn("dropped thread event", "koid", event.Koid, "error", err)
	}
}

// ProcessHistory returns every persisted transition of the process
// with the given koid, in insertion order.
func (j *Journal) ProcessHistory(ctx context.Context, koid uint64) ([]ProcessRecord, error) {
	var records []ProcessRecord
	err := j.executeContext(ctx, `SELECT at, koid, process_id, name, state, retcode
		FROM process_events WHERE koid = :koid ORDER BY id`,
		map[string]any{":koid": int64(koid)},
		func(stmt *sqlite.Stmt) error {
			records = append(records, ProcessRecord{
				Time:    time.Unix(0, stmt.ColumnInt64(0)),
				Koid:    uint64(stmt.ColumnInt64(1)),
				ID:      uint64(stmt.ColumnInt64(2)),
				Name:    stmt.ColumnText(3),
				State:   stmt.ColumnText(4),
				Retcode: stmt.ColumnInt64(5),
			})
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("journal: process history for koid %d: %w", koid, err)
	}
	return records, nil
}

// ThreadHistory returns every persisted transition of the thread with
// the given koid, in insertion order.
func (j *Journal) ThreadHistory(ctx context.Context, koid uint64) ([]ThreadRecord, error) {
	var records []ThreadRecord
	err := j.executeContext(ctx, `SELECT at, koid, process_koid, name, state
		FROM thread_events WHERE koid = :koid ORDER BY id`,
		map[string]any{":koid": int64(koid)},
		func(stmt *sqlite.Stmt) error {
			records = append(records, ThreadRecord{
				Time:        time.Unix(0, stmt.ColumnInt64(0)),
				Koid:        uint64(stmt.ColumnInt64(1)),
				ProcessKoid: uint64(stmt.ColumnInt64(2)),
				Name:        stmt.ColumnText(3),
				State:       stmt.ColumnText(4),
			})
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("journal: thread history for koid %d: %w", koid, err)
	}
	return records, nil
}

// execute runs a statement with a background context. Used by the
// observer path, which has no caller context to propagate.
func (j *Journal) execute(query string, named map[string]any, result func(*sqlite.Stmt) error) error {
	return j.executeContext(context.Background(), query, named, result)
}

func (j *Journal) executeContext(ctx context.Context, query string, named map[string]any, result func(*sqlite.Stmt) error) error {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("taking connection: %w", err)
	}
	defer j.pool.Put(conn)

	return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Named:      named,
		ResultFunc: result,
	})
}
