// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/vsrinivas/fuchsia-sub299/lib/codec"
)

// ExportDocument is the CBOR shape of a full journal export.
type ExportDocument struct {
	ExportedAt time.Time       `cbor:"exported_at"`
	Processes  []ProcessRecord `cbor:"processes"`
	Threads    []ThreadRecord  `cbor:"threads"`
}

// Export writes the entire journal to w as a single deterministic
// CBOR document, in insertion order. Used by tooling to pull a
// journal off a machine for offline analysis.
func (j *Journal) Export(ctx context.Context, w io.Writer, now time.Time) error {
	document := ExportDocument{ExportedAt: now}

	err := j.executeContext(ctx, `SELECT at, koid, process_id, name, state, retcode
		FROM process_events ORDER BY id`, nil,
		func(stmt *sqlite.Stmt) error {
			document.Processes = append(document.Processes, ProcessRecord{
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
		return fmt.Errorf("journal: exporting process events: %w", err)
	}

	err = j.executeContext(ctx, `SELECT at, koid, process_koid, name, state
		FROM thread_events ORDER BY id`, nil,
		func(stmt *sqlite.Stmt) error {
			document.Threads = append(document.Threads, ThreadRecord{
				Time:        time.Unix(0, stmt.ColumnInt64(0)),
				Koid:        uint64(stmt.ColumnInt64(1)),
				ProcessKoid: uint64(stmt.ColumnInt64(2)),
				Name:        stmt.ColumnText(3),
				State:       stmt.ColumnText(4),
			})
			return nil
		})
	if err != nil {
		return fmt.Errorf("journal: exporting thread events: %w", err)
	}

	if err := codec.NewEncoder(w).Encode(document); err != nil {
		return fmt.Errorf("journal: encoding export: %w", err)
	}
	return nil
}
