// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package snapshot captures a point-in-time view of the process
// registry — every live process, its threads, and its handle stats —
// and serializes it as deterministic CBOR, optionally zstd-compressed
// for snapshot files.
//
// A capture is not a consistent cut: each process and thread is
// inspected under its own locks, one at a time, matching the
// introspection contract of the task layer. Processes are sorted by id
// so that two captures of the same quiesced registry encode to
// identical bytes.
package snapshot

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/vsrinivas/fuchsia-sub299/lib/codec"
	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

// ThreadSnapshot is the captured state of one thread.
type ThreadSnapshot struct {
	Koid            uint64 `cbor:"koid"`
	Name            string `cbor:"name"`
	State           string `cbor:"state"`
	SuspendCount    int    `cbor:"suspend_count"`
	BlockedReason   string `cbor:"blocked_reason"`
	BlockingFutexID uint64 `cbor:"blocking_futex_id,omitempty"`
}

// ProcessSnapshot is the captured state of one process.
type ProcessSnapshot struct {
	ID          uint64           `cbor:"id"`
	Koid        uint64           `cbor:"koid"`
	Name        string           `cbor:"name"`
	State       string           `cbor:"state"`
	Retcode     int64            `cbor:"retcode"`
	HandleCount int              `cbor:"handle_count"`
	HandleMax   int              `cbor:"handle_max"`
	Threads     []ThreadSnapshot `cbor:"threads"`
}

// Snapshot is a full registry capture.
type Snapshot struct {
	TakenAt   time.Time         `cbor:"taken_at"`
	Processes []ProcessSnapshot `cbor:"processes"`
}

// Capture walks the registry's live processes and records their
// introspection state.
func Capture(registry *task.Registry) Snapshot {
	snapshot := Snapshot{TakenAt: registry.Clock().Now()}

	for _, process := range registry.Processes() {
		info := process.GetInfo()
		stats := process.HandleStats()
		captured := ProcessSnapshot{
			ID:          info.ID,
			Koid:        uint64(info.Koid),
			Name:        info.Name,
			State:       info.State.String(),
			Retcode:     info.Retcode,
			HandleCount: stats.Count,
			HandleMax:   stats.Max,
		}
		for _, thread := range process.Threads() {
			threadInfo := thread.GetInfo()
			captured.Threads = append(captured.Threads, ThreadSnapshot{
				Koid:            uint64(threadInfo.Koid),
				Name:            threadInfo.Name,
				State:           threadInfo.State.String(),
				SuspendCount:    threadInfo.SuspendCount,
				BlockedReason:   threadInfo.BlockedReason.String(),
				BlockingFutexID: threadInfo.BlockingFutexID,
			})
		}
		sort.Slice(captured.Threads, func(i, j int) bool {
			return captured.Threads[i].Koid < captured.Threads[j].Koid
		})
		snapshot.Processes = append(snapshot.Processes, captured)
	}

	sort.Slice(snapshot.Processes, func(i, j int) bool {
		return snapshot.Processes[i].ID < snapshot.Processes[j].ID
	})
	return snapshot
}

// Encode serializes the snapshot as deterministic CBOR.
func (s Snapshot) Encode() ([]byte, error) {
	data, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encoding: %w", err)
	}
	return data, nil
}

// Decode deserializes a CBOR snapshot.
func Decode(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := codec.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: decoding: %w", err)
	}
	return snapshot, nil
}

// Write serializes the snapshot and writes it to w as a
// zstd-compressed CBOR stream. This is the on-disk snapshot file
// format.
func Write(w io.Writer, s Snapshot) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}

	compressor, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: creating compressor: %w", err)
	}
	if _, err := compressor.Write(data); err != nil {
		compressor.Close()
		return fmt.Errorf("snapshot: writing: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("snapshot: flushing: %w", err)
	}
	return nil
}

// Read decompresses and decodes a snapshot file written by Write.
func Read(r io.Reader) (Snapshot, error) {
	decompressor, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: creating decompressor: %w", err)
	}
	defer decompressor.Close()

	data, err := io.ReadAll(decompressor)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: reading: %w", err)
	}
	return Decode(data)
}
