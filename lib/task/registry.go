// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vsrinivas/fuchsia-sub299/lib/clock"
	"github.com/vsrinivas/fuchsia-sub299/lib/handletable"
	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// Config holds the collaborators a Registry wires into every process
// it creates. All fields are optional.
type Config struct {
	// Logger receives lifecycle milestones at Info and oddities at
	// Warn. If nil, a no-op logger is used.
	Logger *slog.Logger

	// Observer receives every process and thread transition. If nil,
	// transitions are not reported anywhere.
	Observer Observer

	// Scheduler is notified of thread schedulability changes. If nil,
	// a no-op scheduler is used.
	Scheduler Scheduler

	// NewAddressSpace constructs the address space for a process at
	// Initialize time. A nil return reports allocation failure
	// (status.ErrNoMemory) to the caller of Initialize. If the field
	// is nil, an in-memory stub is used.
	NewAddressSpace func() AddressSpace

	// Clock stamps observer events. If nil, the real clock is used.
	Clock clock.Clock
}

// Registry is the process-wide singleton state made explicit: the
// monotonic process-id counter, the list of live processes, and the
// boot-time secret that seeds every handle table's value mask. One
// Registry models one booted kernel.
//
// The registry mutex guards only the counter and the process list. It
// is never held while acquiring any per-process lock, so process
// transitions and registry iteration cannot deadlock.
type Registry struct {
	logger    *slog.Logger
	observer  Observer
	scheduler Scheduler
	newAspace func() AddressSpace
	clock     clock.Clock

	// secret seeds handle-value mask derivation for every process.
	secret handletable.Secret

	mutex sync.Mutex
	// nextID is the last process id handed out.
	nextID uint64
	// processes maps process id to live (not yet Dead) processes.
	processes map[uint64]*Process
}

// NewRegistry creates a registry with a freshly drawn boot secret.
func NewRegistry(cfg Config) (*Registry, error) {
	registry := &Registry{
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		scheduler: cfg.Scheduler,
		newAspace: cfg.NewAddressSpace,
		clock:     cfg.Clock,
		processes: make(map[uint64]*Process),
	}
	if registry.logger == nil {
		registry.logger = slog.New(slog.DiscardHandler)
	}
	if registry.observer == nil {
		registry.observer = nopObserver{}
	}
	if registry.scheduler == nil {
		registry.scheduler = nopScheduler{}
	}
	if registry.newAspace == nil {
		registry.newAspace = newStubAddressSpace
	}
	if registry.clock == nil {
		registry.clock = clock.Real()
	}

	if _, err := rand.Read(registry.secret[:]); err != nil {
		return nil, fmt.Errorf("drawing handle mask secret: %w", err)
	}
	return registry, nil
}

// Clock returns the clock the registry stamps events with.
func (r *Registry) Clock() clock.Clock { return r.clock }

// CreateProcess allocates a new process in the Initial state,
// registers it, and returns it together with a handle carrying
// DefaultProcessRights. The caller owns the handle; the registry holds
// its own reference until the process reaches Dead.
//
// The name must be non-empty and at most ProcessNameMaxLength bytes.
func (r *Registry) CreateProcess(name string) (*Process, *object.Handle, error) {
	if name == "" {
		return nil, nil, status.InvalidArgs("empty process name")
	}
	if len(name) > ProcessNameMaxLength {
		return nil, nil, status.OutOfRange(fmt.Sprintf("process name %q exceeds %d bytes", name, ProcessNameMaxLength))
	}

	process := newProcess(r, name)

	r.mutex.Lock()
	r.nextID++
	process.id = r.nextID
	// The map entry counts as a retained reference; newProcess's
	// creator reference becomes the registry's.
	r.processes[process.id] = process
	r.mutex.Unlock()

	handle := object.NewHandle(process, object.DefaultProcessRights)

	r.logger.Info("process created",
		"id", process.id,
		"koid", process.Koid(),
		"name", name,
	)
	return process, handle, nil
}

// LookupProcess returns the live process with the given id, or
// status.ErrNotFound. Processes disappear from lookup when they reach
// Dead, even if handles to them are still held.
func (r *Registry) LookupProcess(id uint64) (*Process, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	process, ok := r.processes[id]
	if !ok {
		return nil, status.NotFound(fmt.Sprintf("process id %d", id))
	}
	return process, nil
}

// Processes returns a snapshot of the live process list.
func (r *Registry) Processes() []*Process {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	snapshot := make([]*Process, 0, len(r.processes))
	for _, process := range r.processes {
		snapshot = append(snapshot, process)
	}
	return snapshot
}

// DebugDump logs a one-line summary of every live process. Read-only;
// each process is inspected under its own locks, one at a time.
func (r *Registry) DebugDump() {
	for _, process := range r.Processes() {
		info := process.GetInfo()
		stats := process.HandleStats()
		r.logger.Info("process",
			"id", info.ID,
			"koid", info.Koid,
			"name", info.Name,
			"state", info.State.String(),
			"threads", info.ThreadCount,
			"handles", stats.Count,
		)
	}
}

// remove drops a Dead process from the registry and releases the
// registry's reference. Called by the process itself after completing
// the Dead transition, with no process locks held.
func (r *Registry) remove(process *Process) {
	r.mutex.Lock()
	_, present := r.processes[process.id]
	delete(r.processes, process.id)
	r.mutex.Unlock()

	if !present {
		// The Dead transition runs exactly once, so a double remove
		// is a state machine defect.
		panic(fmt.Sprintf("task: process id %d removed from registry twice", process.id))
	}

	r.logger.Info("process removed",
		"id", process.id,
		"koid", process.Koid(),
		"name", process.Name(),
	)
	process.Release()
}
