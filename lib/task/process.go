// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"sync"

	"github.com/vsrinivas/fuchsia-sub299/lib/handletable"
	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// ProcessNameMaxLength bounds process and thread names. Names longer
// than this are rejected with status.ErrOutOfRange, never truncated
// silently.
const ProcessNameMaxLength = 32

// Process is the process dispatcher: it owns a handle table, an
// address space, and a list of threads, and drives the top-level
// lifecycle state machine (Initial → Running → Dying → Dead) whose
// terminal transition cascades into thread teardown, handle-table
// drain, and address space destruction.
//
// All methods are safe for concurrent use.
type Process struct {
	object.Base

	registry *Registry

	// id is the process id, assigned under the registry mutex from
	// the global monotonic counter. Distinct from the koid, which is
	// shared with every other object type.
	id   uint64
	name string

	// stateMutex guards state, retcode, and addressSpace. Acquired
	// before threadsMutex everywhere both are needed.
	stateMutex   sync.Mutex
	state        ProcessState
	retcode      int64
	addressSpace AddressSpace

	// terminated is closed exactly once, on entry to Dead, while the
	// state mutex is held. External waiters select on it.
	terminated chan struct{}

	// threadsMutex guards threads and mainThread.
	threadsMutex sync.Mutex
	// threads owns every live thread dispatcher: each entry holds a
	// retained reference, released by removeThread.
	threads []*Thread
	// mainThread is a weak back-reference to the first started
	// thread. Cleared when that thread is removed; never retained.
	mainThread *Thread

	// handles is the process's handle table. Its own mutex is
	// independent of the locks above; the Dead-transition drain runs
	// while stateMutex is held, which is safe because the table never
	// acquires process locks.
	handles *handletable.Table

	// exceptionMutex guards exceptionHandler, independent of all
	// other locks.
	exceptionMutex   sync.Mutex
	exceptionHandler object.Dispatcher
}

// ProcessInfo is a point-in-time introspection snapshot of a process.
type ProcessInfo struct {
	ID          uint64
	Koid        object.Koid
	Name        string
	State       ProcessState
	Retcode     int64
	ThreadCount int
}

func newProcess(registry *Registry, name string) *Process {
	process := &Process{
		registry:   registry,
		name:       name,
		state:      ProcessInitial,
		terminated: make(chan struct{}),
	}
	process.InitBase(object.TypeProcess, object.KoidInvalid)
	process.handles = handletable.New(process.Koid(), registry.secret)
	process.SetDestructor(process.destroy)
	return process
}

// destroy runs when the last reference is released. A process is only
// destroyed after reaching Dead, or from Initial when the creator
// discards it before ever starting it; anything else is a refcount
// accounting bug.
func (p *Process) destroy() {
	if p.state != ProcessDead && p.state != ProcessInitial {
		panic(fmt.Sprintf("task: process %q destroyed in state %s", p.name, p.state))
	}
	if p.state == ProcessDead && p.handles.Count() != 0 {
		panic(fmt.Sprintf("task: dead process %q destroyed with %d live handles", p.name, p.handles.Count()))
	}
	// Discarded before Initialize/Dead: the address space was never
	// destroyed by a transition.
	if p.addressSpace != nil {
		p.addressSpace.Destroy()
		p.addressSpace = nil
	}
	p.SetExceptionHandler(nil)
}

// ID returns the process id.
func (p *Process) ID() uint64 { return p.id }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Process) State() ProcessState {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.state
}

// Retcode returns the recorded exit code. Meaningful once the process
// is Dead.
func (p *Process) Retcode() int64 {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.retcode
}

// Terminated returns a channel closed when the process reaches Dead.
func (p *Process) Terminated() <-chan struct{} { return p.terminated }

// Initialize creates the process's address space. Must be called
// exactly once, while in Initial; a second call, or a call after the
// process left Initial, fails with status.ErrBadState. An allocation
// failure (status.ErrNoMemory) leaves the process unusable and the
// caller should discard it.
func (p *Process) Initialize() error {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()

	if p.state != ProcessInitial {
		return status.BadState(fmt.Sprintf("initialize process: state %s", p.state))
	}
	if p.addressSpace != nil {
		return status.BadState("initialize process: already initialized")
	}

	addressSpace := p.registry.newAspace()
	if addressSpace == nil {
		return status.NoMemory("creating address space")
	}
	p.addressSpace = addressSpace
	return nil
}

// EntryState is the initial register state captured for a thread at
// start time: entry point, stack pointer, and the two entry arguments.
type EntryState struct {
	PC   uint64
	SP   uint64
	Arg1 uint64
	Arg2 uint64
}

// Start creates and starts the first (main) thread with the given
// entry state and transitions the process to Running. One-shot: fails
// with status.ErrBadState unless the process is in Initial and
// Initialize has been called.
//
// On thread-creation failure the process transitions directly to Dead
// and the underlying error is returned. On success the process is
// schedulable: the new thread may begin running before Start returns,
// so the caller must not assume ordering with respect to its early
// execution.
func (p *Process) Start(entry EntryState) error {
	p.stateMutex.Lock()
	if p.state != ProcessInitial {
		defer p.stateMutex.Unlock()
		return status.BadState(fmt.Sprintf("start process: state %s", p.state))
	}
	if p.addressSpace == nil {
		defer p.stateMutex.Unlock()
		return status.BadState("start process: not initialized")
	}
	p.stateMutex.Unlock()

	// Thread creation takes the state mutex itself (addThread), so it
	// runs between the check above and the transition below. A
	// concurrent Kill in that window moves the process to Dying/Dead
	// and the transition below detects it.
	thread, threadHandle, err := p.CreateThread("initial-thread")
	if err != nil {
		// A process that failed to start is unusable: take it straight
		// to Dead. Kill handles the normal empty-list case (Initial →
		// Dead) and the edge cases where threads were created before
		// Start or a concurrent Kill already began teardown.
		p.Kill()
		return fmt.Errorf("starting process %q: %w", p.name, err)
	}
	// The thread list keeps the initial thread alive; nobody needs a
	// handle to it here.
	threadHandle.Close()

	p.stateMutex.Lock()
	if p.state != ProcessInitial {
		// Lost the race against a concurrent Kill or a competing
		// Start. If a kill cascade already signaled the new thread,
		// this Kill is absorbed as a no-op; otherwise the thread is
		// still Initialized and killing it removes it from the list
		// immediately, so the loser leaves no never-started thread
		// behind to keep the process from dying.
		state := p.state
		p.stateMutex.Unlock()
		thread.Kill()
		return status.BadState(fmt.Sprintf("start process: state %s", state))
	}
	p.threadsMutex.Lock()
	p.mainThread = thread
	p.threadsMutex.Unlock()
	p.setStateLocked(ProcessRunning)
	p.stateMutex.Unlock()

	if err := thread.Start(entry, true); err != nil {
		// The only way Start can fail here is a concurrent kill that
		// already moved the thread out of Initialized; the cascade
		// owns teardown in that case.
		return fmt.Errorf("starting initial thread of %q: %w", p.name, err)
	}
	p.notifyTransition(ProcessRunning)
	return nil
}

// Exit records the exit code and transitions the process to Dying,
// signaling a kill to every thread including the caller. It is the
// terminal act of a thread belonging to this process: after Exit
// returns, the calling thread is expected to run its own exit path
// (Thread.Exit) rather than continue normal work.
func (p *Process) Exit(retcode int64) {
	p.stateMutex.Lock()
	if p.state == ProcessInitial || p.state == ProcessDead {
		p.stateMutex.Unlock()
		panic(fmt.Sprintf("task: Exit on process %q in state %s", p.name, p.State()))
	}
	transitioned := false
	if p.state == ProcessRunning {
		p.retcode = retcode
		p.setStateLocked(ProcessDying)
		transitioned = true
	}
	p.stateMutex.Unlock()
	if transitioned {
		p.notifyTransition(ProcessDying)
		p.deliverKills()
	}
}

// Kill requests process termination. Idempotent: a second Kill, or a
// Kill racing natural thread exit, observes teardown already in
// progress and does nothing. With an empty thread list the process
// goes straight to Dead; otherwise it enters Dying and every live
// thread is signaled, with the last thread's removal completing the
// transition to Dead.
func (p *Process) Kill() {
	p.stateMutex.Lock()
	if p.state == ProcessDead || p.state == ProcessDying {
		p.stateMutex.Unlock()
		return
	}

	p.threadsMutex.Lock()
	empty := len(p.threads) == 0
	p.threadsMutex.Unlock()

	enteredDead := false
	if empty {
		enteredDead = p.setStateLocked(ProcessDead)
	} else {
		p.setStateLocked(ProcessDying)
	}
	p.stateMutex.Unlock()

	if enteredDead {
		// finishTermination reports the Dead transition.
		p.finishTermination()
	} else {
		p.notifyTransition(ProcessDying)
		p.deliverKills()
	}
}

// setStateLocked is the single transition point of the process state
// machine. Callers hold stateMutex. Self-transitions are no-ops; any
// transition out of Dead, or backwards, is an invariant violation and
// panics. Returns true when this call performed the entry into Dead,
// in which case the caller must invoke finishTermination after
// dropping the state mutex.
//
// Side effects: entering Dead drains and destroys every handle,
// destroys the address space, and closes the terminated channel, all
// while the state mutex is held (the table and the address space never
// take process locks). Entering Dying does NOT deliver kills here —
// the caller invokes deliverKills after dropping the state mutex,
// because killing an unstarted thread removes it from the thread list,
// which needs the state mutex again.
func (p *Process) setStateLocked(next ProcessState) bool {
	if p.state == next {
		return false
	}
	if p.state == ProcessDead {
		panic(fmt.Sprintf("task: process %q transition %s -> %s out of terminal state", p.name, p.state, next))
	}
	if next < p.state {
		panic(fmt.Sprintf("task: process %q transition %s -> %s runs backwards", p.name, p.state, next))
	}
	p.state = next

	if next == ProcessDead {
		p.handles.DrainAndDestroyAll()
		if p.addressSpace != nil {
			p.addressSpace.Destroy()
			p.addressSpace = nil
		}
		close(p.terminated)
		return true
	}
	return false
}

// deliverKills signals a kill to every live thread. Called with no
// process locks held, after the transition into Dying. The set cannot
// grow under us: addThread rejects new threads once the process is
// Dying, so the snapshot covers every thread that will ever be in the
// list. Threads that exit before their kill arrives absorb it as a
// no-op.
func (p *Process) deliverKills() {
	p.threadsMutex.Lock()
	targets := make([]*Thread, len(p.threads))
	copy(targets, p.threads)
	p.threadsMutex.Unlock()

	for _, thread := range targets {
		thread.Kill()
	}
}

// finishTermination completes the Dead transition with no process
// locks held: removes the process from the registry (which takes the
// registry mutex, so it must never run under stateMutex) and reports
// the terminal transition. Runs exactly once, guarded by the state
// machine's single entry into Dead.
func (p *Process) finishTermination() {
	p.notifyTransition(ProcessDead)
	p.registry.remove(p)
}

// notifyTransition reports a state change to the registry's observer.
// Called with no locks held; the state passed is the one observed at
// transition time, not re-read.
func (p *Process) notifyTransition(state ProcessState) {
	p.registry.observer.ProcessTransition(ProcessEvent{
		Time:    p.registry.clock.Now(),
		Koid:    p.Koid(),
		ID:      p.id,
		Name:    p.name,
		State:   state,
		Retcode: p.Retcode(),
	})
}

// CreateThread creates a thread owned by this process and returns it
// with a handle carrying DefaultThreadRights. Fails with
// status.ErrBadState when the process is Dying or Dead (no new threads
// may join a dying process), status.ErrInvalidArgs on an empty name,
// and status.ErrOutOfRange on an over-long one.
// The thread starts in Initialized and runs nothing until started.
func (p *Process) CreateThread(name string) (*Thread, *object.Handle, error) {
	if name == "" {
		return nil, nil, status.InvalidArgs("empty thread name")
	}
	if len(name) > ProcessNameMaxLength {
		return nil, nil, status.OutOfRange(fmt.Sprintf("thread name %q exceeds %d bytes", name, ProcessNameMaxLength))
	}

	thread := newThread(p, name)
	if err := p.addThread(thread); err != nil {
		// Unwind the partially constructed thread: releasing the
		// creator reference destroys it and drops its process
		// back-reference.
		thread.Release()
		return nil, nil, err
	}

	handle := object.NewHandle(thread, object.DefaultThreadRights)
	return thread, handle, nil
}

// addThread inserts a thread into the thread list, transferring the
// creator reference to the list. State mutex first, then thread-list
// mutex.
func (p *Process) addThread(thread *Thread) error {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()

	if p.state == ProcessDying || p.state == ProcessDead {
		return status.BadState(fmt.Sprintf("add thread: process %s", p.state))
	}

	p.threadsMutex.Lock()
	p.threads = append(p.threads, thread)
	p.threadsMutex.Unlock()
	return nil
}

// removeThread removes a thread from the thread list after its exit
// path completes. If it was the main thread, the weak reference is
// cleared. If the list becomes empty and the process has been started,
// the process transitions to Dead — this is how Dying completes, and
// how a started process whose threads all exited naturally dies
// without an explicit Kill.
//
// State mutex before thread-list mutex, matching every other path that
// takes both.
func (p *Process) removeThread(thread *Thread) {
	p.stateMutex.Lock()
	p.threadsMutex.Lock()

	found := false
	for i, candidate := range p.threads {
		if candidate == thread {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		p.threadsMutex.Unlock()
		p.stateMutex.Unlock()
		panic(fmt.Sprintf("task: thread %q not in thread list of %q", thread.Name(), p.name))
	}
	if p.mainThread == thread {
		p.mainThread = nil
	}
	empty := len(p.threads) == 0
	p.threadsMutex.Unlock()

	enteredDead := false
	if empty && p.state != ProcessInitial {
		enteredDead = p.setStateLocked(ProcessDead)
	}
	p.stateMutex.Unlock()

	if enteredDead {
		p.finishTermination()
	}

	// The thread list's reference. The thread object survives if
	// handles to it are still held; it is gone from the list either way.
	thread.Release()
}

// ThreadCount returns the number of live threads.
func (p *Process) ThreadCount() int {
	p.threadsMutex.Lock()
	defer p.threadsMutex.Unlock()
	return len(p.threads)
}

// MainThread returns the main thread, or nil before Start or after the
// main thread exited.
func (p *Process) MainThread() *Thread {
	p.threadsMutex.Lock()
	defer p.threadsMutex.Unlock()
	return p.mainThread
}

// Threads returns a snapshot of the live thread list.
func (p *Process) Threads() []*Thread {
	p.threadsMutex.Lock()
	defer p.threadsMutex.Unlock()
	snapshot := make([]*Thread, len(p.threads))
	copy(snapshot, p.threads)
	return snapshot
}

// GetInfo returns an introspection snapshot. Each substructure is
// locked individually; the result is not a consistent cut across all
// of them.
func (p *Process) GetInfo() ProcessInfo {
	p.stateMutex.Lock()
	state := p.state
	retcode := p.retcode
	p.stateMutex.Unlock()

	return ProcessInfo{
		ID:          p.id,
		Koid:        p.Koid(),
		Name:        p.name,
		State:       state,
		Retcode:     retcode,
		ThreadCount: p.ThreadCount(),
	}
}

// HandleStats returns the handle table's live and high-water counts.
func (p *Process) HandleStats() handletable.Stats {
	return p.handles.GetStats()
}

// AddHandle installs a handle into the process's handle table and
// returns its external value.
func (p *Process) AddHandle(handle *object.Handle) uint32 {
	return p.handles.Add(handle)
}

// GetDispatcher resolves a handle value to its dispatcher and rights.
func (p *Process) GetDispatcher(value uint32) (object.Dispatcher, object.Rights, error) {
	return p.handles.Get(value)
}

// RemoveHandle removes a handle value, transferring ownership of the
// handle to the caller.
func (p *Process) RemoveHandle(value uint32) (*object.Handle, error) {
	return p.handles.Remove(value)
}

// CloseHandle removes a handle value and closes the handle, releasing
// its dispatcher reference.
func (p *Process) CloseHandle(value uint32) error {
	handle, err := p.handles.Remove(value)
	if err != nil {
		return err
	}
	handle.Close()
	return nil
}

// DuplicateHandle duplicates the handle at value with the requested
// rights and installs the duplicate, returning its external value. The
// source must carry RightDuplicate and the requested rights must be a
// subset of the source's.
func (p *Process) DuplicateHandle(value uint32, rights object.Rights) (uint32, error) {
	return p.handles.Duplicate(value, rights)
}

// RemoveHandleForTransfer removes the handle at value for transfer to
// another process, verifying RightTransfer. On a rights failure the
// handle is reinstalled at the same value via the table's undo path,
// so the failed attempt leaves no trace.
func (p *Process) RemoveHandleForTransfer(value uint32) (*object.Handle, error) {
	handle, err := p.handles.Remove(value)
	if err != nil {
		return nil, err
	}
	if !handle.HasRights(object.RightTransfer) {
		p.handles.UndoRemove(value, handle)
		return nil, status.BadState("transfer handle: no transfer right")
	}
	return handle, nil
}

// SetExceptionHandler designates the dispatcher that receives this
// process's exceptions, or clears it with nil. Guarded by a dedicated
// mutex, independent of the lifecycle state machine.
func (p *Process) SetExceptionHandler(handler object.Dispatcher) {
	p.exceptionMutex.Lock()
	defer p.exceptionMutex.Unlock()
	if handler != nil {
		handler.Retain()
	}
	if p.exceptionHandler != nil {
		p.exceptionHandler.Release()
	}
	p.exceptionHandler = handler
}

// ExceptionHandler returns the designated exception handler, or nil.
func (p *Process) ExceptionHandler() object.Dispatcher {
	p.exceptionMutex.Lock()
	defer p.exceptionMutex.Unlock()
	return p.exceptionHandler
}
