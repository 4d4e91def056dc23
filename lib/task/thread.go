// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// Thread is the thread dispatcher: one schedulable unit of execution
// owned by a process's thread list. It carries the thread lifecycle
// state machine, the balanced suspend/resume counter, the advisory
// blocked-reason, and the exception delivery endpoint.
//
// The thread object itself does not execute anything: the scheduler
// boundary is out of scope, so an execution context (in this codebase,
// typically a goroutine owned by the embedding program) drives the
// thread by calling Start, observing KillRequested at its checkpoints,
// and calling Exit as its final act.
//
// All methods are safe for concurrent use.
type Thread struct {
	object.Base

	// process is the owning process. A retained back-reference: the
	// thread cannot outlive its process's bookkeeping, but ownership
	// of the thread object belongs to the process's thread list, not
	// the other way around.
	process *Process
	name    string

	// mutex guards every field below. Never held while calling into
	// the process (removeThread takes process locks) or the scheduler.
	mutex         sync.Mutex
	state         ThreadState
	suspendCount  int
	killRequested bool
	entry         EntryState

	// blockedReason is advisory: written only by the thread's own
	// execution context, read by introspection. Never used for
	// synchronization.
	blockedReason BlockedReason

	// blockingFutexID is the futex the thread is waiting on, or 0.
	blockingFutexID uint64

	exceptionate *Exceptionate
}

// ThreadInfo is a point-in-time introspection snapshot of a thread.
type ThreadInfo struct {
	Koid            object.Koid
	ProcessKoid     object.Koid
	Name            string
	State           ThreadState
	SuspendCount    int
	BlockedReason   BlockedReason
	BlockingFutexID uint64
}

func newThread(process *Process, name string) *Thread {
	process.Retain()
	thread := &Thread{
		process:      process,
		name:         name,
		state:        ThreadInitialized,
		exceptionate: newExceptionate(),
	}
	thread.InitBase(object.TypeThread, process.Koid())
	thread.SetDestructor(thread.destroy)
	return thread
}

// destroy runs when the last reference is released: after removal from
// the thread list (the list holds a reference, so destruction cannot
// precede removal) and after every handle to the thread is closed.
func (t *Thread) destroy() {
	if t.state != ThreadDead && t.state != ThreadInitialized {
		panic(fmt.Sprintf("task: thread %q destroyed in state %s", t.name, t.state))
	}
	t.exceptionate.Shutdown()
	t.process.Release()
}

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Process returns the owning process.
func (t *Thread) Process() *Process { return t.process }

// State returns the current lifecycle state.
func (t *Thread) State() ThreadState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Exceptionate returns the thread's exception delivery endpoint.
func (t *Thread) Exceptionate() *Exceptionate { return t.exceptionate }

// Start moves the thread out of Initialized with the given entry
// state. One-shot: starting an already-started (or killed) thread
// fails with status.ErrBadState. If suspends were issued before Start,
// the thread begins life Suspended instead of Running.
//
// isInitialThread distinguishes the process's first thread, started by
// Process.Start while the process transitions to Running; any other
// thread may only start once the process is Running.
func (t *Thread) Start(entry EntryState, isInitialThread bool) error {
	if !isInitialThread && t.process.State() != ProcessRunning {
		return status.BadState(fmt.Sprintf("start thread: process %s", t.process.State()))
	}

	t.mutex.Lock()
	if t.state != ThreadInitialized {
		defer t.mutex.Unlock()
		return status.BadState(fmt.Sprintf("start thread: state %s", t.state))
	}
	t.entry = entry
	runnable := t.suspendCount == 0
	if runnable {
		t.state = ThreadRunning
	} else {
		t.state = ThreadSuspended
	}
	newState := t.state
	t.mutex.Unlock()

	if runnable {
		t.process.registry.scheduler.MakeRunnable(t)
	}
	t.notifyTransition(newState)
	return nil
}

// EntryState returns the register state captured at Start time. Zero
// before the thread has started.
func (t *Thread) EntryState() EntryState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.entry
}

// Suspend increments the suspend count, parking the thread when the
// count rises from zero. Fails with status.ErrBadState on a Dying or
// Dead thread, without incrementing. Suspending a not-yet-started
// thread is legal: it will begin life suspended.
func (t *Thread) Suspend() error {
	t.mutex.Lock()
	if t.state == ThreadDying || t.state == ThreadDead {
		defer t.mutex.Unlock()
		return status.BadState(fmt.Sprintf("suspend thread: state %s", t.state))
	}
	t.suspendCount++
	parked := t.suspendCount == 1 && t.state == ThreadRunning
	if parked {
		t.state = ThreadSuspended
	}
	t.mutex.Unlock()

	if parked {
		t.process.registry.scheduler.MakeNotRunnable(t)
		t.notifyTransition(ThreadSuspended)
	}
	return nil
}

// Resume decrements the suspend count; the thread becomes schedulable
// again only when the count returns to zero. Resuming with no
// outstanding suspend is a caller imbalance, reported as
// status.ErrBadState; the count saturates at zero rather than going
// negative.
func (t *Thread) Resume() error {
	t.mutex.Lock()
	if t.suspendCount == 0 {
		defer t.mutex.Unlock()
		return status.BadState("resume thread: not suspended")
	}
	t.suspendCount--
	resumed := t.suspendCount == 0 && t.state == ThreadSuspended
	if resumed {
		t.state = ThreadRunning
	}
	t.mutex.Unlock()

	if resumed {
		t.process.registry.scheduler.MakeRunnable(t)
		t.notifyTransition(ThreadRunning)
	}
	return nil
}

// SuspendCount returns the outstanding suspend count.
func (t *Thread) SuspendCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.suspendCount
}

// Kill marks the thread for termination. Idempotent.
//
// A started thread observes the request at its next checkpoint
// (KillRequested) and runs its own exit path; a suspended thread is
// forced runnable (suspend count discarded) so it can reach that
// checkpoint, and a thread blocked waiting for an exception reply is
// unblocked with a not-handled outcome. A never-started thread has no
// execution context to run an exit path, so Kill completes the
// transition to Dead itself and removes the thread from the process.
func (t *Thread) Kill() {
	t.mutex.Lock()
	if t.state == ThreadDying || t.state == ThreadDead {
		t.mutex.Unlock()
		return
	}
	t.killRequested = true

	switch t.state {
	case ThreadInitialized:
		t.state = ThreadDead
		t.mutex.Unlock()
		t.exceptionate.Shutdown()
		t.notifyTransition(ThreadDead)
		t.process.removeThread(t)
		return
	case ThreadSuspended:
		t.suspendCount = 0
		t.state = ThreadRunning
		t.mutex.Unlock()
		t.process.registry.scheduler.MakeRunnable(t)
	default:
		t.mutex.Unlock()
	}

	// Unblock an exception wait so the thread can observe the kill.
	t.exceptionate.CancelInFlight()
}

// KillRequested reports whether a kill is pending. Execution contexts
// call this at their checkpoints (syscall return, wait wakeup) and run
// Exit when it returns true.
func (t *Thread) KillRequested() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.killRequested
}

// Exit is the thread's own exit path: the final act of the thread's
// execution context. It transitions through Dying to Dead, tears down
// the exceptionate, and removes the thread from the owning process —
// which, if this was the last thread, completes the process's
// transition to Dead. Exit does not return an error; calling it on an
// already-dead thread is a harmless no-op so a kill racing a natural
// exit resolves cleanly.
func (t *Thread) Exit() {
	t.mutex.Lock()
	if t.state == ThreadDead {
		t.mutex.Unlock()
		return
	}
	if t.state == ThreadInitialized {
		t.mutex.Unlock()
		panic(fmt.Sprintf("task: Exit on never-started thread %q", t.name))
	}
	t.state = ThreadDying
	t.mutex.Unlock()
	t.notifyTransition(ThreadDying)

	t.exceptionate.Shutdown()

	t.mutex.Lock()
	t.state = ThreadDead
	t.mutex.Unlock()
	t.notifyTransition(ThreadDead)

	t.process.removeThread(t)
}

// HandleException delivers an exception report on behalf of this
// thread and blocks until a handler resolves it. The blocked reason is
// Exception for the duration. Returns true when a handler marked the
// exception handled; false when it was not handled, no handler is
// bound, or the wait was cancelled by teardown or kill.
func (t *Thread) HandleException(exceptionType ExceptionType, context uint64) bool {
	defer t.Block(BlockedException).Restore()

	handled, err := t.exceptionate.SendException(ExceptionReport{
		Type:        exceptionType,
		ThreadKoid:  t.Koid(),
		ProcessKoid: t.process.Koid(),
		Context:     context,
	})
	if err != nil {
		return false
	}
	return handled
}

// Sleep parks the thread's execution context for the duration, with
// the blocked reason set to Sleeping. Uses the registry clock, so
// tests with a fake clock control it deterministically.
func (t *Thread) Sleep(duration time.Duration) {
	defer t.Block(BlockedSleeping).Restore()
	t.process.registry.clock.Sleep(duration)
}

// AutoBlocked restores a thread's previous blocked reason when the
// blocking call exits, however it exits. Obtain one from Block and
// defer its Restore:
//
//	defer t.Block(task.BlockedFutex).Restore()
type AutoBlocked struct {
	thread   *Thread
	previous BlockedReason
}

// Block records the thread's current blocked reason, sets the new one,
// and returns the restorer. Called by the thread's own execution
// context on entry to a blocking region.
func (t *Thread) Block(reason BlockedReason) *AutoBlocked {
	t.mutex.Lock()
	previous := t.blockedReason
	t.blockedReason = reason
	t.mutex.Unlock()
	return &AutoBlocked{thread: t, previous: previous}
}

// Restore puts the previous blocked reason back.
func (a *AutoBlocked) Restore() {
	a.thread.mutex.Lock()
	a.thread.blockedReason = a.previous
	a.thread.mutex.Unlock()
}

// CurrentBlockedReason returns the advisory blocked reason.
func (t *Thread) CurrentBlockedReason() BlockedReason {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.blockedReason
}

// SetBlockingFutex records the futex the thread is about to wait on.
// Pass 0 when the wait completes. Advisory, like the blocked reason.
func (t *Thread) SetBlockingFutex(id uint64) {
	t.mutex.Lock()
	t.blockingFutexID = id
	t.mutex.Unlock()
}

// BlockingFutex returns the futex id the thread is waiting on, or 0.
func (t *Thread) BlockingFutex() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.blockingFutexID
}

// GetInfo returns an introspection snapshot.
func (t *Thread) GetInfo() ThreadInfo {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return ThreadInfo{
		Koid:            t.Koid(),
		ProcessKoid:     t.process.Koid(),
		Name:            t.name,
		State:           t.state,
		SuspendCount:    t.suspendCount,
		BlockedReason:   t.blockedReason,
		BlockingFutexID: t.blockingFutexID,
	}
}

// notifyTransition reports a state change to the registry's observer.
// Called with no locks held.
func (t *Thread) notifyTransition(state ThreadState) {
	t.process.registry.observer.ThreadTransition(ThreadEvent{
		Time:        t.process.registry.clock.Now(),
		Koid:        t.Koid(),
		ProcessKoid: t.process.Koid(),
		Name:        t.name,
		State:       state,
	})
}
