// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

// ProcessState is the process lifecycle state. Transitions are
// monotonic: Initial → Running → Dying → Dead, with the two legal
// shortcuts Initial → Dead (killed before any thread started) and
// Running → Dead (last thread removed with no kill in flight).
// Dead is terminal.
type ProcessState uint32

const (
	// ProcessInitial: created, no thread has started.
	ProcessInitial ProcessState = iota
	// ProcessRunning: the first thread has started.
	ProcessRunning
	// ProcessDying: kill requested or Exit called; threads are being
	// torn down.
	ProcessDying
	// ProcessDead: terminal. Handle table drained, address space
	// destroyed, termination waiters signaled.
	ProcessDead
)

func (s ProcessState) String() string {
	switch s {
	case ProcessInitial:
		return "initial"
	case ProcessRunning:
		return "running"
	case ProcessDying:
		return "dying"
	case ProcessDead:
		return "dead"
	}
	return "unknown"
}

// ThreadState is the thread lifecycle state. Initialized → Running ⇄
// Suspended → Dying → Dead. Dead is terminal, but unlike the process
// machine, operations on a dead thread fail with a bad-state error
// rather than panicking: a thread handle may legitimately outlive the
// thread and still be queried.
type ThreadState uint32

const (
	// ThreadInitialized: created, not yet started.
	ThreadInitialized ThreadState = iota
	// ThreadRunning: schedulable.
	ThreadRunning
	// ThreadSuspended: suspend count is above zero.
	ThreadSuspended
	// ThreadDying: kill observed or exit begun.
	ThreadDying
	// ThreadDead: terminal; removed from the process thread list.
	ThreadDead
)

func (s ThreadState) String() string {
	switch s {
	case ThreadInitialized:
		return "initialized"
	case ThreadRunning:
		return "running"
	case ThreadSuspended:
		return "suspended"
	case ThreadDying:
		return "dying"
	case ThreadDead:
		return "dead"
	}
	return "unknown"
}

// BlockedReason records why a thread is voluntarily parked. Written
// only by the thread itself and read by introspection; advisory, never
// used for synchronization.
type BlockedReason uint32

const (
	// BlockedNone: not blocked.
	BlockedNone BlockedReason = iota
	// BlockedException: waiting for an exception handler's reply.
	BlockedException
	// BlockedSleeping: in a timed sleep.
	BlockedSleeping
	// BlockedFutex: waiting on a futex.
	BlockedFutex
	// BlockedPort: waiting on a port.
	BlockedPort
	// BlockedChannel: waiting on a channel call.
	BlockedChannel
	// BlockedWaitOne: in a wait-one.
	BlockedWaitOne
	// BlockedWaitMany: in a wait-many.
	BlockedWaitMany
	// BlockedInterrupt: waiting on an interrupt object.
	BlockedInterrupt
	// BlockedPager: waiting for a pager response.
	BlockedPager
)

func (r BlockedReason) String() string {
	switch r {
	case BlockedNone:
		return "none"
	case BlockedException:
		return "exception"
	case BlockedSleeping:
		return "sleeping"
	case BlockedFutex:
		return "futex"
	case BlockedPort:
		return "port"
	case BlockedChannel:
		return "channel"
	case BlockedWaitOne:
		return "wait-one"
	case BlockedWaitMany:
		return "wait-many"
	case BlockedInterrupt:
		return "interrupt"
	case BlockedPager:
		return "pager"
	}
	return "unknown"
}
