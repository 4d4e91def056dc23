// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the process and thread dispatchers: the
// lifecycle state machines, the per-process handle table wiring, and
// the process-wide registry.
//
// A Process owns its threads, its handle table, and its address space.
// Threads hold a back-reference to their process but are owned by the
// process's thread list; removing the last thread is what completes
// the Dying→Dead transition. Dead is terminal: the handle table is
// drained exactly once, the address space destroyed exactly once, and
// any transition attempt out of Dead panics.
//
// Lock order, which every operation in this package respects:
//
//	registry mutex  (never held while taking a process lock)
//	process state mutex
//	process thread-list mutex
//
// The handle-table and exception mutexes are independent of the
// ordering above, except that the terminal drain runs while the state
// mutex is held (the table has its own lock and never takes the state
// mutex).
//
// The scheduler and the VM subsystem are out-of-scope collaborators,
// represented by the Scheduler and AddressSpace interfaces. Tests
// inject recording fakes; production callers inject the real thing.
package task
