// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync"
	"time"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
)

// AddressSpace is the VM subsystem's representation of a process's
// memory mappings, owned exclusively by the process that created it.
// The VM internals are out of scope; the lifecycle core only needs
// creation (via Config.NewAddressSpace) and destruction. Destroy is
// assumed reliable: it must not fail in a way that blocks teardown,
// and it is called exactly once, during the Dead transition.
type AddressSpace interface {
	Destroy()
}

// stubAddressSpace is the default AddressSpace when no VM subsystem is
// injected. It tracks destruction so the exactly-once property stays
// checkable even without a real VM layer.
type stubAddressSpace struct {
	mutex     sync.Mutex
	destroyed bool
}

func newStubAddressSpace() AddressSpace { return &stubAddressSpace{} }

func (s *stubAddressSpace) Destroy() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.destroyed {
		panic("task: address space destroyed twice")
	}
	s.destroyed = true
}

// Scheduler is the out-of-scope CPU scheduler boundary. The core calls
// it when a thread's schedulability changes (start, suspend count
// crossing zero, kill of a suspended thread) and treats it as a black
// box satisfying "a runnable thread will eventually be scheduled."
// Implementations must not call back into the task layer.
type Scheduler interface {
	// MakeRunnable marks the thread eligible to run.
	MakeRunnable(thread *Thread)
	// MakeNotRunnable parks the thread.
	MakeNotRunnable(thread *Thread)
}

// nopScheduler is the default Scheduler. The lifecycle core is fully
// functional without a real scheduler; threads are driven by whoever
// calls their checkpoint methods.
type nopScheduler struct{}

func (nopScheduler) MakeRunnable(*Thread)    {}
func (nopScheduler) MakeNotRunnable(*Thread) {}

// ProcessEvent describes one process lifecycle transition, delivered
// to the registry's observer.
type ProcessEvent struct {
	Time    time.Time
	Koid    object.Koid
	ID      uint64
	Name    string
	State   ProcessState
	Retcode int64
}

// ThreadEvent describes one thread lifecycle transition.
type ThreadEvent struct {
	Time        time.Time
	Koid        object.Koid
	ProcessKoid object.Koid
	Name        string
	State       ThreadState
}

// Observer receives lifecycle transitions. Implementations must be
// fast and must not call back into the task layer: events are
// delivered after the relevant locks are dropped, but a slow observer
// still stalls the transition path. The journal package provides a
// persistent implementation.
type Observer interface {
	ProcessTransition(event ProcessEvent)
	ThreadTransition(event ThreadEvent)
}

// nopObserver is the default Observer.
type nopObserver struct{}

func (nopObserver) ProcessTransition(ProcessEvent) {}
func (nopObserver) ThreadTransition(ThreadEvent)   {}
