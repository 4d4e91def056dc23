// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// ExceptionType classifies an exception report.
type ExceptionType uint32

const (
	// ExceptionGeneral is an unclassified architectural exception.
	ExceptionGeneral ExceptionType = iota
	// ExceptionFatalPageFault is an unresolvable page fault.
	ExceptionFatalPageFault
	// ExceptionUnalignedAccess is an unaligned memory access.
	ExceptionUnalignedAccess
	// ExceptionSoftwareBreakpoint is a software breakpoint instruction.
	ExceptionSoftwareBreakpoint
	// ExceptionHardwareBreakpoint is a hardware breakpoint or watchpoint.
	ExceptionHardwareBreakpoint
	// ExceptionPolicyError is a policy violation.
	ExceptionPolicyError
)

func (t ExceptionType) String() string {
	switch t {
	case ExceptionGeneral:
		return "general"
	case ExceptionFatalPageFault:
		return "fatal-page-fault"
	case ExceptionUnalignedAccess:
		return "unaligned-access"
	case ExceptionSoftwareBreakpoint:
		return "sw-breakpoint"
	case ExceptionHardwareBreakpoint:
		return "hw-breakpoint"
	case ExceptionPolicyError:
		return "policy-error"
	}
	return "unknown"
}

// ExceptionReport is the payload delivered to an exception handler.
type ExceptionReport struct {
	Type        ExceptionType
	ThreadKoid  object.Koid
	ProcessKoid object.Koid
	// Context is architecture-specific detail (fault address, policy
	// code). Opaque at this layer.
	Context uint64
}

// Exception is one in-flight exception: a report plus a single-shot
// reply slot. The faulting thread blocks until the handler resolves it
// with MarkHandled or MarkNotHandled; every cancellation path (handler
// channel teardown, thread kill) resolves it as not-handled, so the
// waiter can never be left parked forever.
type Exception struct {
	report ExceptionReport

	resolveOnce sync.Once
	// reply is buffered so resolution never blocks the resolver, even
	// when the waiter has not reached the receive yet.
	reply chan bool
}

func newException(report ExceptionReport) *Exception {
	return &Exception{report: report, reply: make(chan bool, 1)}
}

// Report returns the exception payload.
func (e *Exception) Report() ExceptionReport { return e.report }

// MarkHandled resolves the exception as handled: the faulting thread
// resumes as if the exception never occurred.
func (e *Exception) MarkHandled() { e.resolve(true) }

// MarkNotHandled resolves the exception as not handled: the exception
// continues up the chain (parent handler, ultimately process
// termination). Safe to call after MarkHandled; the first resolution
// wins.
func (e *Exception) MarkNotHandled() { e.resolve(false) }

func (e *Exception) resolve(handled bool) {
	e.resolveOnce.Do(func() { e.reply <- handled })
}

// Exceptionate delivers a thread's exception reports to a registered
// handler channel and tracks in-flight exceptions so teardown can wake
// every blocked waiter with a not-handled outcome.
type Exceptionate struct {
	mutex sync.Mutex
	// channel is the registered handler endpoint, or nil.
	channel chan<- *Exception
	// inFlight tracks delivered-but-unresolved exceptions.
	inFlight map[*Exception]struct{}
	// shutdown is closed by Shutdown; unblocks senders stuck on a
	// full handler channel.
	shutdown     chan struct{}
	shutdownDone bool
}

func newExceptionate() *Exceptionate {
	return &Exceptionate{
		inFlight: make(map[*Exception]struct{}),
		shutdown: make(chan struct{}),
	}
}

// SetChannel registers the handler endpoint. Fails with
// status.ErrBadState when a handler is already registered or the
// exceptionate has shut down. The registrant chooses the channel's
// buffering; an unbuffered channel makes delivery rendezvous with the
// handler's receive.
func (x *Exceptionate) SetChannel(channel chan<- *Exception) error {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	if x.shutdownDone {
		return status.BadState("bind exception channel: exceptionate shut down")
	}
	if x.channel != nil {
		return status.BadState("bind exception channel: already bound")
	}
	x.channel = channel
	return nil
}

// ClearChannel unbinds the handler endpoint and resolves every
// in-flight exception as not handled, so threads waiting on a reply
// from the departing handler continue up the chain instead of hanging.
func (x *Exceptionate) ClearChannel() {
	x.mutex.Lock()
	x.channel = nil
	x.cancelInFlightLocked()
	x.mutex.Unlock()
}

// HasChannel reports whether a handler endpoint is bound.
func (x *Exceptionate) HasChannel() bool {
	x.mutex.Lock()
	defer x.mutex.Unlock()
	return x.channel != nil
}

// Shutdown permanently tears the exceptionate down: unbinds the
// channel, resolves all in-flight exceptions as not handled, and makes
// future sends fail. Idempotent. Called from the owning thread's exit
// path.
func (x *Exceptionate) Shutdown() {
	x.mutex.Lock()
	if x.shutdownDone {
		x.mutex.Unlock()
		return
	}
	x.shutdownDone = true
	x.channel = nil
	close(x.shutdown)
	x.cancelInFlightLocked()
	x.mutex.Unlock()
}

// CancelInFlight resolves every in-flight exception as not handled
// without unbinding the channel. Used when the faulting thread is
// killed while waiting: the waiter must unblock and observe the kill.
func (x *Exceptionate) CancelInFlight() {
	x.mutex.Lock()
	x.cancelInFlightLocked()
	x.mutex.Unlock()
}

func (x *Exceptionate) cancelInFlightLocked() {
	for exception := range x.inFlight {
		exception.MarkNotHandled()
		delete(x.inFlight, exception)
	}
}

// SendException delivers a report to the bound handler and blocks
// until the handler (or a cancellation path) resolves it. Returns the
// handled outcome, status.ErrNotFound when no handler is bound, or
// status.ErrBadState when the exceptionate shuts down mid-delivery.
func (x *Exceptionate) SendException(report ExceptionReport) (bool, error) {
	exception := newException(report)

	x.mutex.Lock()
	if x.shutdownDone {
		x.mutex.Unlock()
		return false, status.BadState("send exception: exceptionate shut down")
	}
	channel := x.channel
	if channel == nil {
		x.mutex.Unlock()
		return false, status.NotFound("send exception: no handler bound")
	}
	x.inFlight[exception] = struct{}{}
	x.mutex.Unlock()

	select {
	case channel <- exception:
	case <-x.shutdown:
		// Never delivered; resolve ourselves so the receive below
		// cannot block.
		exception.MarkNotHandled()
	case handled := <-exception.reply:
		// Resolved by ClearChannel or CancelInFlight before the
		// handler ever received it. Without this case a sender stuck
		// on an unready handler channel would never observe the
		// resolution.
		x.mutex.Lock()
		delete(x.inFlight, exception)
		x.mutex.Unlock()
		return handled, nil
	}

	handled := <-exception.reply

	x.mutex.Lock()
	delete(x.inFlight, exception)
	x.mutex.Unlock()
	return handled, nil
}
