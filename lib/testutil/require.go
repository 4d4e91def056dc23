// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// failer is the slice of testing.TB these helpers need. Tests pass
// *testing.T; the indirection keeps the package free of a testing
// import and usable from benchmarks.
type failer interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch, failing the test if nothing
// arrives within timeout. Lifecycle tests use it wherever a goroutine
// stands in for a thread's execution context: a wait that never
// resolves (a parked exception, a kill that never lands) fails loudly
// instead of hanging the run. The timeout uses the real clock on
// purpose; it is a hang backstop, not simulated time.
//
//	exc := testutil.RequireReceive(t, ch, 5*time.Second, "waiting for exception")
func RequireReceive[T any](t failer, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without sending a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireSend sends v on ch, failing the test if no receiver turns up
// within timeout.
//
//	testutil.RequireSend(t, ch, value, 5*time.Second, "handing exception to handler")
func RequireSend[T any](t failer, ch chan<- T, v T, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case ch <- v:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
}

// RequireClosed waits for ch to be closed (or to yield a value) within
// timeout. Made for close-to-signal channels like Process.Terminated.
//
//	testutil.RequireClosed(t, process.Terminated(), 5*time.Second, "process dead")
func RequireClosed(t failer, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatalf("timed out after %v waiting for channel close: %s", timeout, formatMessage(msgAndArgs))
	}
}

// formatMessage renders the optional trailing arguments: a bare
// string, a format string plus operands, or any single value.
func formatMessage(msgAndArgs []any) string {
	if len(msgAndArgs) == 0 {
		return "(no message)"
	}
	if len(msgAndArgs) == 1 {
		if s, ok := msgAndArgs[0].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("%v", msgAndArgs)
}
