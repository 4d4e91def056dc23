// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the lifecycle
// packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. They are
// the only place in the test suite where real wall-clock timeouts are
// used; lifecycle tests otherwise run on lib/clock fakes. Termination
// waits (Process.Terminated), exception handler exchanges, and kill
// races are all expressed through these helpers.
//
// [UniqueID] generates monotonically increasing identifiers, used for
// process and thread names that must stay distinguishable in journal
// output across parallel tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
