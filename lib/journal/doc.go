// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists lifecycle transitions to SQLite. It
// implements the task layer's Observer interface: every process and
// thread state change becomes one append-only row, queryable by koid
// after the objects themselves are gone.
//
// The journal is strictly an observer. The lifecycle core never
// depends on it, cannot block on its errors (write failures are
// logged and dropped), and functions identically without it.
package journal
