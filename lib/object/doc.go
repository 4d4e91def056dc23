// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package object defines the base kernel-object abstractions shared by
// every capability target: koids (kernel object ids), object type
// tags, handle rights, the reference-counted Dispatcher interface, and
// the Handle that pairs a dispatcher reference with rights under a
// single owning process.
//
// Nothing in this package knows about processes or threads; the task
// layer builds on these primitives. Lifetime is explicit: a dispatcher
// is destroyed exactly once, when its last retained reference is
// released, regardless of what the garbage collector would do. This
// keeps teardown ordering (handle table drained, then address space
// destroyed, then object freed) observable and testable.
package object
