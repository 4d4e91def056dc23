// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"fmt"
	"sync/atomic"
)

// Dispatcher is the base interface of every kernel object reachable
// through a handle. It provides identity (koid), a type tag, an
// optional related-object koid (e.g. the owning process of a thread),
// and explicit reference counting.
//
// Reference semantics: a dispatcher starts with one reference held by
// its creator. Every holder that stores the reference beyond the
// current call must Retain, and must Release exactly once when done.
// The destructor registered with Base.SetDestructor runs exactly once,
// on the Release that drops the count to zero.
type Dispatcher interface {
	// Koid returns the object's kernel object id. Immutable and
	// globally unique for the lifetime of the system.
	Koid() Koid

	// RelatedKoid returns the koid of the logically paired object, or
	// KoidInvalid when none exists.
	RelatedKoid() Koid

	// Type returns the object's type tag.
	Type() Type

	// Retain increments the reference count.
	Retain()

	// Release decrements the reference count, destroying the object
	// when it reaches zero.
	Release()
}

// Base is the common dispatcher state. Concrete objects embed it (by
// value) and call InitBase once during construction, before the object
// is shared with any other goroutine.
type Base struct {
	koid       Koid
	related    Koid
	objectType Type

	// references counts retained references. Starts at 1 (the
	// creator's reference).
	references atomic.Int64

	// destructor runs exactly once when references reaches zero. May
	// be nil for objects with no teardown work.
	destructor func()
}

// InitBase assigns a fresh koid and sets the type tag and related
// koid. Must be called exactly once, before the object escapes the
// constructing goroutine.
func (b *Base) InitBase(objectType Type, related Koid) {
	if b.koid != KoidInvalid {
		panic("object: InitBase called twice")
	}
	b.koid = AllocateKoid()
	b.objectType = objectType
	b.related = related
	b.references.Store(1)
}

// SetDestructor registers the function to run when the last reference
// is released. Must be called during construction, before the object
// is shared.
func (b *Base) SetDestructor(destructor func()) {
	b.destructor = destructor
}

// Koid implements Dispatcher.
func (b *Base) Koid() Koid { return b.koid }

// RelatedKoid implements Dispatcher.
func (b *Base) RelatedKoid() Koid { return b.related }

// Type implements Dispatcher.
func (b *Base) Type() Type { return b.objectType }

// Retain implements Dispatcher. Retaining an object whose count has
// already reached zero is a use-after-destroy bug and panics.
func (b *Base) Retain() {
	if b.references.Add(1) <= 1 {
		panic(fmt.Sprintf("object: retain of destroyed %s koid %d", b.objectType, b.koid))
	}
}

// Release implements Dispatcher. Releasing more times than retained is
// a refcount underflow bug and panics.
func (b *Base) Release() {
	remaining := b.references.Add(-1)
	if remaining < 0 {
		panic(fmt.Sprintf("object: release underflow on %s koid %d", b.objectType, b.koid))
	}
	if remaining == 0 && b.destructor != nil {
		b.destructor()
	}
}

// References returns the current reference count. Diagnostic only; the
// value may be stale by the time the caller looks at it.
func (b *Base) References() int64 {
	return b.references.Load()
}
