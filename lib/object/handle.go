// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"fmt"

	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// Handle pairs a retained dispatcher reference with a rights mask
// under a single owning process. A handle belongs to at most one
// process table at a time; its externally visible integer value is
// assigned by that table, not stored here.
//
// A Handle is not safe for concurrent mutation: ownership transfers
// (table insertion, removal, close) are serialized by the owning
// table's lock, and a removed handle belongs exclusively to the
// remover.
type Handle struct {
	dispatcher Dispatcher
	rights     Rights

	// owner is the koid of the process whose table currently holds
	// this handle, or KoidInvalid while the handle is in transit
	// (freshly created, or removed for transfer).
	owner Koid
}

// NewHandle creates a handle referencing dispatcher with the given
// rights. The handle retains its own reference to the dispatcher; the
// caller's reference is untouched.
func NewHandle(dispatcher Dispatcher, rights Rights) *Handle {
	dispatcher.Retain()
	return &Handle{dispatcher: dispatcher, rights: rights}
}

// Dispatcher returns the referenced dispatcher. The reference remains
// owned by the handle; callers that store it must Retain it.
func (h *Handle) Dispatcher() Dispatcher { return h.dispatcher }

// Rights returns the handle's rights mask.
func (h *Handle) Rights() Rights { return h.rights }

// HasRights reports whether the handle carries every right in want.
func (h *Handle) HasRights(want Rights) bool { return h.rights.Has(want) }

// Owner returns the koid of the owning process, or KoidInvalid when
// the handle is not installed in any table.
func (h *Handle) Owner() Koid { return h.owner }

// SetOwner stamps the owning process koid. Called by the handle table
// on insertion (with the table owner's koid) and removal (with
// KoidInvalid). Not for general use.
func (h *Handle) SetOwner(owner Koid) { h.owner = owner }

// Dup creates a new handle to the same dispatcher with the requested
// rights. The source must carry RightDuplicate, and the requested
// rights must be a subset of the source's rights (pass h.Rights() to
// keep them all). The new handle holds its own dispatcher reference
// and is not yet owned by any table.
func (h *Handle) Dup(rights Rights) (*Handle, error) {
	if h.dispatcher == nil {
		panic("object: Dup of closed handle")
	}
	if !h.HasRights(RightDuplicate) {
		return nil, status.BadState("duplicate handle: no duplicate right")
	}
	if !h.rights.Has(rights) {
		return nil, status.InvalidArgs(fmt.Sprintf("duplicate handle: rights %v exceed source %v", rights, h.rights))
	}
	return NewHandle(h.dispatcher, rights), nil
}

// Close releases the handle's dispatcher reference. Must be called
// exactly once, by whoever owns the handle at the time (the table
// during drain, or the remover after a successful Remove). Closing
// twice is an ownership bug and panics.
func (h *Handle) Close() {
	if h.dispatcher == nil {
		panic("object: double close of handle")
	}
	h.dispatcher.Release()
	h.dispatcher = nil
}
