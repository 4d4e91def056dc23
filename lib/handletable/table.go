// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handletable

import (
	"fmt"
	"sync"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// Table maps external handle values to handles for one owning process.
// Safe for concurrent use; a single mutex serializes every operation.
type Table struct {
	mutex sync.Mutex

	// owner is the koid of the process this table belongs to. Stamped
	// onto every installed handle and checked on every lookup.
	owner object.Koid

	// mask is the per-process XOR obfuscation mask. See package doc.
	mask uint32

	// slots holds installed handles, indexed by slot. A nil entry is a
	// free slot awaiting reuse via freeSlots.
	slots []*object.Handle

	// freeSlots lists indices of nil entries in slots, most recently
	// freed last.
	freeSlots []uint32

	// installed is the number of live handles (non-nil slots).
	installed int

	// maxInstalled is the high-water mark of installed. Diagnostic.
	maxInstalled int
}

// Stats is a point-in-time summary of a table, for introspection.
type Stats struct {
	// Count is the number of live handles.
	Count int
	// Max is the highest live-handle count the table has seen.
	Max int
}

// New creates an empty table for the process with the given koid. The
// secret seeds the value-obfuscation mask; every table created from
// the same secret still gets a distinct mask because the owner koid is
// part of the derivation.
func New(owner object.Koid, secret Secret) *Table {
	return &Table{
		owner: owner,
		mask:  deriveMask(secret, owner),
	}
}

// Add installs a handle and returns its external value. The table
// takes ownership and stamps the handle with the owning process koid.
// Insertion is O(1) amortized and cannot fail: the caller is expected
// to have validated the handle (live dispatcher, rights already
// reduced) before installing it.
func (t *Table) Add(handle *object.Handle) uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.addLocked(handle)
}

func (t *Table) addLocked(handle *object.Handle) uint32 {
	handle.SetOwner(t.owner)

	var index uint32
	if n := len(t.freeSlots); n > 0 {
		index = t.freeSlots[n-1]
		t.freeSlots = t.freeSlots[:n-1]
		t.slots[index] = handle
	} else {
		index = uint32(len(t.slots))
		t.slots = append(t.slots, handle)
	}

	t.installed++
	if t.installed > t.maxInstalled {
		t.maxInstalled = t.installed
	}
	return t.valueForIndex(index)
}

// valueForIndex maps a slot index to its external value. The +1
// reserves 0 as invalid; the mask scrambles the result.
func (t *Table) valueForIndex(index uint32) uint32 {
	return (index + 1) ^ t.mask
}

// indexForValue reverses valueForIndex. Returns false when the value
// cannot correspond to any slot ever allocated by this table.
func (t *Table) indexForValue(value uint32) (uint32, bool) {
	unmasked := value ^ t.mask
	if unmasked == 0 {
		return 0, false
	}
	index := unmasked - 1
	if index >= uint32(len(t.slots)) {
		return 0, false
	}
	return index, true
}

// lookupLocked resolves an external value to its slot index and
// handle, verifying the owner stamp. Callers hold t.mutex.
func (t *Table) lookupLocked(value uint32) (uint32, *object.Handle, error) {
	index, ok := t.indexForValue(value)
	if !ok {
		return 0, nil, status.NotFound(fmt.Sprintf("handle value %#x", value))
	}
	handle := t.slots[index]
	if handle == nil || handle.Owner() != t.owner {
		return 0, nil, status.NotFound(fmt.Sprintf("handle value %#x", value))
	}
	return index, handle, nil
}

// Get resolves an external value to its dispatcher and rights without
// disturbing the table. Fails with status.ErrNotFound when the value
// does not map to a handle owned by this process.
func (t *Table) Get(value uint32) (object.Dispatcher, object.Rights, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	_, handle, err := t.lookupLocked(value)
	if err != nil {
		return nil, object.RightsNone, err
	}
	return handle.Dispatcher(), handle.Rights(), nil
}

// Remove removes the handle for an external value and transfers
// ownership to the caller, who must eventually Close it (or hand it
// back with UndoRemove). A second Remove of the same value fails with
// status.ErrNotFound; concurrent removers never both succeed.
func (t *Table) Remove(value uint32) (*object.Handle, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.removeLocked(value)
}

// removeLocked is Remove for callers already holding t.mutex (the
// drain path). Split out so teardown never re-enters the lock.
func (t *Table) removeLocked(value uint32) (*object.Handle, error) {
	index, handle, err := t.lookupLocked(value)
	if err != nil {
		return nil, err
	}

	t.slots[index] = nil
	t.freeSlots = append(t.freeSlots, index)
	t.installed--
	handle.SetOwner(object.KoidInvalid)
	return handle, nil
}

// UndoRemove reinstalls a handle just removed with Remove, at the same
// external value. This exists for peek-then-maybe-remove protocols
// (remove, validate, and put back on validation failure) so they do
// not need a second full table mutation. It is a narrow escape hatch:
// the caller must guarantee no intervening Add reused the slot —
// reinstalling over an occupied slot panics.
func (t *Table) UndoRemove(value uint32, handle *object.Handle) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	index, ok := t.indexForValue(value)
	if !ok {
		panic(fmt.Sprintf("handletable: UndoRemove of foreign value %#x", value))
	}
	if t.slots[index] != nil {
		panic(fmt.Sprintf("handletable: UndoRemove into occupied slot %d", index))
	}

	// Reclaim the specific slot from the free list.
	for i, free := range t.freeSlots {
		if free == index {
			t.freeSlots = append(t.freeSlots[:i], t.freeSlots[i+1:]...)
			break
		}
	}

	handle.SetOwner(t.owner)
	t.slots[index] = handle
	t.installed++
}

// Duplicate duplicates the handle at value with the requested rights
// and installs the duplicate, returning its external value. Runs under
// a single lock acquisition so the source cannot be removed (and its
// dispatcher released) between the lookup and the install. The source
// must carry RightDuplicate, and the requested rights must be a subset
// of the source's.
func (t *Table) Duplicate(value uint32, rights object.Rights) (uint32, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	_, handle, err := t.lookupLocked(value)
	if err != nil {
		return 0, err
	}
	duplicate, err := handle.Dup(rights)
	if err != nil {
		return 0, err
	}
	return t.addLocked(duplicate), nil
}

// ValueFor returns the external value of an installed handle, or
// status.ErrNotFound when the handle is not in this table. O(n); used
// by introspection and transfer paths, not hot paths.
func (t *Table) ValueFor(handle *object.Handle) (uint32, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for index, installed := range t.slots {
		if installed == handle {
			return t.valueForIndex(uint32(index)), nil
		}
	}
	return 0, status.NotFound("handle not in table")
}

// DrainAndDestroyAll removes and closes every handle in the table,
// releasing each dispatcher reference. Invoked during the owning
// process's terminal transition, under a single lock acquisition for
// the whole drain. After it returns the table is empty and reusable
// only for lookups that will all fail.
func (t *Table) DrainAndDestroyAll() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for index, handle := range t.slots {
		if handle == nil {
			continue
		}
		t.slots[index] = nil
		handle.SetOwner(object.KoidInvalid)
		handle.Close()
	}
	t.slots = nil
	t.freeSlots = nil
	t.installed = 0
}

// Count returns the number of live handles.
func (t *Table) Count() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.installed
}

// GetStats returns a point-in-time summary.
func (t *Table) GetStats() Stats {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return Stats{Count: t.installed, Max: t.maxInstalled}
}
