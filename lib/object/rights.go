// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import "strings"

// Rights is the per-handle capability bitmask. Rights are attached to
// a Handle, not to the underlying dispatcher: two handles to the same
// object may carry different rights.
type Rights uint32

const (
	// RightDuplicate allows duplicating the handle.
	RightDuplicate Rights = 1 << iota
	// RightTransfer allows sending the handle over IPC.
	RightTransfer
	// RightRead allows reading from the object.
	RightRead
	// RightWrite allows writing to the object.
	RightWrite
	// RightExecute allows mapping the object executable.
	RightExecute
	// RightSignal allows asserting user signals on the object.
	RightSignal
	// RightWait allows waiting on the object's signals.
	RightWait
	// RightInspect allows reading object metadata and stats.
	RightInspect
	// RightManageProcess allows process lifecycle control (start,
	// kill, thread creation).
	RightManageProcess
	// RightManageThread allows thread lifecycle control (suspend,
	// resume, kill).
	RightManageThread
	// RightDestroy allows destroying the object.
	RightDestroy
)

// RightsNone is the empty rights set.
const RightsNone Rights = 0

// RightsBasic is the common baseline carried by most new handles.
const RightsBasic = RightDuplicate | RightTransfer | RightWait | RightInspect

// DefaultProcessRights is the rights set on the handle returned by
// process creation.
const DefaultProcessRights = RightsBasic | RightRead | RightWrite |
	RightSignal | RightManageProcess | RightManageThread | RightDestroy

// DefaultThreadRights is the rights set on the handle returned by
// thread creation.
const DefaultThreadRights = RightsBasic | RightRead | RightWrite |
	RightSignal | RightManageThread | RightDestroy

// Has reports whether every bit in want is present in r.
func (r Rights) Has(want Rights) bool {
	return r&want == want
}

var rightNames = []struct {
	bit  Rights
	name string
}{
	{RightDuplicate, "duplicate"},
	{RightTransfer, "transfer"},
	{RightRead, "read"},
	{RightWrite, "write"},
	{RightExecute, "execute"},
	{RightSignal, "signal"},
	{RightWait, "wait"},
	{RightInspect, "inspect"},
	{RightManageProcess, "manage-process"},
	{RightManageThread, "manage-thread"},
	{RightDestroy, "destroy"},
}

// String returns a "+"-joined list of right names, or "none".
func (r Rights) String() string {
	if r == RightsNone {
		return "none"
	}
	var parts []string
	for _, entry := range rightNames {
		if r&entry.bit != 0 {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "+")
}
