// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import "sync/atomic"

// Koid is a kernel object id: unique for the lifetime of the system,
// monotonically assigned, never reused.
type Koid uint64

// KoidInvalid is the reserved "no such object" koid. Dispatchers with
// no related object report it from RelatedKoid.
const KoidInvalid Koid = 0

// firstKoid is the first koid handed out. Low ids are reserved so that
// koids are visually distinct from small indices and file descriptors
// in logs and dumps.
const firstKoid = 1024

var koidCounter atomic.Uint64

func init() {
	koidCounter.Store(firstKoid - 1)
}

// AllocateKoid returns the next koid. Safe for concurrent use; the
// counter is a single atomic, so no lock is involved.
func AllocateKoid() Koid {
	return Koid(koidCounter.Add(1))
}
