// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"sync"
	"testing"

	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

// testObject is a minimal dispatcher for exercising Base and Handle.
type testObject struct {
	Base
	destroyed int
}

func newTestObject(t *testing.T) *testObject {
	t.Helper()
	obj := &testObject{}
	obj.InitBase(TypeEvent, KoidInvalid)
	obj.SetDestructor(func() { obj.destroyed++ })
	return obj
}

func TestKoidsAreUniqueAndMonotonic(t *testing.T) {
	t.Parallel()

	const n = 64
	seen := make(map[Koid]bool, n)
	var previous Koid
	for i := 0; i < n; i++ {
		obj := newTestObject(t)
		koid := obj.Koid()
		if koid == KoidInvalid {
			t.Fatal("allocated koid is the invalid koid")
		}
		if seen[koid] {
			t.Fatalf("koid %d allocated twice", koid)
		}
		if koid <= previous {
			t.Fatalf("koid %d not greater than previous %d", koid, previous)
		}
		seen[koid] = true
		previous = koid
	}
}

func TestKoidsAreUniqueAcrossGoroutines(t *testing.T) {
	t.Parallel()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	results := make(chan Koid, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- AllocateKoid()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[Koid]bool, workers*perWorker)
	for koid := range results {
		if seen[koid] {
			t.Fatalf("koid %d allocated twice", koid)
		}
		seen[koid] = true
	}
}

func TestDoubleInitBasePanics(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	defer func() {
		if recover() == nil {
			t.Fatal("second InitBase did not panic")
		}
	}()
	obj.InitBase(TypeEvent, KoidInvalid)
}

func TestDestructorRunsOnLastRelease(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	obj.Retain()
	obj.Retain()

	obj.Release()
	obj.Release()
	if obj.destroyed != 0 {
		t.Fatalf("destructor ran with references outstanding: %d runs", obj.destroyed)
	}

	obj.Release()
	if obj.destroyed != 1 {
		t.Fatalf("destructor runs: got %d, want 1", obj.destroyed)
	}
}

func TestReleaseUnderflowPanics(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	obj.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("release past zero did not panic")
		}
	}()
	obj.Release()
}

func TestRetainAfterDestroyPanics(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	obj.Release()

	defer func() {
		if recover() == nil {
			t.Fatal("retain of destroyed object did not panic")
		}
	}()
	obj.Retain()
}

func TestHandleRetainsDispatcher(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	handle := NewHandle(obj, RightsBasic)
	if got := obj.References(); got != 2 {
		t.Fatalf("references after NewHandle: got %d, want 2", got)
	}

	// Dropping the creator reference must not destroy the object while
	// the handle lives.
	obj.Release()
	if obj.destroyed != 0 {
		t.Fatal("object destroyed while a handle references it")
	}

	handle.Close()
	if obj.destroyed != 1 {
		t.Fatal("object not destroyed after last handle closed")
	}
}

func TestHandleDoubleClosePanics(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	handle := NewHandle(obj, RightsBasic)
	handle.Close()

	defer func() {
		if recover() == nil {
			t.Fatal("double close did not panic")
		}
	}()
	handle.Close()
}

func TestDupRequiresDuplicateRight(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	handle := NewHandle(obj, RightRead|RightWrite)

	_, err := handle.Dup(RightRead)
	if !status.Is(err, status.ErrBadState) {
		t.Fatalf("Dup without duplicate right: got %v, want ErrBadState", err)
	}
}

func TestDupRejectsRightsWidening(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	handle := NewHandle(obj, RightDuplicate|RightRead)

	_, err := handle.Dup(RightRead | RightWrite)
	if !status.Is(err, status.ErrInvalidArgs) {
		t.Fatalf("Dup widening rights: got %v, want ErrInvalidArgs", err)
	}
}

func TestDupNarrowsRights(t *testing.T) {
	t.Parallel()

	obj := newTestObject(t)
	handle := NewHandle(obj, RightDuplicate|RightRead|RightWrite)

	dup, err := handle.Dup(RightRead)
	if err != nil {
		t.Fatalf("Dup: %v", err)
	}
	if got := dup.Rights(); got != RightRead {
		t.Fatalf("duplicate rights: got %v, want %v", got, RightRead)
	}
	if got := obj.References(); got != 3 {
		t.Fatalf("references after Dup: got %d, want 3", got)
	}

	// The duplicate cannot re-widen: it lost RightDuplicate.
	if _, err := dup.Dup(RightRead); !status.Is(err, status.ErrBadState) {
		t.Fatalf("Dup of non-duplicable duplicate: got %v, want ErrBadState", err)
	}

	dup.Close()
	handle.Close()
}

func TestRightsHas(t *testing.T) {
	t.Parallel()

	rights := RightRead | RightWrite
	if !rights.Has(RightRead) {
		t.Error("Has(RightRead): got false, want true")
	}
	if !rights.Has(RightRead | RightWrite) {
		t.Error("Has(read|write): got false, want true")
	}
	if rights.Has(RightRead | RightExecute) {
		t.Error("Has(read|execute): got true, want false")
	}
	if !rights.Has(RightsNone) {
		t.Error("Has(none): got false, want true")
	}
}
