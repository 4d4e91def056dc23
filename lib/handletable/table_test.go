// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handletable

import (
	"crypto/rand"
	"testing"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
	"github.com/vsrinivas/fuchsia-sub299/lib/status"
)

type testObject struct {
	object.Base
	destroyed bool
}

func newTestObject(t *testing.T) *testObject {
	t.Helper()
	obj := &testObject{}
	obj.InitBase(object.TypeEvent, object.KoidInvalid)
	obj.SetDestructor(func() { obj.destroyed = true })
	t.Cleanup(func() {
		// Drop the creator reference if the test did not.
		if !obj.destroyed {
			obj.Release()
		}
	})
	return obj
}

func testSecret(t *testing.T) Secret {
	t.Helper()
	var secret Secret
	if _, err := rand.Read(secret[:]); err != nil {
		t.Fatalf("drawing secret: %v", err)
	}
	return secret
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return New(object.AllocateKoid(), testSecret(t))
}

func TestAddGetRoundTrip(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	value := table.Add(object.NewHandle(obj, object.RightsBasic|object.RightRead))

	if value == 0 {
		t.Fatal("Add returned the invalid handle value 0")
	}

	dispatcher, rights, err := table.Get(value)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if dispatcher.Koid() != obj.Koid() {
		t.Errorf("dispatcher koid: got %d, want %d", dispatcher.Koid(), obj.Koid())
	}
	if want := object.RightsBasic | object.RightRead; rights != want {
		t.Errorf("rights: got %v, want %v", rights, want)
	}

	table.DrainAndDestroyAll()
}

func TestValuesAreNeverZero(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	for i := 0; i < 256; i++ {
		if value := table.Add(object.NewHandle(obj, object.RightsBasic)); value == 0 {
			t.Fatalf("Add returned 0 at slot %d", i)
		}
	}
	table.DrainAndDestroyAll()
}

func TestGetUnknownValueFails(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	if _, _, err := table.Get(0); !status.Is(err, status.ErrNotFound) {
		t.Errorf("Get(0): got %v, want ErrNotFound", err)
	}
	if _, _, err := table.Get(0xdeadbeef); !status.Is(err, status.ErrNotFound) {
		t.Errorf("Get(garbage): got %v, want ErrNotFound", err)
	}
}

func TestValueNotValidAcrossTables(t *testing.T) {
	t.Parallel()

	secret := testSecret(t)
	tableA := New(object.AllocateKoid(), secret)
	tableB := New(object.AllocateKoid(), secret)

	obj := newTestObject(t)
	value := tableA.Add(object.NewHandle(obj, object.RightsBasic))

	// Same boot secret, different owner: the value must not resolve in
	// the other process's table.
	if _, _, err := tableB.Get(value); !status.Is(err, status.ErrNotFound) {
		t.Errorf("cross-table Get: got %v, want ErrNotFound", err)
	}

	tableA.DrainAndDestroyAll()
}

func TestRemoveTransfersOwnership(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	value := table.Add(object.NewHandle(obj, object.RightsBasic))

	handle, err := table.Remove(value)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if handle.Owner() != object.KoidInvalid {
		t.Errorf("removed handle owner: got %d, want invalid", handle.Owner())
	}
	if _, _, err := table.Get(value); !status.Is(err, status.ErrNotFound) {
		t.Errorf("Get after Remove: got %v, want ErrNotFound", err)
	}
	if _, err := table.Remove(value); !status.Is(err, status.ErrNotFound) {
		t.Errorf("second Remove: got %v, want ErrNotFound", err)
	}

	handle.Close()
}

func TestSlotReuseChangesNothingForNewHandle(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)

	first := table.Add(object.NewHandle(obj, object.RightsBasic))
	removed, err := table.Remove(first)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	removed.Close()

	// The freed slot is reused, so the new handle gets the same
	// external value; the stale value must resolve to the new handle,
	// which is the documented hazard of value reuse, not a table bug.
	second := table.Add(object.NewHandle(obj, object.RightRead))
	if second != first {
		t.Fatalf("freed slot not reused: got %#x, want %#x", second, first)
	}
	_, rights, err := table.Get(second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rights != object.RightRead {
		t.Errorf("rights after reuse: got %v, want %v", rights, object.RightRead)
	}

	table.DrainAndDestroyAll()
}

func TestUndoRemoveReinstallsAtSameValue(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	value := table.Add(object.NewHandle(obj, object.RightsBasic))

	handle, err := table.Remove(value)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	table.UndoRemove(value, handle)

	got, _, err := table.Get(value)
	if err != nil {
		t.Fatalf("Get after UndoRemove: %v", err)
	}
	if got.Koid() != obj.Koid() {
		t.Errorf("dispatcher koid: got %d, want %d", got.Koid(), obj.Koid())
	}

	table.DrainAndDestroyAll()
}

func TestDuplicateInstallsSecondHandle(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	value := table.Add(object.NewHandle(obj, object.RightDuplicate|object.RightRead|object.RightWrite))

	dupValue, err := table.Duplicate(value, object.RightRead)
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dupValue == value {
		t.Fatal("duplicate got the same external value as the source")
	}

	_, rights, err := table.Get(dupValue)
	if err != nil {
		t.Fatalf("Get(duplicate): %v", err)
	}
	if rights != object.RightRead {
		t.Errorf("duplicate rights: got %v, want %v", rights, object.RightRead)
	}
	if got := table.Count(); got != 2 {
		t.Errorf("count: got %d, want 2", got)
	}

	// The duplicate holds its own dispatcher reference: closing the
	// source leaves it fully usable.
	source, err := table.Remove(value)
	if err != nil {
		t.Fatalf("Remove(source): %v", err)
	}
	source.Close()
	if _, _, err := table.Get(dupValue); err != nil {
		t.Errorf("duplicate after source close: %v", err)
	}
	if obj.destroyed {
		t.Error("dispatcher destroyed while the duplicate references it")
	}

	table.DrainAndDestroyAll()
}

func TestDuplicateWideningFails(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	value := table.Add(object.NewHandle(obj, object.RightDuplicate|object.RightRead))

	if _, err := table.Duplicate(value, object.RightRead|object.RightWrite); !status.Is(err, status.ErrInvalidArgs) {
		t.Errorf("widening Duplicate: got %v, want ErrInvalidArgs", err)
	}
	if got := table.Count(); got != 1 {
		t.Errorf("count after failed Duplicate: got %d, want 1", got)
	}

	table.DrainAndDestroyAll()
}

func TestValueFor(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	handle := object.NewHandle(obj, object.RightsBasic)
	value := table.Add(handle)

	got, err := table.ValueFor(handle)
	if err != nil {
		t.Fatalf("ValueFor: %v", err)
	}
	if got != value {
		t.Errorf("ValueFor: got %#x, want %#x", got, value)
	}

	stray := object.NewHandle(obj, object.RightsBasic)
	if _, err := table.ValueFor(stray); !status.Is(err, status.ErrNotFound) {
		t.Errorf("ValueFor(uninstalled): got %v, want ErrNotFound", err)
	}
	stray.Close()

	table.DrainAndDestroyAll()
}

func TestDrainReleasesEveryReference(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)
	for i := 0; i < 5; i++ {
		table.Add(object.NewHandle(obj, object.RightsBasic))
	}
	if got := obj.References(); got != 6 {
		t.Fatalf("references before drain: got %d, want 6", got)
	}

	table.DrainAndDestroyAll()

	if got := table.Count(); got != 0 {
		t.Errorf("count after drain: got %d, want 0", got)
	}
	if got := obj.References(); got != 1 {
		t.Errorf("references after drain: got %d, want 1", got)
	}
}

func TestGetStatsTracksHighWater(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	obj := newTestObject(t)

	values := make([]uint32, 0, 3)
	for i := 0; i < 3; i++ {
		values = append(values, table.Add(object.NewHandle(obj, object.RightsBasic)))
	}
	for _, value := range values[1:] {
		handle, err := table.Remove(value)
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
		handle.Close()
	}

	stats := table.GetStats()
	if stats.Count != 1 {
		t.Errorf("Count: got %d, want 1", stats.Count)
	}
	if stats.Max != 3 {
		t.Errorf("Max: got %d, want 3", stats.Max)
	}

	table.DrainAndDestroyAll()
}

func TestDerivedMasksDifferPerOwner(t *testing.T) {
	t.Parallel()

	secret := testSecret(t)
	maskA := deriveMask(secret, 1024)
	maskB := deriveMask(secret, 1025)
	if maskA == maskB {
		t.Error("distinct owners derived the same mask")
	}

	// Stable for the same inputs.
	if again := deriveMask(secret, 1024); again != maskA {
		t.Errorf("mask not deterministic: %#x then %#x", maskA, again)
	}

	// Distinct secrets change the mask for the same owner.
	other := testSecret(t)
	if deriveMask(other, 1024) == maskA {
		t.Error("distinct secrets derived the same mask")
	}
}
