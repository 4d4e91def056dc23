// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClockNow(t *testing.T) {
	t.Parallel()
	start := time.Unix(1000, 0)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Errorf("Now: got %v, want %v", got, start)
	}

	fake.Advance(3 * time.Second)
	if got := fake.Now(); !got.Equal(start.Add(3 * time.Second)) {
		t.Errorf("Now after advance: got %v, want %v", got, start.Add(3*time.Second))
	}
}

func TestFakeClockAfterFiresOnAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Unix(1000, 0))

	ch := fake.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if want := time.Unix(1005, 0); !fired.Equal(want) {
			t.Errorf("fire time: got %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeClockAfterNonPositiveFiresImmediately(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Unix(1000, 0))

	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
	if got := fake.PendingCount(); got != 0 {
		t.Errorf("pending waiters: got %d, want 0", got)
	}
}

func TestFakeClockSleepBlocksUntilAdvance(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Unix(1000, 0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		fake.Sleep(10 * time.Second)
	}()

	fake.WaitForWaiters(1)
	fake.Advance(10 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after the clock advanced")
	}
}

func TestFakeClockAdvanceFiresAllDueWaiters(t *testing.T) {
	t.Parallel()
	fake := Fake(time.Unix(1000, 0))

	early := fake.After(time.Second)
	late := fake.After(3 * time.Second)
	far := fake.After(time.Minute)

	fake.Advance(5 * time.Second)

	for name, ch := range map[string]<-chan time.Time{"early": early, "late": late} {
		select {
		case <-ch:
		default:
			t.Errorf("%s waiter did not fire", name)
		}
	}
	select {
	case <-far:
		t.Error("far waiter fired early")
	default:
	}
	if got := fake.PendingCount(); got != 1 {
		t.Errorf("pending waiters: got %d, want 1", got)
	}
}

func TestRealClockNow(t *testing.T) {
	t.Parallel()
	real := Real()
	before := time.Now()
	got := real.Now()
	if got.Before(before.Add(-time.Minute)) || got.After(before.Add(time.Minute)) {
		t.Errorf("real clock far from wall time: %v vs %v", got, before)
	}
}
