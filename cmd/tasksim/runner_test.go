// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

func durationOf(d time.Duration) *Duration {
	wrapped := Duration(d)
	return &wrapped
}

func int64Of(v int64) *int64 { return &v }

func runScenario(t *testing.T, scenario *Scenario) []*task.Process {
	t.Helper()
	registry, err := task.NewRegistry(task.Config{Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	simRunner := newRunner(registry, slog.New(slog.DiscardHandler))
	processes, err := simRunner.launch(scenario)
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if err := simRunner.wait(processes, 30*time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	return processes
}

func TestRunnerExitScenario(t *testing.T) {
	t.Parallel()

	processes := runScenario(t, &Scenario{
		Processes: []ProcessScript{{
			Name: "worker",
			Main: []Step{{Sleep: durationOf(time.Millisecond)}},
			Exit: int64Of(7),
			Threads: []ThreadScript{{
				Name: "helper",
				Steps: []Step{
					{SuspendResume: true},
					{Sleep: durationOf(time.Millisecond)},
				},
			}},
		}},
	})

	process := processes[0]
	if got := process.State(); got != task.ProcessDead {
		t.Errorf("state: got %s, want %s", got, task.ProcessDead)
	}
	if got := process.Retcode(); got != 7 {
		t.Errorf("retcode: got %d, want 7", got)
	}
	if got := process.ThreadCount(); got != 0 {
		t.Errorf("thread count: got %d, want 0", got)
	}
}

func TestRunnerKillScenario(t *testing.T) {
	t.Parallel()

	processes := runScenario(t, &Scenario{
		Processes: []ProcessScript{{
			Name:      "victim",
			Main:      []Step{{Sleep: durationOf(time.Hour)}},
			KillAfter: durationOf(time.Millisecond),
		}},
	})

	process := processes[0]
	if got := process.State(); got != task.ProcessDead {
		t.Errorf("state: got %s, want %s", got, task.ProcessDead)
	}
	if got := process.Retcode(); got != 0 {
		t.Errorf("retcode of killed process: got %d, want 0", got)
	}
}

func TestRunnerExceptionScenario(t *testing.T) {
	t.Parallel()

	context := uint64(0x42)
	processes := runScenario(t, &Scenario{
		Processes: []ProcessScript{{
			Name:             "faulting",
			HandleExceptions: true,
			Main:             []Step{{Exception: &context}},
			Exit:             int64Of(0),
		}},
	})

	if got := processes[0].State(); got != task.ProcessDead {
		t.Errorf("state: got %s, want %s", got, task.ProcessDead)
	}
}

func TestRunnerMultipleProcesses(t *testing.T) {
	t.Parallel()

	scenario := &Scenario{}
	for _, name := range []string{"one", "two", "three"} {
		scenario.Processes = append(scenario.Processes, ProcessScript{
			Name: name,
			Main: []Step{{Sleep: durationOf(time.Millisecond)}},
			Exit: int64Of(0),
		})
	}

	processes := runScenario(t, scenario)
	if len(processes) != 3 {
		t.Fatalf("processes: got %d, want 3", len(processes))
	}
	for _, process := range processes {
		if got := process.State(); got != task.ProcessDead {
			t.Errorf("process %q state: got %s", process.Name(), got)
		}
	}
}
