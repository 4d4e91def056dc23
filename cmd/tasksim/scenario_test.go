// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadScenarioBasic(t *testing.T) {
	t.Parallel()

	scenario, err := LoadScenario(filepath.Join("testdata", "basic.yaml"))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	if got := time.Duration(scenario.Timeout); got != 10*time.Second {
		t.Errorf("timeout: got %v, want 10s", got)
	}
	if len(scenario.Processes) != 2 {
		t.Fatalf("processes: got %d, want 2", len(scenario.Processes))
	}

	worker := scenario.Processes[0]
	if worker.Name != "worker" || !worker.HandleExceptions {
		t.Errorf("worker: got %+v", worker)
	}
	if worker.Exit == nil || *worker.Exit != 0 {
		t.Errorf("worker exit: got %v", worker.Exit)
	}
	if len(worker.Main) != 2 || worker.Main[0].Sleep == nil || worker.Main[1].Exception == nil {
		t.Errorf("worker main steps: got %+v", worker.Main)
	}
	if len(worker.Threads) != 1 || worker.Threads[0].Name != "helper" {
		t.Errorf("worker threads: got %+v", worker.Threads)
	}
	if !worker.Threads[0].Steps[0].SuspendResume {
		t.Errorf("helper first step: got %+v", worker.Threads[0].Steps[0])
	}

	victim := scenario.Processes[1]
	if victim.KillAfter == nil || time.Duration(*victim.KillAfter) != 5*time.Millisecond {
		t.Errorf("victim kill_after: got %v", victim.KillAfter)
	}
}

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing scenario: %v", err)
	}
	return path
}

func TestLoadScenarioRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
	}{
		{"no processes", "timeout: 5s\n"},
		{"missing name", "processes:\n  - main: []\n"},
		{"overlong name", "processes:\n  - name: " +
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa\n"},
		{"empty step", "processes:\n  - name: p\n    main:\n      - {}\n"},
		{"conflicting step", "processes:\n  - name: p\n    main:\n      - sleep: 1ms\n        exception: 1\n"},
		{"bad duration", "processes:\n  - name: p\n    main:\n      - sleep: fast\n"},
		{"unnamed thread", "processes:\n  - name: p\n    threads:\n      - steps: []\n"},
	}

	for _, testCase := range cases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			path := writeScenario(t, testCase.content)
			if _, err := LoadScenario(path); err == nil {
				t.Errorf("LoadScenario accepted %s", testCase.name)
			}
		})
	}
}

func TestLoadScenarioDefaultsTimeout(t *testing.T) {
	t.Parallel()

	path := writeScenario(t, "processes:\n  - name: p\n")
	scenario, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	if got := time.Duration(scenario.Timeout); got != 30*time.Second {
		t.Errorf("default timeout: got %v, want 30s", got)
	}
}
