// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

// Scenario is the YAML description of a simulation run: a set of
// processes, each with a scripted initial thread and optionally
// additional scripted threads, plus external events (kills, suspend
// cycles) injected against them.
type Scenario struct {
	// Timeout bounds the whole run. All processes must reach Dead
	// before it elapses. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`

	Processes []ProcessScript `yaml:"processes"`
}

// ProcessScript describes one process in the scenario.
type ProcessScript struct {
	// Name is the process name, handed to the registry.
	Name string `yaml:"name"`

	// Main is the step list executed by the process's initial thread.
	Main []Step `yaml:"main"`

	// Threads are additional threads created after the process starts.
	Threads []ThreadScript `yaml:"threads"`

	// Exit, when set, makes the initial thread finish by calling the
	// process-wide exit with this return code instead of a plain
	// thread exit. Other threads then observe the kill request and
	// exit at their next checkpoint.
	Exit *int64 `yaml:"exit"`

	// KillAfter, when set, kills the process from outside after the
	// given delay from process start.
	KillAfter *Duration `yaml:"kill_after"`

	// HandleExceptions binds a handler to every thread's exception
	// channel that marks each delivered exception handled. Without it,
	// scripted exceptions resolve not-handled immediately.
	HandleExceptions bool `yaml:"handle_exceptions"`
}

// ThreadScript describes one additional thread of a process.
type ThreadScript struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted action. Exactly one field should be set.
type Step struct {
	// Sleep parks the thread for the duration via the registry clock.
	Sleep *Duration `yaml:"sleep"`

	// Exception raises a software breakpoint exception with the given
	// context value and blocks until it is resolved.
	Exception *uint64 `yaml:"exception"`

	// SuspendResume runs one suspend/resume cycle against the thread
	// from a helper goroutine, with the thread pausing in between so
	// the suspended state is observable.
	SuspendResume bool `yaml:"suspend_resume"`
}

func (s *Step) validate() error {
	set := 0
	if s.Sleep != nil {
		set++
	}
	if s.Exception != nil {
		set++
	}
	if s.SuspendResume {
		set++
	}
	if set != 1 {
		return fmt.Errorf("step must set exactly one of sleep, exception, suspend_resume")
	}
	return nil
}

// Duration wraps time.Duration for YAML scalars like "150ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}

	if len(scenario.Processes) == 0 {
		return nil, fmt.Errorf("scenario has no processes")
	}
	if scenario.Timeout <= 0 {
		scenario.Timeout = Duration(30 * time.Second)
	}
	for i := range scenario.Processes {
		process := &scenario.Processes[i]
		if process.Name == "" {
			return nil, fmt.Errorf("process %d: name is required", i)
		}
		if len(process.Name) > task.ProcessNameMaxLength {
			return nil, fmt.Errorf("process %q: name exceeds %d bytes", process.Name, task.ProcessNameMaxLength)
		}
		for j := range process.Main {
			if err := process.Main[j].validate(); err != nil {
				return nil, fmt.Errorf("process %q main step %d: %w", process.Name, j, err)
			}
		}
		for _, thread := range process.Threads {
			if thread.Name == "" {
				return nil, fmt.Errorf("process %q: thread name is required", process.Name)
			}
			for j := range thread.Steps {
				if err := thread.Steps[j].validate(); err != nil {
					return nil, fmt.Errorf("thread %q step %d: %w", thread.Name, j, err)
				}
			}
		}
	}
	return &scenario, nil
}
