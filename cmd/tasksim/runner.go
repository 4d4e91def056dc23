// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

// runner executes a scenario against a registry: one goroutine per
// scripted thread, driving the thread object the way an execution
// context would (checkpoints between steps, Exit as the final act).
type runner struct {
	registry *task.Registry
	logger   *slog.Logger

	group sync.WaitGroup
	// done stops the exception handler goroutines once the run is over.
	done chan struct{}
}

func newRunner(registry *task.Registry, logger *slog.Logger) *runner {
	return &runner{
		registry: registry,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// entryState is the synthetic register state every scripted thread
// starts with. The values are arbitrary; they only need to be visible
// through introspection.
var entryState = task.EntryState{PC: 0x1000, SP: 0x7ffe_0000, Arg1: 1}

// launch creates, initializes, and starts every process in the
// scenario and spins up the goroutines that script them. It returns
// the started processes; the caller waits for their termination.
func (r *runner) launch(scenario *Scenario) ([]*task.Process, error) {
	var processes []*task.Process

	for i := range scenario.Processes {
		script := &scenario.Processes[i]
		process, err := r.launchProcess(script)
		if err != nil {
			// Abandon the run: kill what already started so their
			// goroutines unwind.
			for _, started := range processes {
				started.Kill()
			}
			return nil, fmt.Errorf("launching process %q: %w", script.Name, err)
		}
		processes = append(processes, process)
	}
	return processes, nil
}

func (r *runner) launchProcess(script *ProcessScript) (*task.Process, error) {
	process, handle, err := r.registry.CreateProcess(script.Name)
	if err != nil {
		return nil, err
	}
	// Install the creation handle in the process's own table, where
	// the terminal drain will close it. The scenario itself drives the
	// process object directly.
	process.AddHandle(handle)
	if err := process.Initialize(); err != nil {
		process.Kill()
		return nil, err
	}
	if err := process.Start(entryState); err != nil {
		process.Kill()
		return nil, err
	}

	mainThread := process.MainThread()
	if script.HandleExceptions {
		r.bindHandler(mainThread)
	}

	// Additional threads. Created and started after the process is
	// Running, as any non-initial thread must be.
	for j := range script.Threads {
		threadScript := &script.Threads[j]
		thread, threadHandle, err := process.CreateThread(threadScript.Name)
		if err != nil {
			process.Kill()
			return nil, fmt.Errorf("creating thread %q: %w", threadScript.Name, err)
		}
		process.AddHandle(threadHandle)
		if script.HandleExceptions {
			r.bindHandler(thread)
		}
		if err := thread.Start(entryState, false); err != nil {
			process.Kill()
			return nil, fmt.Errorf("starting thread %q: %w", threadScript.Name, err)
		}
		r.spawnThreadDriver(thread, threadScript.Steps, nil)
	}

	r.spawnThreadDriver(mainThread, script.Main, script.Exit)

	if script.KillAfter != nil {
		delay := time.Duration(*script.KillAfter)
		r.group.Add(1)
		go func() {
			defer r.group.Done()
			r.registry.Clock().Sleep(delay)
			r.logger.Info("injecting kill", "process", process.Name())
			process.Kill()
		}()
	}
	return process, nil
}

// spawnThreadDriver runs a thread's step list in a goroutine, checking
// for a pending kill between steps. exitCode, when non-nil, makes the
// thread finish by exiting the whole process with that return code.
func (r *runner) spawnThreadDriver(thread *task.Thread, steps []Step, exitCode *int64) {
	r.group.Add(1)
	go func() {
		defer r.group.Done()
		for i := range steps {
			if thread.KillRequested() {
				r.logger.Debug("kill observed", "thread", thread.Name())
				break
			}
			r.runStep(thread, &steps[i])
		}
		if exitCode != nil && !thread.KillRequested() {
			r.logger.Info("process exiting", "process", thread.Process().Name(), "retcode", *exitCode)
			thread.Process().Exit(*exitCode)
		}
		thread.Exit()
	}()
}

func (r *runner) runStep(thread *task.Thread, step *Step) {
	switch {
	case step.Sleep != nil:
		r.sleepInterruptibly(thread, time.Duration(*step.Sleep))
	case step.Exception != nil:
		handled := thread.HandleException(task.ExceptionSoftwareBreakpoint, *step.Exception)
		r.logger.Debug("exception resolved",
			"thread", thread.Name(),
			"context", *step.Exception,
			"handled", handled,
		)
	case step.SuspendResume:
		if err := thread.Suspend(); err != nil {
			r.logger.Warn("suspend failed", "thread", thread.Name(), "error", err)
			return
		}
		if err := thread.Resume(); err != nil {
			r.logger.Warn("resume failed", "thread", thread.Name(), "error", err)
		}
	}
}

// sleepInterruptibly sleeps in short slices so a kill delivered
// mid-sleep is observed within one slice instead of after the full
// duration. Thread.Sleep itself is uninterruptible, which is fine for
// a real execution context parked in a syscall but would stall the
// simulator on scenarios that kill a long sleeper.
func (r *runner) sleepInterruptibly(thread *task.Thread, duration time.Duration) {
	const slice = 5 * time.Millisecond
	defer thread.Block(task.BlockedSleeping).Restore()

	remaining := duration
	for remaining > 0 && !thread.KillRequested() {
		step := slice
		if remaining < step {
			step = remaining
		}
		r.registry.Clock().Sleep(step)
		remaining -= step
	}
}

// bindHandler attaches a mark-everything-handled exception handler to
// the thread. The handler goroutine exits when the run finishes; the
// exceptionate's own teardown covers exceptions in flight at that
// point.
func (r *runner) bindHandler(thread *task.Thread) {
	channel := make(chan *task.Exception)
	if err := thread.Exceptionate().SetChannel(channel); err != nil {
		r.logger.Warn("binding exception handler", "thread", thread.Name(), "error", err)
		return
	}
	r.group.Add(1)
	go func() {
		defer r.group.Done()
		for {
			select {
			case exception := <-channel:
				report := exception.Report()
				r.logger.Info("exception handled",
					"thread_koid", report.ThreadKoid,
					"type", report.Type.String(),
					"context", report.Context,
				)
				exception.MarkHandled()
			case <-r.done:
				return
			}
		}
	}()
}

// wait blocks until every process reaches its terminal state or the
// deadline passes, then stops the helper goroutines.
func (r *runner) wait(processes []*task.Process, timeout time.Duration) error {
	deadline := time.After(timeout)
	for _, process := range processes {
		select {
		case <-process.Terminated():
		case <-deadline:
			close(r.done)
			return fmt.Errorf("process %q did not terminate within %s", process.Name(), timeout)
		}
	}
	close(r.done)
	r.group.Wait()
	return nil
}
