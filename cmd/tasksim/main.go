// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// tasksim runs a scripted process/thread lifecycle scenario against an
// in-memory registry, recording every state transition to a SQLite
// journal and optionally writing a point-in-time snapshot of the live
// registry.
//
// Usage:
//
//	tasksim --scenario <file.yaml> [--journal <file.db>] [--snapshot <file.zst>]
//
// Each scripted thread runs as a goroutine that drives its thread
// object the way an execution context would: executing steps, checking
// for a pending kill at each checkpoint, and exiting as its final act.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/vsrinivas/fuchsia-sub299/lib/journal"
	"github.com/vsrinivas/fuchsia-sub299/lib/snapshot"
	"github.com/vsrinivas/fuchsia-sub299/lib/task"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var scenarioPath string
	var journalPath string
	var snapshotPath string
	var debug bool

	flagSet := pflag.NewFlagSet("tasksim", pflag.ContinueOnError)
	flagSet.StringVar(&scenarioPath, "scenario", "", "path to the scenario YAML file (required)")
	flagSet.StringVar(&journalPath, "journal", "", "record lifecycle transitions to this SQLite database")
	flagSet.StringVar(&snapshotPath, "snapshot", "", "write a compressed snapshot of the live registry to this file")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if scenarioPath == "" {
		return fmt.Errorf("--scenario is required")
	}

	logLevel := slog.LevelInfo
	if debug || os.Getenv("TASKSIM_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	scenario, err := LoadScenario(scenarioPath)
	if err != nil {
		return err
	}

	config := task.Config{Logger: logger}
	var eventLog *journal.Journal
	if journalPath != "" {
		eventLog, err = journal.Open(journal.Config{Path: journalPath, Logger: logger})
		if err != nil {
			return err
		}
		defer eventLog.Close()
		config.Observer = eventLog
	}

	registry, err := task.NewRegistry(config)
	if err != nil {
		return fmt.Errorf("creating registry: %w", err)
	}

	simRunner := newRunner(registry, logger)
	processes, err := simRunner.launch(scenario)
	if err != nil {
		return err
	}

	// Capture while the processes are live; by the time the run
	// completes they have all left the registry.
	if snapshotPath != "" {
		if err := writeSnapshot(registry, snapshotPath); err != nil {
			return err
		}
		logger.Info("snapshot written", "path", snapshotPath, "processes", len(processes))
	}

	if err := simRunner.wait(processes, time.Duration(scenario.Timeout)); err != nil {
		registry.DebugDump()
		return err
	}

	for _, process := range processes {
		logger.Info("process terminated",
			"name", process.Name(),
			"koid", process.Koid(),
			"retcode", process.Retcode(),
		)
	}

	if eventLog != nil {
		if err := summarize(eventLog, processes, logger); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshot(registry *task.Registry, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	if err := snapshot.Write(file, snapshot.Capture(registry)); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// summarize reports per-process journal statistics after the run.
func summarize(eventLog *journal.Journal, processes []*task.Process, logger *slog.Logger) error {
	ctx := context.Background()
	for _, process := range processes {
		records, err := eventLog.ProcessHistory(ctx, uint64(process.Koid()))
		if err != nil {
			return err
		}
		states := make([]string, 0, len(records))
		for _, record := range records {
			states = append(states, record.State)
		}
		logger.Info("journal history",
			"name", process.Name(),
			"koid", process.Koid(),
			"transitions", states,
		)
	}
	return nil
}
