// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package object

// Type tags the concrete kind of a kernel object. The handle layer is
// type-agnostic; the tag exists so holders of a generic dispatcher
// reference can classify it without reflection.
type Type uint32

const (
	// TypeNone is the zero value; no valid dispatcher carries it.
	TypeNone Type = iota
	// TypeProcess is a process dispatcher.
	TypeProcess
	// TypeThread is a thread dispatcher.
	TypeThread
	// TypeVMO is a virtual memory object.
	TypeVMO
	// TypeChannel is a bidirectional IPC channel endpoint.
	TypeChannel
	// TypeEvent is a plain signalable event.
	TypeEvent
	// TypePort is a packet delivery port.
	TypePort
	// TypeJob is a job (a group of processes).
	TypeJob
)

var typeNames = map[Type]string{
	TypeNone:    "none",
	TypeProcess: "process",
	TypeThread:  "thread",
	TypeVMO:     "vmo",
	TypeChannel: "channel",
	TypeEvent:   "event",
	TypePort:    "port",
	TypeJob:     "job",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}
