// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the recoverable error taxonomy of the object
// core. Every recoverable failure returned by the handle table or the
// task layer wraps exactly one of these, so callers classify with
// errors.Is and never string-match.
//
// Invariant violations (illegal state transitions, refcount underflow,
// double close) are NOT part of this taxonomy: they indicate a logic
// defect in the caller and panic instead of returning an error.
var (
	// ErrBadState: the operation is forbidden in the object's current
	// lifecycle state (starting a started thread, adding a thread to a
	// dying process, suspending a dead thread).
	ErrBadState = errors.New("bad state")

	// ErrNotFound: a lookup failed (handle value invalid, already
	// removed, or owned by a different process).
	ErrNotFound = errors.New("not found")

	// ErrNoMemory: object or thread allocation failed. Partially
	// constructed objects are fully unwound before this is returned.
	ErrNoMemory = errors.New("no memory")

	// ErrInvalidArgs: malformed input, such as an over-long name.
	ErrInvalidArgs = errors.New("invalid args")

	// ErrOutOfRange: a numeric argument falls outside its valid range.
	ErrOutOfRange = errors.New("out of range")
)

// Error pairs a taxonomy code with call-site context. Callers can use
// errors.Is with the sentinel to classify, and errors.As to extract
// the context:
//
//	if errors.Is(err, status.ErrNotFound) { ... }
type Error struct {
	// Code is one of the sentinel errors above.
	Code error
	// Context describes the failing operation ("remove handle",
	// "add thread").
	Context string
}

func (e *Error) Error() string {
	if e.Context == "" {
		return e.Code.Error()
	}
	return fmt.Sprintf("%s: %s", e.Context, e.Code.Error())
}

// Unwrap exposes the sentinel so errors.Is(err, status.ErrBadState)
// works through any number of fmt.Errorf %w wrappings above this.
func (e *Error) Unwrap() error { return e.Code }

// BadState returns an ErrBadState error with context.
func BadState(context string) error { return &Error{Code: ErrBadState, Context: context} }

// NotFound returns an ErrNotFound error with context.
func NotFound(context string) error { return &Error{Code: ErrNotFound, Context: context} }

// NoMemory returns an ErrNoMemory error with context.
func NoMemory(context string) error { return &Error{Code: ErrNoMemory, Context: context} }

// InvalidArgs returns an ErrInvalidArgs error with context.
func InvalidArgs(context string) error { return &Error{Code: ErrInvalidArgs, Context: context} }

// OutOfRange returns an ErrOutOfRange error with context.
func OutOfRange(context string) error { return &Error{Code: ErrOutOfRange, Context: context} }

// Is reports whether err belongs to the taxonomy class identified by
// sentinel. Convenience wrapper over errors.Is for call sites that
// already import this package.
func Is(err, sentinel error) bool { return errors.Is(err, sentinel) }
