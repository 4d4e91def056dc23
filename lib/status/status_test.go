// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package status

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassificationSurvivesWrapping(t *testing.T) {
	t.Parallel()

	err := NotFound("handle value 0x7")
	wrapped := fmt.Errorf("closing handle: %w", err)
	doubly := fmt.Errorf("syscall: %w", wrapped)

	if !errors.Is(doubly, ErrNotFound) {
		t.Error("errors.Is lost the sentinel through wrapping")
	}
	if errors.Is(doubly, ErrBadState) {
		t.Error("errors.Is matched the wrong sentinel")
	}
	if !Is(doubly, ErrNotFound) {
		t.Error("Is disagrees with errors.Is")
	}
}

func TestErrorMessageIncludesContext(t *testing.T) {
	t.Parallel()

	err := BadState("start thread: state dead")
	if got, want := err.Error(), "start thread: state dead: bad state"; got != want {
		t.Errorf("message: got %q, want %q", got, want)
	}

	bare := &Error{Code: ErrNoMemory}
	if got := bare.Error(); got != "no memory" {
		t.Errorf("contextless message: got %q", got)
	}
}

func TestErrorsAsExtractsContext(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("duplicating: %w", InvalidArgs("rights exceed source"))
	var statusError *Error
	if !errors.As(wrapped, &statusError) {
		t.Fatal("errors.As did not find the status error")
	}
	if statusError.Context != "rights exceed source" {
		t.Errorf("context: got %q", statusError.Context)
	}
}
