// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handletable implements the per-process mapping from external
// handle values to Handle objects.
//
// External values are obfuscated: value = (slot index + 1) XOR mask,
// where the mask is derived per process from a boot-time secret. The
// "+1" keeps 0 an always-invalid handle value. The obfuscation exists
// only to defeat accidental guessing of handle values (off-by-one
// bugs, stale values from another process); it is NOT a security
// boundary. The real boundary is the owner check on every lookup.
//
// All mutating operations are serialized by a single per-table mutex.
// The table owns every installed handle; Remove transfers ownership to
// the caller, and DrainAndDestroyAll closes everything during process
// teardown.
package handletable
