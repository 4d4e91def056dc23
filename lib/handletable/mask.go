// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handletable

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/vsrinivas/fuchsia-sub299/lib/object"
)

// Secret is the boot-time random input to handle mask derivation. One
// secret is drawn per system (per registry) and shared by every
// table's derivation; the per-process koid input makes each table's
// mask distinct.
type Secret [32]byte

// maskDomainKey is the BLAKE3 domain separation key for handle mask
// derivation. ASCII, zero-padded to 32 bytes, so the key is readable
// in debuggers. Changing it changes every derived mask.
var maskDomainKey = [32]byte{
	'k', 'o', 'b', 'j', '.', 'h', 'a', 'n', 'd', 'l', 'e', '.', 'm', 'a', 's', 'k',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// deriveMask computes the per-process XOR mask from the boot secret
// and the process koid. The top bit is forced on so that
// (index+1) XOR mask can never be zero for any realistic index,
// preserving 0 as the universal invalid handle value.
func deriveMask(secret Secret, owner object.Koid) uint32 {
	hasher, err := blake3.NewKeyed(maskDomainKey[:])
	if err != nil {
		panic("handletable: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(secret[:])

	var koidBytes [8]byte
	binary.LittleEndian.PutUint64(koidBytes[:], uint64(owner))
	hasher.Write(koidBytes[:])

	digest := hasher.Sum(nil)
	return binary.LittleEndian.Uint32(digest[:4]) | 1<<31
}
