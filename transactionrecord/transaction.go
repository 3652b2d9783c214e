// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transactionrecord

import (
	"github.com/mantlecoin/mantled/digest"
)

// KeyLength - number of bytes in a one-time output public key
const KeyLength = 32

// KeyImageLength - number of bytes in a key image
const KeyImageLength = 32

// PublicKey - one-time destination key of an output
type PublicKey [KeyLength]byte

// KeyImage - one-time mark proving an output was spent
type KeyImage [KeyImageLength]byte

// output target tags
//
// only the to-key form is storable; the tag is preserved so that a
// record carrying an unknown target is detected at store time
const (
	OutputToKey = byte(0x02)
)

// Output - a single transaction output
type Output struct {
	Amount    uint64    `json:"amount"`
	TargetTag byte      `json:"targetTag"`
	Key       PublicKey `json:"key"`
}

// Input - a key input spending a previous output
//
// KeyOffsets are relative amount-output indices forming the ring
type Input struct {
	Amount     uint64   `json:"amount"`
	KeyOffsets []uint64 `json:"keyOffsets"`
	KeyImage   KeyImage `json:"keyImage"`
}

// Transaction - the unpacked transaction record
type Transaction struct {
	Version    uint64   `json:"version"`
	UnlockTime uint64   `json:"unlockTime"`
	Inputs     []Input  `json:"inputs"`
	Outputs    []Output `json:"outputs"`
	Extra      []byte   `json:"extra"`
}

// Packed - packed byte form of a transaction
type Packed []byte

// Digest - hash of the packed transaction
func (record Packed) Digest() digest.Digest {
	return digest.NewDigest(record)
}

// Bytes - raw bytes of a packed transaction
func (record Packed) Bytes() []byte {
	return record
}
