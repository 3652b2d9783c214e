// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package digest - the chain hash
//
// Blocks, transactions and the keys derived from them are identified
// by a Keccak-256 digest with the original pre-FIPS padding.  Unlike
// bitcoin style chains the hex form is the digest bytes in order,
// with no byte reversal, so the string form and the stored form agree.
package digest

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"github.com/mantlecoin/mantled/fault"
)

// DigestLength - number of bytes in the digest
const DigestLength = 32

// Digest - a chain hash
//
// to convert to bytes just use d[:]
type Digest [DigestLength]byte

// NewDigest - hash a record
func NewDigest(record []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write(record)
	h.Sum(d[:0])
	return d
}

// String - hex form for use by the fmt package (for %s)
func (digest Digest) String() string {
	return hex.EncodeToString(digest[:])
}

// GoString - annotated hex form for use by the fmt package (for %#v)
func (digest Digest) GoString() string {
	return "<digest:" + hex.EncodeToString(digest[:]) + ">"
}

// MarshalText - hex form for JSON and text encoders
func (digest Digest) MarshalText() ([]byte, error) {
	buffer := make([]byte, hex.EncodedLen(DigestLength))
	hex.Encode(buffer, digest[:])
	return buffer, nil
}

// UnmarshalText - decode the hex form
func (digest *Digest) UnmarshalText(s []byte) error {
	if hex.EncodedLen(DigestLength) != len(s) {
		return fault.ErrInvalidDigestLength
	}
	_, err := hex.Decode(digest[:], s)
	return err
}

// DigestFromHex - convert a hex string to a digest
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	err := d.UnmarshalText([]byte(s))
	return d, err
}

// DigestFromBytes - convert and validate a binary byte slice to a digest
func DigestFromBytes(digest *Digest, buffer []byte) error {
	if DigestLength != len(buffer) {
		return fault.ErrInvalidDigestLength
	}
	copy(digest[:], buffer)
	return nil
}
