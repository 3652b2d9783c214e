// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockrecord

import (
	"encoding/binary"

	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/transactionrecord"
	"github.com/mantlecoin/mantled/util"
)

// NonceLength - number of bytes in the header nonce
const NonceLength = 4

// Header - the unpacked block header
type Header struct {
	MajorVersion  uint64        `json:"majorVersion"`
	MinorVersion  uint64        `json:"minorVersion"`
	Timestamp     uint64        `json:"timestamp"`
	PreviousBlock digest.Digest `json:"previousBlock"`
	Nonce         uint32        `json:"nonce"`
}

// Block - the unpacked block: header, inline miner transaction and
// the digests of the remaining transactions
type Block struct {
	Header
	MinerTx  transactionrecord.Transaction `json:"minerTx"`
	TxHashes []digest.Digest               `json:"txHashes"`
}

// Packed - packed byte form of a block
type Packed []byte

// sanity limit for the transaction hash list
const maximumTxHashes = 65536

// Digest - hash of the packed block
func (record Packed) Digest() digest.Digest {
	return digest.NewDigest(record)
}

// Bytes - raw bytes of a packed block
func (record Packed) Bytes() []byte {
	return record
}

// Pack - turn a block into its packed byte form
//
// layout:
//   major version    varint
//   minor version    varint
//   timestamp        varint
//   previous block   32 bytes
//   nonce            4 bytes little endian
//   miner tx         packed transaction
//   tx hash count    varint
//   tx hashes        32 bytes each
func (blk *Block) Pack() Packed {
	packed := util.AppendVarint64(nil, blk.MajorVersion)
	packed = util.AppendVarint64(packed, blk.MinorVersion)
	packed = util.AppendVarint64(packed, blk.Timestamp)
	packed = append(packed, blk.PreviousBlock[:]...)

	nonce := make([]byte, NonceLength)
	binary.LittleEndian.PutUint32(nonce, blk.Nonce)
	packed = append(packed, nonce...)

	packed = append(packed, blk.MinerTx.Pack()...)

	packed = util.AppendVarint64(packed, uint64(len(blk.TxHashes)))
	for _, txh := range blk.TxHashes {
		packed = append(packed, txh[:]...)
	}

	return packed
}

// Unpack - turn a byte slice back into a block
func (record Packed) Unpack() (*Block, error) {

	blk := &Block{}
	n := 0

	majorVersion, count := util.FromVarint64(record[n:])
	if 0 == count {
		return nil, fault.ErrNotBlockPack
	}
	n += count
	blk.MajorVersion = majorVersion

	minorVersion, count := util.FromVarint64(record[n:])
	if 0 == count {
		return nil, fault.ErrNotBlockPack
	}
	n += count
	blk.MinorVersion = minorVersion

	timestamp, count := util.FromVarint64(record[n:])
	if 0 == count {
		return nil, fault.ErrNotBlockPack
	}
	n += count
	blk.Timestamp = timestamp

	if len(record) < n+digest.DigestLength+NonceLength {
		return nil, fault.ErrNotBlockPack
	}
	copy(blk.PreviousBlock[:], record[n:n+digest.DigestLength])
	n += digest.DigestLength

	blk.Nonce = binary.LittleEndian.Uint32(record[n : n+NonceLength])
	n += NonceLength

	minerTx, txLength, err := transactionrecord.Packed(record[n:]).Unpack()
	if nil != err {
		return nil, err
	}
	blk.MinerTx = *minerTx
	n += txLength

	hashCount, count := util.FromVarint64(record[n:])
	if 0 == count || hashCount > maximumTxHashes {
		return nil, fault.ErrNotBlockPack
	}
	n += count

	if uint64(len(record)) < uint64(n)+hashCount*digest.DigestLength {
		return nil, fault.ErrNotBlockPack
	}
	if hashCount > 0 {
		blk.TxHashes = make([]digest.Digest, hashCount)
	}
	for i := uint64(0); i < hashCount; i += 1 {
		copy(blk.TxHashes[i][:], record[n:n+digest.DigestLength])
		n += digest.DigestLength
	}

	return blk, nil
}
