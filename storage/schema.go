// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// sub-database slots
//
// each slot pairs a named database with a cached cursor position in
// the per-transaction cursor arrays
const (
	blocksDB = iota
	blockInfoDB
	blockHeightsDB
	txsDB
	txIndicesDB
	txOutputsDB
	outputTxsDB
	outputIndicesDB
	outputKeysDB
	outputAmountsDB
	spentKeysDB
	hfStartingHeightsDB
	hfVersionsDB
	propertiesDB

	subDBCount // must be last
)

// named sub-databases and their open flags
var subDBs = [subDBCount]struct {
	name  string
	flags uint
}{
	blocksDB:            {"blocks", lmdb.IntegerKey},
	blockInfoDB:         {"block_info", lmdb.IntegerKey},
	blockHeightsDB:      {"block_heights", 0},
	txsDB:               {"txs", lmdb.IntegerKey},
	txIndicesDB:         {"tx_indices", 0},
	txOutputsDB:         {"tx_outputs", lmdb.IntegerKey},
	outputTxsDB:         {"output_txs", lmdb.IntegerKey},
	outputIndicesDB:     {"output_indices", lmdb.IntegerKey},
	outputKeysDB:        {"output_keys", lmdb.IntegerKey},
	outputAmountsDB:     {"output_amounts", lmdb.IntegerKey | lmdb.DupSort | lmdb.DupFixed | lmdb.IntegerDup},
	spentKeysDB:         {"spent_keys", 0},
	hfStartingHeightsDB: {"hf_starting_heights", 0},
	hfVersionsDB:        {"hf_versions", lmdb.IntegerKey},
	propertiesDB:        {"properties", 0},
}

// fixed record sizes
const (
	uint64Size    = 8
	blockInfoSize = 3*uint64Size + uint64Size + digest.DigestLength // timestamp coins size cumdiff hash
	txIndexSize   = 3 * uint64Size                                  // tx index, unlock time, height
	outputKeySize = transactionrecord.KeyLength + 2*uint64Size      // public key, unlock time, height
)

// property keys
var versionProperty = []byte("version")

// blockInfo - fixed size per-block metadata record
type blockInfo struct {
	timestamp            uint64
	generatedCoins       uint64
	blockSize            uint64
	cumulativeDifficulty uint64
	hash                 digest.Digest
}

// txIndex - tx_indices value
type txIndex struct {
	txIndex    uint64
	unlockTime uint64
	height     uint64
}

// OutputKey - output_keys value, the data needed to use an output in a ring
type OutputKey struct {
	Key        transactionrecord.PublicKey
	UnlockTime uint64
	Height     uint64
}

// all multi-byte integers on disk are host endian; only little endian
// targets are supported so the codec is fixed little endian and the
// values are copied rather than cast, to stay alignment safe

func uint64Key(n uint64) []byte {
	key := make([]byte, uint64Size)
	binary.LittleEndian.PutUint64(key, n)
	return key
}

func keyToUint64(key []byte) uint64 {
	return binary.LittleEndian.Uint64(key)
}

func packBlockInfo(bi *blockInfo) []byte {
	buffer := make([]byte, blockInfoSize)
	binary.LittleEndian.PutUint64(buffer[0:], bi.timestamp)
	binary.LittleEndian.PutUint64(buffer[8:], bi.generatedCoins)
	binary.LittleEndian.PutUint64(buffer[16:], bi.blockSize)
	binary.LittleEndian.PutUint64(buffer[24:], bi.cumulativeDifficulty)
	copy(buffer[32:], bi.hash[:])
	return buffer
}

func unpackBlockInfo(buffer []byte) (*blockInfo, error) {
	if blockInfoSize != len(buffer) {
		return nil, fault.ErrCorruptedRecord
	}
	bi := &blockInfo{
		timestamp:            binary.LittleEndian.Uint64(buffer[0:]),
		generatedCoins:       binary.LittleEndian.Uint64(buffer[8:]),
		blockSize:            binary.LittleEndian.Uint64(buffer[16:]),
		cumulativeDifficulty: binary.LittleEndian.Uint64(buffer[24:]),
	}
	copy(bi.hash[:], buffer[32:])
	return bi, nil
}

func packTxIndex(ti *txIndex) []byte {
	buffer := make([]byte, txIndexSize)
	binary.LittleEndian.PutUint64(buffer[0:], ti.txIndex)
	binary.LittleEndian.PutUint64(buffer[8:], ti.unlockTime)
	binary.LittleEndian.PutUint64(buffer[16:], ti.height)
	return buffer
}

func unpackTxIndex(buffer []byte) (*txIndex, error) {
	if txIndexSize != len(buffer) {
		return nil, fault.ErrCorruptedRecord
	}
	return &txIndex{
		txIndex:    binary.LittleEndian.Uint64(buffer[0:]),
		unlockTime: binary.LittleEndian.Uint64(buffer[8:]),
		height:     binary.LittleEndian.Uint64(buffer[16:]),
	}, nil
}

func packOutputKey(ok *OutputKey) []byte {
	buffer := make([]byte, outputKeySize)
	copy(buffer, ok.Key[:])
	binary.LittleEndian.PutUint64(buffer[32:], ok.UnlockTime)
	binary.LittleEndian.PutUint64(buffer[40:], ok.Height)
	return buffer
}

func unpackOutputKey(buffer []byte) (*OutputKey, error) {
	if outputKeySize != len(buffer) {
		return nil, fault.ErrCorruptedRecord
	}
	ok := &OutputKey{
		UnlockTime: binary.LittleEndian.Uint64(buffer[32:]),
		Height:     binary.LittleEndian.Uint64(buffer[40:]),
	}
	copy(ok.Key[:], buffer[:32])
	return ok, nil
}

// pack the per-transaction [amount output index, global output index]
// pairs as a flat uint64 array
func packOutputIndices(amountIndices []uint64, globalIndices []uint64) []byte {
	buffer := make([]byte, 2*uint64Size*len(amountIndices))
	n := 0
	for i := 0; i < len(amountIndices); i += 1 {
		binary.LittleEndian.PutUint64(buffer[n:], amountIndices[i])
		binary.LittleEndian.PutUint64(buffer[n+8:], globalIndices[i])
		n += 2 * uint64Size
	}
	return buffer
}

func unpackOutputIndices(buffer []byte) ([]uint64, []uint64, error) {
	if 0 != len(buffer)%(2*uint64Size) {
		return nil, nil, fault.ErrOutputIndicesCorrupted
	}
	pairs := len(buffer) / (2 * uint64Size)
	amountIndices := make([]uint64, pairs)
	globalIndices := make([]uint64, pairs)
	for i := 0; i < pairs; i += 1 {
		amountIndices[i] = binary.LittleEndian.Uint64(buffer[2*uint64Size*i:])
		globalIndices[i] = binary.LittleEndian.Uint64(buffer[2*uint64Size*i+8:])
	}
	return amountIndices, globalIndices, nil
}
