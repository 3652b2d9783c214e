// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/blockrecord"
	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// full-store walks in key order
//
// each callback returning false stops the walk; the enumerator then
// returns false as well

// ForAllKeyImages - walk the spent key image set
func (db *BlockchainDB) ForAllKeyImages(f func(keyImage transactionrecord.KeyImage) bool) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, spentKeysDB)
	if nil != err {
		return false, err
	}

	op := uint(lmdb.First)
	for {
		key, _, err := cursor.Get(nil, nil, op)
		if lmdb.IsNotFound(err) {
			return true, nil
		} else if nil != err {
			return false, err
		}
		op = lmdb.Next

		var keyImage transactionrecord.KeyImage
		if transactionrecord.KeyImageLength != len(key) {
			continue
		}
		copy(keyImage[:], key)
		if !f(keyImage) {
			return false, nil
		}
	}
}

// ForAllBlocks - walk every stored block in height order
func (db *BlockchainDB) ForAllBlocks(f func(height uint64, hash digest.Digest, blk *blockrecord.Block) bool) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, blocksDB)
	if nil != err {
		return false, err
	}

	op := uint(lmdb.First)
	for {
		key, value, err := cursor.Get(nil, nil, op)
		if lmdb.IsNotFound(err) {
			return true, nil
		} else if nil != err {
			return false, err
		}
		op = lmdb.Next

		height := keyToUint64(key)
		blk, err := blockrecord.Packed(value).Unpack()
		if nil != err {
			return false, err
		}
		bi, err := db.getBlockInfo(r, height)
		if nil != err {
			return false, err
		}
		if !f(height, bi.hash, blk) {
			return false, nil
		}
	}
}

// ForAllTransactions - walk every stored transaction in tx index order
func (db *BlockchainDB) ForAllTransactions(f func(txHash digest.Digest, tx *transactionrecord.Transaction) bool) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, txsDB)
	if nil != err {
		return false, err
	}

	op := uint(lmdb.First)
	for {
		_, value, err := cursor.Get(nil, nil, op)
		if lmdb.IsNotFound(err) {
			return true, nil
		} else if nil != err {
			return false, err
		}
		op = lmdb.Next

		// the tx hash is the digest of the stored packed record
		packed := transactionrecord.Packed(value)
		txHash := packed.Digest()
		tx, _, err := packed.Unpack()
		if nil != err {
			return false, err
		}
		if !f(txHash, tx) {
			return false, nil
		}
	}
}

// ForAllOutputs - walk every output grouped by amount
//
// the per-output join to its owning transaction dominates the cost of
// this walk
func (db *BlockchainDB) ForAllOutputs(f func(amount uint64, txHash digest.Digest, localIndex uint64) bool) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, outputAmountsDB)
	if nil != err {
		return false, err
	}

	op := uint(lmdb.First)
	for {
		key, value, err := cursor.Get(nil, nil, op)
		if lmdb.IsNotFound(err) {
			return true, nil
		} else if nil != err {
			return false, err
		}
		op = lmdb.Next

		amount := keyToUint64(key)
		globalIndex := binary.LittleEndian.Uint64(value)

		txHash, localIndex, err := db.getOutputTxAndIndex(r, globalIndex)
		if nil != err {
			return false, err
		}
		if !f(amount, txHash, localIndex) {
			return false, nil
		}
	}
}
