// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"sync/atomic"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/blockrecord"
	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// run the percentage resize check every this many blocks when not in
// batch mode
const resizeCheckInterval = 1000

// AddBlock - append a block and its transactions to the store
//
// the caller supplies the validated block, its raw size, the chain's
// cumulative difficulty and generated coin total at this block, the
// block hash, and the non-miner transactions matching blk.TxHashes
// in order
//
// on any error the in-memory counters are restored and, outside batch
// mode, the per-block transaction is aborted; a live batch is left for
// the caller to abort
func (db *BlockchainDB) AddBlock(blk *blockrecord.Block, blockSize uint64, cumulativeDifficulty uint64, generatedCoins uint64, blkHash digest.Digest, txs []*transactionrecord.Transaction) error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	if db.IsReadOnly() {
		return fault.ErrDatabaseIsReadOnly
	}
	if len(txs) != len(blk.TxHashes) {
		return fault.ErrTransactionCountMismatch
	}

	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	height := atomic.LoadUint64(&db.height)

	if !db.batchActive && 0 == height%resizeCheckInterval && db.needResize(0) {
		if err := db.doResize(0); nil != err {
			return err
		}
	}

	ownTxn := false
	if nil == db.writeTxn {
		if db.batchActive {
			// a committed batch must be restarted before more writes
			return fault.ErrBatchNotActive
		}
		txn, err := db.beginWriteTxn(false)
		if nil != err {
			return err
		}
		db.writeTxn = txn
		ownTxn = true
	}
	w := db.writeTxn

	oldNumTxs := atomic.LoadUint64(&db.numTxs)
	oldNumOutputs := atomic.LoadUint64(&db.numOutputs)

	restore := func() {
		atomic.StoreUint64(&db.numTxs, oldNumTxs)
		atomic.StoreUint64(&db.numOutputs, oldNumOutputs)
	}

	err := db.addBlock(w, blk, blockSize, cumulativeDifficulty, generatedCoins, blkHash, txs)
	if nil != err {
		restore()
		if ownTxn {
			w.abort()
			db.writeTxn = nil
		}
		return err
	}

	if ownTxn {
		db.writeTxn = nil
		if err := w.commit(); nil != err {
			restore()
			return err
		}
	}

	db.cumSize += blockSize
	db.cumCount += 1
	atomic.AddUint64(&db.height, 1)
	return nil
}

// all mutations for one block, inside the supplied write transaction
func (db *BlockchainDB) addBlock(w *writeTxn, blk *blockrecord.Block, blockSize uint64, cumulativeDifficulty uint64, generatedCoins uint64, blkHash digest.Digest, txs []*transactionrecord.Transaction) error {

	height := atomic.LoadUint64(&db.height)

	heightsCursor, err := w.cursor(blockHeightsDB)
	if nil != err {
		return err
	}

	// invariant: a block hash is present at most once
	_, _, err = heightsCursor.Get(blkHash[:], nil, lmdb.Set)
	if nil == err {
		return fault.ErrBlockExists
	} else if !lmdb.IsNotFound(err) {
		return err
	}

	// parent linkage: prev_id must resolve to the current tip
	if height > 0 {
		_, parent, err := heightsCursor.Get(blk.PreviousBlock[:], nil, lmdb.Set)
		if lmdb.IsNotFound(err) {
			db.log.Debugf("parent not found: %s", blk.PreviousBlock)
			return fault.ErrPreviousBlockDigestDoesNotMatch
		} else if nil != err {
			return err
		}
		if keyToUint64(parent) != height-1 {
			return fault.ErrPreviousBlockDigestDoesNotMatch
		}
	}

	heightKey := uint64Key(height)
	packedBlock := blk.Pack()

	blocksCursor, err := w.cursor(blocksDB)
	if nil != err {
		return err
	}
	if err := blocksCursor.Put(heightKey, packedBlock, lmdb.Append); nil != err {
		return mapFull(err)
	}

	bi := blockInfo{
		timestamp:            blk.Timestamp,
		generatedCoins:       generatedCoins,
		blockSize:            blockSize,
		cumulativeDifficulty: cumulativeDifficulty,
		hash:                 blkHash,
	}
	infoCursor, err := w.cursor(blockInfoDB)
	if nil != err {
		return err
	}
	if err := infoCursor.Put(heightKey, packBlockInfo(&bi), lmdb.Append); nil != err {
		return mapFull(err)
	}

	if err := w.txn.Put(db.dbis[blockHeightsDB], blkHash[:], heightKey, 0); nil != err {
		return mapFull(err)
	}

	// the miner transaction is stored like any other
	if err := db.addTransaction(w, &blk.MinerTx); nil != err {
		return err
	}
	for _, tx := range txs {
		if err := db.addTransaction(w, tx); nil != err {
			return err
		}
	}

	return nil
}

// store one transaction and index all of its outputs
func (db *BlockchainDB) addTransaction(w *writeTxn, tx *transactionrecord.Transaction) error {

	packed := tx.Pack()
	txHash := packed.Digest()
	height := atomic.LoadUint64(&db.height)

	// invariant: a tx hash is present at most once
	_, err := w.txn.Get(db.dbis[txIndicesDB], txHash[:])
	if nil == err {
		return fault.ErrTransactionExists
	} else if !lmdb.IsNotFound(err) {
		return err
	}

	ti := txIndex{
		txIndex:    atomic.LoadUint64(&db.numTxs),
		unlockTime: tx.UnlockTime,
		height:     height,
	}
	if err := w.txn.Put(db.dbis[txIndicesDB], txHash[:], packTxIndex(&ti), 0); nil != err {
		return mapFull(err)
	}

	txKey := uint64Key(ti.txIndex)
	txsCursor, err := w.cursor(txsDB)
	if nil != err {
		return err
	}
	if err := txsCursor.Put(txKey, packed, lmdb.Append); nil != err {
		return mapFull(err)
	}
	atomic.AddUint64(&db.numTxs, 1)

	// mark every consumed key image as spent
	for i := 0; i < len(tx.Inputs); i += 1 {
		if err := db.addSpentKey(w, tx.Inputs[i].KeyImage); nil != err {
			return err
		}
	}

	amountIndices := make([]uint64, len(tx.Outputs))
	globalIndices := make([]uint64, len(tx.Outputs))
	for i := 0; i < len(tx.Outputs); i += 1 {
		amountIndex, globalIndex, err := db.addOutput(w, txHash, &tx.Outputs[i], uint64(i), tx.UnlockTime)
		if nil != err {
			return err
		}
		amountIndices[i] = amountIndex
		globalIndices[i] = globalIndex
	}

	// the per-transaction output id list completes the join between
	// the tx and output tables
	if err := w.txn.Put(db.dbis[txOutputsDB], txKey, packOutputIndices(amountIndices, globalIndices), 0); nil != err {
		return mapFull(err)
	}

	return nil
}

// index a single output under its global id and its amount
func (db *BlockchainDB) addOutput(w *writeTxn, txHash digest.Digest, out *transactionrecord.Output, localIndex uint64, unlockTime uint64) (uint64, uint64, error) {

	if transactionrecord.OutputToKey != out.TargetTag {
		return 0, 0, fault.ErrUnsupportedOutputType
	}

	globalIndex := atomic.LoadUint64(&db.numOutputs)
	globalKey := uint64Key(globalIndex)

	outputTxsCursor, err := w.cursor(outputTxsDB)
	if nil != err {
		return 0, 0, err
	}
	if err := outputTxsCursor.Put(globalKey, txHash[:], lmdb.Append); nil != err {
		return 0, 0, mapFull(err)
	}

	outputIndicesCursor, err := w.cursor(outputIndicesDB)
	if nil != err {
		return 0, 0, err
	}
	if err := outputIndicesCursor.Put(globalKey, uint64Key(localIndex), lmdb.Append); nil != err {
		return 0, 0, mapFull(err)
	}

	// global ids only grow, so the new duplicate always lands at the
	// end of the amount's dup list and its position is count-1
	amountsCursor, err := w.cursor(outputAmountsDB)
	if nil != err {
		return 0, 0, err
	}
	if err := amountsCursor.Put(uint64Key(out.Amount), globalKey, 0); nil != err {
		return 0, 0, mapFull(err)
	}
	count, err := amountsCursor.Count()
	if nil != err {
		return 0, 0, err
	}
	amountIndex := count - 1

	outputKey := OutputKey{
		Key:        out.Key,
		UnlockTime: unlockTime,
		Height:     atomic.LoadUint64(&db.height),
	}
	outputKeysCursor, err := w.cursor(outputKeysDB)
	if nil != err {
		return 0, 0, err
	}
	if err := outputKeysCursor.Put(globalKey, packOutputKey(&outputKey), lmdb.Append); nil != err {
		return 0, 0, mapFull(err)
	}

	atomic.AddUint64(&db.numOutputs, 1)
	return amountIndex, globalIndex, nil
}

// translate a map-full engine error, passing others through
func mapFull(err error) error {
	if lmdb.IsMapFull(err) {
		return fault.ErrDatabaseFull
	}
	return err
}
