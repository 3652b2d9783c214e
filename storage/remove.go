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

// PopBlock - unwind the most recent block
//
// removes the top block and everything it created, in reverse schema
// order, returning the removed block and its non-miner transactions
func (db *BlockchainDB) PopBlock() (*blockrecord.Block, []*transactionrecord.Transaction, error) {
	if !db.open {
		return nil, nil, fault.ErrNotInitialised
	}
	if db.IsReadOnly() {
		return nil, nil, fault.ErrDatabaseIsReadOnly
	}

	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if 0 == atomic.LoadUint64(&db.height) {
		return nil, nil, fault.ErrBlockNotFound
	}

	ownTxn := false
	if nil == db.writeTxn {
		if db.batchActive {
			return nil, nil, fault.ErrBatchNotActive
		}
		txn, err := db.beginWriteTxn(false)
		if nil != err {
			return nil, nil, err
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

	blk, txs, err := db.removeTopBlock(w)
	if nil != err {
		restore()
		if ownTxn {
			w.abort()
			db.writeTxn = nil
		}
		return nil, nil, err
	}

	if ownTxn {
		db.writeTxn = nil
		if err := w.commit(); nil != err {
			restore()
			return nil, nil, err
		}
	}

	atomic.AddUint64(&db.height, ^uint64(0))
	return blk, txs, nil
}

// delete the top block and all of its transactions
func (db *BlockchainDB) removeTopBlock(w *writeTxn) (*blockrecord.Block, []*transactionrecord.Transaction, error) {

	height := atomic.LoadUint64(&db.height) - 1
	heightKey := uint64Key(height)

	blob, err := w.txn.Get(db.dbis[blocksDB], heightKey)
	if lmdb.IsNotFound(err) {
		return nil, nil, fault.ErrBlockNotFound
	} else if nil != err {
		return nil, nil, err
	}
	blk, err := blockrecord.Packed(blob).Unpack()
	if nil != err {
		return nil, nil, err
	}

	infoBuffer, err := w.txn.Get(db.dbis[blockInfoDB], heightKey)
	if lmdb.IsNotFound(err) {
		return nil, nil, fault.ErrBlockNotFound
	} else if nil != err {
		return nil, nil, err
	}
	bi, err := unpackBlockInfo(infoBuffer)
	if nil != err {
		return nil, nil, err
	}

	if err := w.txn.Del(db.dbis[blockHeightsDB], bi.hash[:], nil); nil != err {
		return nil, nil, err
	}
	if err := w.txn.Del(db.dbis[blocksDB], heightKey, nil); nil != err {
		return nil, nil, err
	}
	if err := w.txn.Del(db.dbis[blockInfoDB], heightKey, nil); nil != err {
		return nil, nil, err
	}

	// transactions unwind in reverse insertion order, miner tx last
	txs := make([]*transactionrecord.Transaction, 0, len(blk.TxHashes))
	for i := len(blk.TxHashes) - 1; i >= 0; i -= 1 {
		tx, err := db.removeTransaction(w, blk.TxHashes[i])
		if nil != err {
			return nil, nil, err
		}
		txs = append(txs, tx)
	}

	minerTxHash := blk.MinerTx.Pack().Digest()
	if _, err := db.removeTransaction(w, minerTxHash); nil != err {
		return nil, nil, err
	}

	// restore block order
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return blk, txs, nil
}

// delete one transaction, its outputs and its spent key images
func (db *BlockchainDB) removeTransaction(w *writeTxn, txHash digest.Digest) (*transactionrecord.Transaction, error) {

	tiBuffer, err := w.txn.Get(db.dbis[txIndicesDB], txHash[:])
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrTransactionNotFound
	} else if nil != err {
		return nil, err
	}
	ti, err := unpackTxIndex(tiBuffer)
	if nil != err {
		return nil, err
	}
	txKey := uint64Key(ti.txIndex)

	blob, err := w.txn.Get(db.dbis[txsDB], txKey)
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrTransactionNotFound
	} else if nil != err {
		return nil, err
	}
	tx, _, err := transactionrecord.Packed(blob).Unpack()
	if nil != err {
		return nil, err
	}

	for i := 0; i < len(tx.Inputs); i += 1 {
		if err := db.removeSpentKey(w, tx.Inputs[i].KeyImage); nil != err {
			return nil, err
		}
	}

	outBuffer, err := w.txn.Get(db.dbis[txOutputsDB], txKey)
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrOutputIndicesCorrupted
	} else if nil != err {
		return nil, err
	}
	_, globalIndices, err := unpackOutputIndices(outBuffer)
	if nil != err {
		return nil, err
	}
	if len(globalIndices) != len(tx.Outputs) {
		return nil, fault.ErrOutputIndicesCorrupted
	}

	// outputs unwind newest first so the amount index search stays
	// effectively constant time
	for i := len(globalIndices) - 1; i >= 0; i -= 1 {
		if err := db.removeOutput(w, tx.Outputs[i].Amount, globalIndices[i]); nil != err {
			return nil, err
		}
	}

	if err := w.txn.Del(db.dbis[txOutputsDB], txKey, nil); nil != err {
		return nil, err
	}
	if err := w.txn.Del(db.dbis[txsDB], txKey, nil); nil != err {
		return nil, err
	}
	if err := w.txn.Del(db.dbis[txIndicesDB], txHash[:], nil); nil != err {
		return nil, err
	}

	atomic.AddUint64(&db.numTxs, ^uint64(0))
	atomic.AddUint64(&db.numOutputs, ^uint64(uint64(len(globalIndices))-1))
	return tx, nil
}

// delete one output from every output table
func (db *BlockchainDB) removeOutput(w *writeTxn, amount uint64, globalIndex uint64) error {

	globalKey := uint64Key(globalIndex)

	err := w.txn.Del(db.dbis[outputKeysDB], globalKey, nil)
	if nil != err && !lmdb.IsNotFound(err) {
		return err
	}
	if err := w.txn.Del(db.dbis[outputTxsDB], globalKey, nil); nil != err {
		if lmdb.IsNotFound(err) {
			return fault.ErrOutputNotFound
		}
		return err
	}
	if err := w.txn.Del(db.dbis[outputIndicesDB], globalKey, nil); nil != err {
		if lmdb.IsNotFound(err) {
			return fault.ErrOutputNotFound
		}
		return err
	}

	return db.removeAmountOutputIndex(w, amount, globalIndex)
}

// delete the (amount -> global index) duplicate
//
// removals happen newest first during unwind, so walking back from
// the last duplicate finds the entry almost immediately
func (db *BlockchainDB) removeAmountOutputIndex(w *writeTxn, amount uint64, globalIndex uint64) error {

	cursor, err := w.cursor(outputAmountsDB)
	if nil != err {
		return err
	}

	_, _, err = cursor.Get(uint64Key(amount), nil, lmdb.Set)
	if lmdb.IsNotFound(err) {
		return fault.ErrOutputNotFound
	} else if nil != err {
		return err
	}

	_, value, err := cursor.Get(nil, nil, lmdb.LastDup)
	if nil != err {
		return err
	}

	for {
		if keyToUint64(value) == globalIndex {
			return cursor.Del(0)
		}
		_, value, err = cursor.Get(nil, nil, lmdb.PrevDup)
		if lmdb.IsNotFound(err) {
			return fault.ErrOutputNotFound
		} else if nil != err {
			return err
		}
	}
}
