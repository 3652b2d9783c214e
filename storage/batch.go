// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/mantlecoin/mantled/fault"
)

// BatchStart - begin a long lived write transaction covering many
// block inserts
//
// batchNumBlocks sizes the pre-batch map resize check; zero falls
// back to the percentage trigger
func (db *BlockchainDB) BatchStart(batchNumBlocks uint64) error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	if db.IsReadOnly() {
		return fault.ErrDatabaseIsReadOnly
	}

	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if db.batchActive {
		return fault.ErrBatchAlreadyActive
	}
	if nil != db.writeTxn {
		return fault.ErrBatchAlreadyActive
	}

	// the resize must happen before the batch transaction opens
	if err := db.checkAndResizeForBatch(batchNumBlocks); nil != err {
		return err
	}

	txn, err := db.beginWriteTxn(true)
	if nil != err {
		return err
	}
	db.writeTxn = txn
	db.batchActive = true
	db.log.Debug("batch transaction started")
	return nil
}

// BatchCommit - commit the batch transaction
//
// the transaction is discarded and not replaced: the caller must
// BatchStart again before further batched writes
func (db *BlockchainDB) BatchCommit() error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if !db.batchActive {
		return fault.ErrBatchNotActive
	}
	if nil == db.writeTxn {
		return fault.ErrBatchNotActive
	}

	err := db.writeTxn.commit()
	db.writeTxn = nil
	if nil != err {
		return err
	}
	db.log.Debug("batch transaction committed")
	return nil
}

// BatchStop - commit the batch transaction and leave batch mode
func (db *BlockchainDB) BatchStop() error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if !db.batchActive {
		return fault.ErrBatchNotActive
	}

	var err error
	if nil != db.writeTxn {
		err = db.writeTxn.commit()
		db.writeTxn = nil
	}
	db.batchActive = false
	if nil != err {
		return err
	}
	db.log.Debug("batch transaction stopped")
	return nil
}

// BatchAbort - discard the batch transaction without committing
func (db *BlockchainDB) BatchAbort() error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()
	return db.abortBatchLocked()
}

func (db *BlockchainDB) abortBatchLocked() error {
	if !db.batchActive {
		return fault.ErrBatchNotActive
	}
	if nil != db.writeTxn {
		db.writeTxn.abort()
		db.writeTxn = nil
	}
	db.batchActive = false

	// mutations are gone: counters must match the store again
	if err := db.resyncCounters(); nil != err {
		return err
	}
	db.cumSize = 0
	db.cumCount = 0
	db.log.Debug("batch transaction aborted")
	return nil
}

// BatchActive - true while a batch transaction is live
func (db *BlockchainDB) BatchActive() bool {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()
	return db.batchActive
}
