// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"runtime"
	"sync/atomic"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/fault"
)

// process-wide transaction accounting
//
// a map resize must have exclusive access to the environment: the
// creation gate blocks new transactions and the active counter is
// spun down to zero before the resize proceeds
var (
	numActiveTxns int32  // atomic
	creationGate  uint32 // atomic test-and-set latch
)

// block until the gate is clear, then register one active transaction
func txnRegister() {
	for {
		if 0 == atomic.LoadUint32(&creationGate) {
			atomic.AddInt32(&numActiveTxns, 1)
			if 0 == atomic.LoadUint32(&creationGate) {
				return
			}
			// gate closed while registering: back out and retry
			atomic.AddInt32(&numActiveTxns, -1)
		}
		runtime.Gosched()
	}
}

func txnDeregister() {
	atomic.AddInt32(&numActiveTxns, -1)
}

// close the gate; only one resize at a time may hold it
func preventNewTxns() {
	for !atomic.CompareAndSwapUint32(&creationGate, 0, 1) {
		runtime.Gosched()
	}
}

func waitNoActiveTxns() {
	for atomic.LoadInt32(&numActiveTxns) > 0 {
		runtime.Gosched()
	}
}

func allowNewTxns() {
	atomic.StoreUint32(&creationGate, 0)
}

// writeTxn - scoped write transaction
//
// guarantees abort on any exit path that did not explicitly commit;
// the batch flag only changes who is responsible for ending it
type writeTxn struct {
	db      *BlockchainDB
	txn     *lmdb.Txn
	cursors [subDBCount]*lmdb.Cursor
	isBatch bool
	done    bool
}

// begin a write transaction
//
// the transaction is bound to the calling OS thread until it ends
func (db *BlockchainDB) beginWriteTxn(isBatch bool) (*writeTxn, error) {
	if db.IsReadOnly() {
		return nil, fault.ErrDatabaseIsReadOnly
	}

	txnRegister()
	runtime.LockOSThread()
	txn, err := db.env.BeginTxn(nil, 0)
	if nil != err {
		runtime.UnlockOSThread()
		txnDeregister()
		db.log.Criticalf("cannot begin write transaction: %s", err)
		return nil, fault.ErrTransactionStartFailed
	}
	txn.RawRead = true

	return &writeTxn{
		db:      db,
		txn:     txn,
		isBatch: isBatch,
	}, nil
}

// cursor - cached write cursor for a sub-database slot
func (w *writeTxn) cursor(slot int) (*lmdb.Cursor, error) {
	if nil != w.cursors[slot] {
		return w.cursors[slot], nil
	}
	cursor, err := w.txn.OpenCursor(w.db.dbis[slot])
	if nil != err {
		return nil, err
	}
	w.cursors[slot] = cursor
	return cursor, nil
}

// end of transaction housekeeping shared by commit and abort
func (w *writeTxn) finish() {
	for i := 0; i < subDBCount; i += 1 {
		w.cursors[i] = nil // cursors die with the transaction
	}
	w.txn = nil
	w.done = true
	runtime.UnlockOSThread()
	txnDeregister()
}

// commit - make all mutations durable
func (w *writeTxn) commit() error {
	if w.done {
		return fault.ErrCommitFailed
	}
	err := w.txn.Commit()
	w.finish()
	if nil != err {
		w.db.log.Criticalf("commit failed: %s", err)
		if lmdb.IsMapFull(err) {
			return fault.ErrDatabaseFull
		}
		return fault.ErrCommitFailed
	}
	return nil
}

// abort - discard all mutations; safe to call after commit
func (w *writeTxn) abort() {
	if w.done {
		return
	}
	w.txn.Abort()
	w.finish()
}

// BlockTxnStart - open the per-block write transaction
//
// a no-op when a batch transaction is active
func (db *BlockchainDB) BlockTxnStart() error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if db.batchActive {
		return nil
	}
	if nil != db.writeTxn {
		return fault.ErrBatchAlreadyActive
	}
	txn, err := db.beginWriteTxn(false)
	if nil != err {
		return err
	}
	db.writeTxn = txn
	return nil
}

// BlockTxnStop - commit the per-block write transaction
//
// a no-op when a batch transaction is active
func (db *BlockchainDB) BlockTxnStop() error {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if db.batchActive {
		return nil
	}
	if nil == db.writeTxn {
		return fault.ErrTransactionStartFailed
	}
	err := db.writeTxn.commit()
	db.writeTxn = nil
	return err
}

// BlockTxnAbort - discard the per-block write transaction
//
// a no-op when a batch transaction is active
func (db *BlockchainDB) BlockTxnAbort() {
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if db.batchActive {
		return
	}
	if nil != db.writeTxn {
		db.writeTxn.abort()
		db.writeTxn = nil
	}
}

// run fn inside the current write transaction if one is active,
// otherwise inside a private transaction committed before return
func (db *BlockchainDB) withWriteTxn(fn func(*writeTxn) error) error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()

	if nil != db.writeTxn {
		return fn(db.writeTxn)
	}

	txn, err := db.beginWriteTxn(false)
	if nil != err {
		return err
	}
	if err := fn(txn); nil != err {
		txn.abort()
		return err
	}
	return txn.commit()
}
