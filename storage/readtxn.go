// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"sync"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/fault"
)

// readTxn - a reusable read-only transaction with cached cursors
//
// the transaction is renewed on acquire and reset on release so the
// snapshot advances between top level reads; the valid bitmap tracks
// which cached cursors have been renewed onto the current snapshot
type readTxn struct {
	txn     *lmdb.Txn
	cursors [subDBCount]*lmdb.Cursor
	valid   uint32 // bit per cursor slot
	write   bool   // view over the active write transaction
}

// cursor - cached read cursor for a sub-database slot, renewing it
// onto the current snapshot when necessary
func (r *readTxn) cursor(db *BlockchainDB, slot int) (*lmdb.Cursor, error) {
	bit := uint32(1) << uint(slot)
	if nil != r.cursors[slot] {
		if 0 != r.valid&bit {
			return r.cursors[slot], nil
		}
		if err := r.cursors[slot].Renew(r.txn); nil != err {
			return nil, err
		}
		r.valid |= bit
		return r.cursors[slot], nil
	}

	cursor, err := r.txn.OpenCursor(db.dbis[slot])
	if nil != err {
		return nil, err
	}
	r.cursors[slot] = cursor
	r.valid |= bit
	return cursor, nil
}

// readTxnPool - free list of reusable read transactions
//
// the original keeps one read transaction per thread; goroutines are
// not pinned to threads so a shared pool gives the same reuse
type readTxnPool struct {
	sync.Mutex
	free []*readTxn
}

func (p *readTxnPool) get() *readTxn {
	p.Lock()
	defer p.Unlock()
	n := len(p.free)
	if 0 == n {
		return nil
	}
	r := p.free[n-1]
	p.free = p.free[:n-1]
	return r
}

func (p *readTxnPool) put(r *readTxn) {
	p.Lock()
	p.free = append(p.free, r)
	p.Unlock()
}

// close - abort every pooled transaction; called once at store close
func (p *readTxnPool) close() {
	p.Lock()
	defer p.Unlock()
	for _, r := range p.free {
		for i := 0; i < subDBCount; i += 1 {
			if nil != r.cursors[i] {
				r.cursors[i].Close()
				r.cursors[i] = nil
			}
		}
		r.txn.Abort()
		r.txn = nil
	}
	p.free = nil
}

// beginRead - acquire a read snapshot
//
// registers with the transaction accounting so a concurrent resize
// waits for the read to finish
func (db *BlockchainDB) beginRead() (*readTxn, error) {
	if !db.open {
		return nil, fault.ErrNotInitialised
	}

	// the writer observes its own uncommitted mutations: reads issued
	// while a write transaction is active run inside it; this only
	// works from the goroutine driving the writes
	if w := db.writeTxn; nil != w {
		return &readTxn{txn: w.txn, write: true}, nil
	}

	txnRegister()

	r := db.readPool.get()
	if nil != r {
		if err := r.txn.Renew(); nil != err {
			// renewal failure: throw the transaction away
			r.txn.Abort()
			txnDeregister()
			db.log.Criticalf("cannot renew read transaction: %s", err)
			return nil, fault.ErrTransactionStartFailed
		}
		r.valid = 0 // cursors must renew onto the new snapshot
		return r, nil
	}

	txn, err := db.env.BeginTxn(nil, lmdb.Readonly)
	if nil != err {
		txnDeregister()
		db.log.Criticalf("cannot begin read transaction: %s", err)
		return nil, fault.ErrTransactionStartFailed
	}
	txn.RawRead = true

	return &readTxn{txn: txn}, nil
}

// endRead - reset the snapshot and return the transaction to the pool
//
// a view over the write transaction only closes its cursors; the
// transaction itself belongs to the write path
func (db *BlockchainDB) endRead(r *readTxn) {
	if r.write {
		for i := 0; i < subDBCount; i += 1 {
			if nil != r.cursors[i] {
				r.cursors[i].Close()
				r.cursors[i] = nil
			}
		}
		return
	}
	r.txn.Reset()
	r.valid = 0
	db.readPool.put(r)
	txnDeregister()
}
