// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/fault"
)

// hard fork metadata is the only state that may be rewritten in place

// SetHardForkStartingHeight - record the first height of a fork version
func (db *BlockchainDB) SetHardForkStartingHeight(version byte, height uint64) error {
	return db.withWriteTxn(func(w *writeTxn) error {
		return mapFull(w.txn.Put(db.dbis[hfStartingHeightsDB], []byte{version}, uint64Key(height), 0))
	})
}

// GetHardForkStartingHeight - first height of a fork version
func (db *BlockchainDB) GetHardForkStartingHeight(version byte) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	value, err := r.txn.Get(db.dbis[hfStartingHeightsDB], []byte{version})
	if lmdb.IsNotFound(err) {
		return 0, fault.ErrVersionNotFound
	} else if nil != err {
		return 0, err
	}
	return keyToUint64(value), nil
}

// SetHardForkVersion - record the fork version in force at a height
func (db *BlockchainDB) SetHardForkVersion(height uint64, version byte) error {
	return db.withWriteTxn(func(w *writeTxn) error {
		return mapFull(w.txn.Put(db.dbis[hfVersionsDB], uint64Key(height), []byte{version}, 0))
	})
}

// GetHardForkVersion - fork version in force at a height
func (db *BlockchainDB) GetHardForkVersion(height uint64) (byte, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	value, err := r.txn.Get(db.dbis[hfVersionsDB], uint64Key(height))
	if lmdb.IsNotFound(err) {
		return 0, fault.ErrVersionNotFound
	} else if nil != err {
		return 0, err
	}
	if 1 != len(value) {
		return 0, fault.ErrCorruptedRecord
	}
	return value[0], nil
}

// DropHardForkInfo - clear both hard fork tables
//
// used when the fork tables must be rebuilt after a rule remap
func (db *BlockchainDB) DropHardForkInfo() error {
	return db.withWriteTxn(func(w *writeTxn) error {
		if err := w.txn.Drop(db.dbis[hfStartingHeightsDB], false); nil != err {
			return err
		}
		return w.txn.Drop(db.dbis[hfVersionsDB], false)
	})
}
