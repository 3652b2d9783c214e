// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// value stored against every spent key image
var spentMarker = []byte{0}

// AddSpentKey - record a key image as spent
func (db *BlockchainDB) AddSpentKey(keyImage transactionrecord.KeyImage) error {
	return db.withWriteTxn(func(w *writeTxn) error {
		return db.addSpentKey(w, keyImage)
	})
}

func (db *BlockchainDB) addSpentKey(w *writeTxn, keyImage transactionrecord.KeyImage) error {
	err := w.txn.Put(db.dbis[spentKeysDB], keyImage[:], spentMarker, lmdb.NoOverwrite)
	if lmdb.IsErrno(err, lmdb.KeyExist) {
		return fault.ErrKeyImageExists
	}
	return mapFull(err)
}

// RemoveSpentKey - forget a spent key image
//
// removing a key image that is not present is a no-op
func (db *BlockchainDB) RemoveSpentKey(keyImage transactionrecord.KeyImage) error {
	return db.withWriteTxn(func(w *writeTxn) error {
		return db.removeSpentKey(w, keyImage)
	})
}

func (db *BlockchainDB) removeSpentKey(w *writeTxn, keyImage transactionrecord.KeyImage) error {
	err := w.txn.Del(db.dbis[spentKeysDB], keyImage[:], nil)
	if lmdb.IsNotFound(err) {
		db.log.Debugf("remove of unknown key image: %x", keyImage[:])
		return nil
	}
	return err
}

// HasKeyImage - true when the key image has been recorded as spent
func (db *BlockchainDB) HasKeyImage(keyImage transactionrecord.KeyImage) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	_, err = r.txn.Get(db.dbis[spentKeysDB], keyImage[:])
	if lmdb.IsNotFound(err) {
		return false, nil
	} else if nil != err {
		return false, err
	}
	return true, nil
}
