// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage_test

import (
	"encoding/binary"
	"testing"

	"github.com/bmatsuo/lmdb-go/lmdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/storage"
)

// a fresh store is empty
func TestOpenEmpty(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	assert.Equal(t, uint64(0), db.Height(), "height")
	assert.Equal(t, uint64(0), db.GetTxCount(), "tx count")
	assert.Equal(t, uint64(0), db.NumOutputs(), "output count")
	assert.False(t, db.IsReadOnly(), "read only")

	topHash, err := db.TopBlockHash()
	require.NoError(t, err)
	assert.Zero(t, topHash, "top hash of empty chain")

	assert.Len(t, db.Filenames(), 2, "backing files")
}

// data survives close and reopen, counters resync from the store
func TestReopen(t *testing.T) {
	db := setup(t)
	defer removeFiles()

	hashes := addChain(t, db, 3, 1, 2, 10)
	db.Close()

	db, err := storage.Open(databaseDirectory, 0)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, uint64(3), db.Height(), "height after reopen")
	assert.Equal(t, uint64(6), db.GetTxCount(), "txs after reopen") // 3 miner + 3 normal
	assert.Equal(t, uint64(9), db.NumOutputs(), "outputs after reopen")

	topHash, err := db.TopBlockHash()
	require.NoError(t, err)
	assert.Equal(t, hashes[2], topHash, "top hash after reopen")
}

// a store tagged with a higher format version must refuse to open
func TestOpenIncompatibleVersion(t *testing.T) {
	db := setup(t)
	addChain(t, db, 1, 0, 0, 10)
	db.Close()
	defer removeFiles()

	// rewrite the version property underneath the store
	env, err := lmdb.NewEnv()
	require.NoError(t, err)
	require.NoError(t, env.SetMaxDBs(20))
	require.NoError(t, env.Open(databaseDirectory, lmdb.NoTLS, 0600))
	err = env.Update(func(txn *lmdb.Txn) error {
		dbi, err := txn.OpenDBI("properties", 0)
		if nil != err {
			return err
		}
		value := make([]byte, 4)
		binary.LittleEndian.PutUint32(value, storage.Version+1)
		return txn.Put(dbi, []byte("version"), value, 0)
	})
	require.NoError(t, err)
	env.Close()

	_, err = storage.Open(databaseDirectory, 0)
	assert.Equal(t, fault.ErrIncompatibleDatabaseVersion, err, "open must refuse")
}

// reset drops every sub-database but keeps the store usable
func TestReset(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 2, 1, 1, 5)
	require.Equal(t, uint64(2), db.Height())

	require.NoError(t, db.Reset())

	assert.Equal(t, uint64(0), db.Height(), "height after reset")
	assert.Equal(t, uint64(0), db.GetTxCount(), "txs after reset")
	assert.Equal(t, uint64(0), db.NumOutputs(), "outputs after reset")

	count, err := db.GetNumOutputs(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count, "amount index after reset")

	// still writable
	addChain(t, db, 1, 0, 0, 5)
	assert.Equal(t, uint64(1), db.Height(), "height after reset and insert")
}

// a read only handle rejects mutation
func TestReadOnly(t *testing.T) {
	db := setup(t)
	addChain(t, db, 1, 1, 1, 7)
	db.Close()
	defer removeFiles()

	db, err := storage.Open(databaseDirectory, storage.ReadOnly)
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.IsReadOnly())
	assert.Equal(t, uint64(1), db.Height())

	err = db.AddSpentKey(makeKeyImage(1))
	assert.Equal(t, fault.ErrDatabaseIsReadOnly, err, "write on read only store")

	_, _, err = db.PopBlock()
	assert.Equal(t, fault.ErrDatabaseIsReadOnly, err, "pop on read only store")
}

// sync is callable at any time
func TestSync(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 1, 0, 0, 1)
	assert.NoError(t, db.Sync())
}
