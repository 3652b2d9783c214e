// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/storage"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// many blocks inside one batch commit together
func TestBatchInsert(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	require.NoError(t, db.BatchStart(50))
	assert.True(t, db.BatchActive(), "batch active")

	addChain(t, db, 50, 1, 1, 2)
	require.Equal(t, uint64(50), db.Height(), "height inside batch")

	require.NoError(t, db.BatchStop())
	assert.False(t, db.BatchActive(), "batch stopped")

	assert.Equal(t, uint64(50), db.Height(), "height after commit")
	assert.Equal(t, uint64(100), db.GetTxCount(), "txs after commit")
}

// an aborted batch leaves no trace and resyncs the counters
func TestBatchAbort(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	hashes := addChain(t, db, 2, 1, 1, 2)

	require.NoError(t, db.BatchStart(10))
	batched := addChain(t, db, 10, 1, 1, 2)
	require.Equal(t, uint64(12), db.Height(), "height inside batch")

	require.NoError(t, db.BatchAbort())

	assert.Equal(t, uint64(2), db.Height(), "height after abort")
	assert.Equal(t, uint64(4), db.GetTxCount(), "txs after abort")
	assert.Equal(t, uint64(4), db.NumOutputs(), "outputs after abort")

	exists, err := db.BlockExists(batched[0])
	require.NoError(t, err)
	assert.False(t, exists, "batched block gone")

	topHash, err := db.TopBlockHash()
	require.NoError(t, err)
	assert.Equal(t, hashes[1], topHash, "tip unchanged")
}

// a committed batch cannot be resumed: a new BatchStart is required
func TestBatchCommitDoesNotResume(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	require.NoError(t, db.BatchStart(5))
	addChain(t, db, 5, 0, 0, 2)
	require.NoError(t, db.BatchCommit())

	// still in batch mode but with no transaction to write into
	assert.True(t, db.BatchActive(), "batch still active after commit")
	blk, blkHash := makeBlock(mustTopHash(t, db), db.Height(), 2, nil)
	err := db.AddBlock(blk, testBlockSize, 600, 300, blkHash, nil)
	assert.Equal(t, fault.ErrBatchNotActive, err, "write after batch commit")

	require.NoError(t, db.BatchStop())

	// a fresh batch works again
	require.NoError(t, db.BatchStart(5))
	addChain(t, db, 5, 0, 0, 2)
	require.NoError(t, db.BatchStop())
	assert.Equal(t, uint64(10), db.Height(), "height after second batch")
}

// double start and stray stop are rejected
func TestBatchLifecycleErrors(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	assert.Equal(t, fault.ErrBatchNotActive, db.BatchStop(), "stop without start")
	assert.Equal(t, fault.ErrBatchNotActive, db.BatchAbort(), "abort without start")

	require.NoError(t, db.BatchStart(1))
	assert.Equal(t, fault.ErrBatchAlreadyActive, db.BatchStart(1), "double start")
	require.NoError(t, db.BatchAbort())
}

// a store opened with a small map still takes a large batch: the
// pre-batch estimate grows the map before the first insert
func TestBatchResize(t *testing.T) {
	removeFiles()
	defer removeFiles()

	// 4 MiB map: far too small for 1000 blocks carrying ~16 KiB of
	// transaction data each, so the insert only succeeds if the
	// pre-batch estimate resized the map
	db, err := storage.OpenSized(databaseDirectory, 0, 4<<20)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.BatchStart(1000))

	previous := digest.Digest{}
	for height := uint64(0); height < 1000; height += 1 {
		tx := makeTx(height+1, 3, 1)
		tx.Extra = make([]byte, 16*1024)
		tx.Extra[0] = byte(height)

		blk, blkHash := makeBlock(previous, height, 3, []*transactionrecord.Transaction{tx})
		err := db.AddBlock(blk, 17000, 100*(height+1), 50*(height+1), blkHash,
			[]*transactionrecord.Transaction{tx})
		require.NoError(t, err, "add block %d", height)
		previous = blkHash
	}

	require.NoError(t, db.BatchStop())
	assert.Equal(t, uint64(1000), db.Height(), "height after large batch")
}

func mustTopHash(t *testing.T, db *storage.BlockchainDB) digest.Digest {
	topHash, err := db.TopBlockHash()
	if nil != err {
		t.Fatalf("top block hash error: %s", err)
	}
	return topHash
}
