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
	"github.com/mantlecoin/mantled/transactionrecord"
)

// genesis: one coinbase with a single output of amount 10
func TestAddGenesisBlock(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	blk, blkHash := makeBlock(digest.Digest{}, 0, 10, nil)
	err := db.AddBlock(blk, testBlockSize, 1, 10, blkHash, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), db.Height(), "height")

	count, err := db.GetNumOutputs(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count, "outputs of amount 10")

	txHash, localIndex, err := db.GetOutputTxAndIndex(10, 0)
	require.NoError(t, err)
	assert.Equal(t, blk.MinerTx.Pack().Digest(), txHash, "owning tx")
	assert.Equal(t, uint64(0), localIndex, "local index")

	exists, err := db.BlockExists(blkHash)
	require.NoError(t, err)
	assert.True(t, exists, "block exists")

	height, err := db.GetBlockHeight(blkHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height, "height by hash")
}

// stored blocks and metadata round trip
func TestBlockRoundTrip(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	hashes := addChain(t, db, 3, 2, 1, 4)

	for height := uint64(0); height < 3; height += 1 {
		blk, err := db.GetBlockFromHeight(height)
		require.NoError(t, err)
		assert.Equal(t, uint32(height), blk.Nonce, "nonce at height %d", height)
		assert.Equal(t, 2, len(blk.TxHashes), "tx hashes at height %d", height)

		hash, err := db.GetBlockHashFromHeight(height)
		require.NoError(t, err)
		assert.Equal(t, hashes[height], hash, "hash at height %d", height)

		byHash, err := db.GetBlock(hashes[height])
		require.NoError(t, err)
		assert.Equal(t, blk, byHash, "block by hash at height %d", height)

		header, err := db.GetBlockHeader(hashes[height])
		require.NoError(t, err)
		assert.Equal(t, blk.Header, *header, "header at height %d", height)

		timestamp, err := db.GetBlockTimestamp(height)
		require.NoError(t, err)
		assert.Equal(t, blk.Timestamp, timestamp, "timestamp at height %d", height)

		size, err := db.GetBlockSize(height)
		require.NoError(t, err)
		assert.Equal(t, uint64(testBlockSize), size, "size at height %d", height)

		coins, err := db.GetBlockAlreadyGeneratedCoins(height)
		require.NoError(t, err)
		assert.Equal(t, 50*(height+1), coins, "coins at height %d", height)
	}

	topTimestamp, err := db.GetTopBlockTimestamp()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000+60*2), topTimestamp, "top timestamp")

	blocks, err := db.GetBlocksRange(0, 2)
	require.NoError(t, err)
	assert.Len(t, blocks, 3, "blocks range")

	rangeHashes, err := db.GetHashesRange(1, 2)
	require.NoError(t, err)
	assert.Equal(t, hashes[1:], rangeHashes, "hashes range")
}

// difficulty is the difference of cumulative difficulties
func TestBlockDifficulty(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 3, 0, 0, 1) // cumulative difficulty 100, 200, 300

	cum, err := db.GetBlockCumulativeDifficulty(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), cum, "cumulative")

	diff, err := db.GetBlockDifficulty(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), diff, "genesis difficulty is its cumulative value")

	diff, err = db.GetBlockDifficulty(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), diff, "difficulty at height 2")
}

// transactions are reachable by hash with their metadata
func TestTransactionRoundTrip(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	tx := makeTx(42, 25, 3)
	txHash := tx.Pack().Digest()

	blk, blkHash := makeBlock(digest.Digest{}, 0, 25, []*transactionrecord.Transaction{tx})
	require.NoError(t, db.AddBlock(blk, testBlockSize, 1, 25, blkHash, []*transactionrecord.Transaction{tx}))

	exists, err := db.TxExists(txHash)
	require.NoError(t, err)
	assert.True(t, exists, "tx exists")

	stored, err := db.GetTx(txHash)
	require.NoError(t, err)
	assert.Equal(t, tx, stored, "stored tx")

	unlockTime, err := db.GetTxUnlockTime(txHash)
	require.NoError(t, err)
	assert.Equal(t, tx.UnlockTime, unlockTime, "unlock time")

	height, err := db.GetTxBlockHeight(txHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height, "tx block height")

	assert.Equal(t, uint64(2), db.GetTxCount(), "tx count includes miner tx")

	list, err := db.GetTxList([]digest.Digest{txHash, blk.MinerTx.Pack().Digest()})
	require.NoError(t, err)
	assert.Len(t, list, 2, "tx list")

	// unknown hash is a miss
	exists, err = db.TxExists(digest.NewDigest([]byte("missing")))
	require.NoError(t, err)
	assert.False(t, exists, "missing tx")

	_, err = db.GetTx(digest.NewDigest([]byte("missing")))
	assert.Equal(t, fault.ErrTransactionNotFound, err, "missing tx error")
}

// inserting the same block twice must fail with no net mutation
func TestAddDuplicateBlock(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	blk, blkHash := makeBlock(digest.Digest{}, 0, 10, nil)
	require.NoError(t, db.AddBlock(blk, testBlockSize, 1, 10, blkHash, nil))

	err := db.AddBlock(blk, testBlockSize, 1, 10, blkHash, nil)
	assert.Equal(t, fault.ErrBlockExists, err, "duplicate block")

	assert.Equal(t, uint64(1), db.Height(), "height unchanged")
	assert.Equal(t, uint64(1), db.GetTxCount(), "tx count unchanged")
	assert.Equal(t, uint64(1), db.NumOutputs(), "output count unchanged")
}

// a block whose prev_id is not the tip hash must be rejected unchanged
func TestAddBlockParentMismatch(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 2, 1, 1, 3)

	wrongParent := digest.NewDigest([]byte("not the tip"))
	blk, blkHash := makeBlock(wrongParent, 2, 3, nil)

	err := db.AddBlock(blk, testBlockSize, 300, 150, blkHash, nil)
	assert.Equal(t, fault.ErrPreviousBlockDigestDoesNotMatch, err, "parent mismatch")

	assert.Equal(t, uint64(2), db.Height(), "height unchanged")
	assert.Equal(t, uint64(4), db.GetTxCount(), "tx count unchanged")
	assert.Equal(t, uint64(4), db.NumOutputs(), "output count unchanged")

	exists, err := db.BlockExists(blkHash)
	require.NoError(t, err)
	assert.False(t, exists, "rejected block absent")
}

// add then pop returns to the exact prior state
func TestPopBlock(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 2, 1, 2, 9)

	preHeight := db.Height()
	preTxs := db.GetTxCount()
	preOutputs := db.NumOutputs()
	preAmount, err := db.GetNumOutputs(9)
	require.NoError(t, err)

	hashes := addChain(t, db, 1, 2, 2, 9)
	require.Equal(t, preHeight+1, db.Height())

	blk, txs, err := db.PopBlock()
	require.NoError(t, err)
	assert.Equal(t, hashes[0], blk.Pack().Digest(), "popped block")
	assert.Len(t, txs, 2, "popped transactions")

	assert.Equal(t, preHeight, db.Height(), "height restored")
	assert.Equal(t, preTxs, db.GetTxCount(), "tx count restored")
	assert.Equal(t, preOutputs, db.NumOutputs(), "output count restored")

	amount, err := db.GetNumOutputs(9)
	require.NoError(t, err)
	assert.Equal(t, preAmount, amount, "amount index restored")

	exists, err := db.BlockExists(hashes[0])
	require.NoError(t, err)
	assert.False(t, exists, "popped block gone")

	for _, tx := range txs {
		exists, err := db.TxExists(tx.Pack().Digest())
		require.NoError(t, err)
		assert.False(t, exists, "popped tx gone")
	}

	// the key images of the popped txs are unspent again
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			spent, err := db.HasKeyImage(in.KeyImage)
			require.NoError(t, err)
			assert.False(t, spent, "key image unspent after pop")
		}
	}
}

// popping an empty chain is an error
func TestPopBlockEmpty(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	_, _, err := db.PopBlock()
	assert.Equal(t, fault.ErrBlockNotFound, err, "pop on empty chain")
}

// an unsupported output target is rejected and rolls back cleanly
func TestAddBlockUnsupportedOutput(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	tx := makeTx(7, 2, 1)
	tx.Outputs[0].TargetTag = 0x99

	blk, blkHash := makeBlock(digest.Digest{}, 0, 2, []*transactionrecord.Transaction{tx})
	err := db.AddBlock(blk, testBlockSize, 1, 2, blkHash, []*transactionrecord.Transaction{tx})
	assert.Equal(t, fault.ErrUnsupportedOutputType, err, "unsupported output")

	assert.Equal(t, uint64(0), db.Height(), "height unchanged")
	assert.Equal(t, uint64(0), db.GetTxCount(), "tx count restored")
	assert.Equal(t, uint64(0), db.NumOutputs(), "output count restored")
}

// a mismatched transaction list is rejected before any mutation
func TestAddBlockTxCountMismatch(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	tx := makeTx(11, 5, 1)
	blk, blkHash := makeBlock(digest.Digest{}, 0, 5, []*transactionrecord.Transaction{tx})

	err := db.AddBlock(blk, testBlockSize, 1, 5, blkHash, nil)
	assert.Equal(t, fault.ErrTransactionCountMismatch, err)
	assert.Equal(t, uint64(0), db.Height())
}
