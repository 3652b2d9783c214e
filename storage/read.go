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

// Height - number of blocks in the chain
//
// the cached counter; only trustworthy outside a concurrent write
func (db *BlockchainDB) Height() uint64 {
	return atomic.LoadUint64(&db.height)
}

// GetTxCount - number of stored transactions
func (db *BlockchainDB) GetTxCount() uint64 {
	return atomic.LoadUint64(&db.numTxs)
}

// NumOutputs - number of stored outputs across all amounts
func (db *BlockchainDB) NumOutputs() uint64 {
	return atomic.LoadUint64(&db.numOutputs)
}

// BlockExists - true when a block with this hash is stored
func (db *BlockchainDB) BlockExists(blkHash digest.Digest) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	_, err = r.txn.Get(db.dbis[blockHeightsDB], blkHash[:])
	if lmdb.IsNotFound(err) {
		return false, nil
	} else if nil != err {
		return false, err
	}
	return true, nil
}

// GetBlockHeight - height of the block with this hash
func (db *BlockchainDB) GetBlockHeight(blkHash digest.Digest) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)
	return db.getBlockHeight(r, blkHash)
}

func (db *BlockchainDB) getBlockHeight(r *readTxn, blkHash digest.Digest) (uint64, error) {
	value, err := r.txn.Get(db.dbis[blockHeightsDB], blkHash[:])
	if lmdb.IsNotFound(err) {
		return 0, fault.ErrBlockNotFound
	} else if nil != err {
		return 0, err
	}
	return keyToUint64(value), nil
}

// GetBlock - the block with this hash
func (db *BlockchainDB) GetBlock(blkHash digest.Digest) (*blockrecord.Block, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)

	height, err := db.getBlockHeight(r, blkHash)
	if nil != err {
		return nil, err
	}
	return db.getBlockFromHeight(r, height)
}

// GetBlockFromHeight - the block at this height
func (db *BlockchainDB) GetBlockFromHeight(height uint64) (*blockrecord.Block, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)
	return db.getBlockFromHeight(r, height)
}

func (db *BlockchainDB) getBlockFromHeight(r *readTxn, height uint64) (*blockrecord.Block, error) {
	blob, err := r.txn.Get(db.dbis[blocksDB], uint64Key(height))
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrBlockNotFound
	} else if nil != err {
		return nil, err
	}
	return blockrecord.Packed(blob).Unpack()
}

// GetBlockHeader - just the header of the block with this hash
func (db *BlockchainDB) GetBlockHeader(blkHash digest.Digest) (*blockrecord.Header, error) {
	blk, err := db.GetBlock(blkHash)
	if nil != err {
		return nil, err
	}
	header := blk.Header
	return &header, nil
}

// fetch the fixed size metadata record for a height
func (db *BlockchainDB) getBlockInfo(r *readTxn, height uint64) (*blockInfo, error) {
	buffer, err := r.txn.Get(db.dbis[blockInfoDB], uint64Key(height))
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrBlockNotFound
	} else if nil != err {
		return nil, err
	}
	return unpackBlockInfo(buffer)
}

// GetBlockTimestamp - timestamp recorded for the block at a height
func (db *BlockchainDB) GetBlockTimestamp(height uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return 0, err
	}
	return bi.timestamp, nil
}

// GetTopBlockTimestamp - timestamp of the chain tip
func (db *BlockchainDB) GetTopBlockTimestamp() (uint64, error) {
	height := atomic.LoadUint64(&db.height)
	if 0 == height {
		return 0, fault.ErrBlockNotFound
	}
	return db.GetBlockTimestamp(height - 1)
}

// GetBlockSize - stored size of the block at a height
func (db *BlockchainDB) GetBlockSize(height uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return 0, err
	}
	return bi.blockSize, nil
}

// GetBlockCumulativeDifficulty - total chain work up to a height
func (db *BlockchainDB) GetBlockCumulativeDifficulty(height uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return 0, err
	}
	return bi.cumulativeDifficulty, nil
}

// GetBlockDifficulty - work of the single block at a height
func (db *BlockchainDB) GetBlockDifficulty(height uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return 0, err
	}
	if 0 == height {
		return bi.cumulativeDifficulty, nil
	}
	previous, err := db.getBlockInfo(r, height-1)
	if nil != err {
		return 0, err
	}
	return bi.cumulativeDifficulty - previous.cumulativeDifficulty, nil
}

// GetBlockAlreadyGeneratedCoins - coin supply after the block at a height
func (db *BlockchainDB) GetBlockAlreadyGeneratedCoins(height uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return 0, err
	}
	return bi.generatedCoins, nil
}

// GetBlockHashFromHeight - hash of the block at a height
func (db *BlockchainDB) GetBlockHashFromHeight(height uint64) (digest.Digest, error) {
	r, err := db.beginRead()
	if nil != err {
		return digest.Digest{}, err
	}
	defer db.endRead(r)

	bi, err := db.getBlockInfo(r, height)
	if nil != err {
		return digest.Digest{}, err
	}
	return bi.hash, nil
}

// GetBlocksRange - blocks for heights h1..h2 inclusive
func (db *BlockchainDB) GetBlocksRange(h1 uint64, h2 uint64) ([]*blockrecord.Block, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)

	blocks := make([]*blockrecord.Block, 0, h2-h1+1)
	for height := h1; height <= h2; height += 1 {
		blk, err := db.getBlockFromHeight(r, height)
		if nil != err {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

// GetHashesRange - block hashes for heights h1..h2 inclusive
func (db *BlockchainDB) GetHashesRange(h1 uint64, h2 uint64) ([]digest.Digest, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)

	hashes := make([]digest.Digest, 0, h2-h1+1)
	for height := h1; height <= h2; height += 1 {
		bi, err := db.getBlockInfo(r, height)
		if nil != err {
			return nil, err
		}
		hashes = append(hashes, bi.hash)
	}
	return hashes, nil
}

// TopBlockHash - hash of the chain tip, zero digest on an empty chain
func (db *BlockchainDB) TopBlockHash() (digest.Digest, error) {
	height := atomic.LoadUint64(&db.height)
	if 0 == height {
		return digest.Digest{}, nil
	}
	return db.GetBlockHashFromHeight(height - 1)
}

// TxExists - true when a transaction with this hash is stored
func (db *BlockchainDB) TxExists(txHash digest.Digest) (bool, error) {
	r, err := db.beginRead()
	if nil != err {
		return false, err
	}
	defer db.endRead(r)

	_, err = r.txn.Get(db.dbis[txIndicesDB], txHash[:])
	if lmdb.IsNotFound(err) {
		return false, nil
	} else if nil != err {
		return false, err
	}
	return true, nil
}

// GetTxIndex - internal dense index of the transaction with this hash
func (db *BlockchainDB) GetTxIndex(txHash digest.Digest) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	ti, err := db.getTxIndex(r, txHash)
	if nil != err {
		return 0, err
	}
	return ti.txIndex, nil
}

func (db *BlockchainDB) getTxIndex(r *readTxn, txHash digest.Digest) (*txIndex, error) {
	buffer, err := r.txn.Get(db.dbis[txIndicesDB], txHash[:])
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrTransactionNotFound
	} else if nil != err {
		return nil, err
	}
	return unpackTxIndex(buffer)
}

// GetTx - the transaction with this hash
func (db *BlockchainDB) GetTx(txHash digest.Digest) (*transactionrecord.Transaction, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)
	return db.getTx(r, txHash)
}

func (db *BlockchainDB) getTx(r *readTxn, txHash digest.Digest) (*transactionrecord.Transaction, error) {
	ti, err := db.getTxIndex(r, txHash)
	if nil != err {
		return nil, err
	}
	blob, err := r.txn.Get(db.dbis[txsDB], uint64Key(ti.txIndex))
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrTransactionNotFound
	} else if nil != err {
		return nil, err
	}
	tx, _, err := transactionrecord.Packed(blob).Unpack()
	return tx, err
}

// GetTxUnlockTime - unlock time recorded for a transaction
func (db *BlockchainDB) GetTxUnlockTime(txHash digest.Digest) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	ti, err := db.getTxIndex(r, txHash)
	if nil != err {
		return 0, err
	}
	return ti.unlockTime, nil
}

// GetTxBlockHeight - height of the block holding a transaction
func (db *BlockchainDB) GetTxBlockHeight(txHash digest.Digest) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	ti, err := db.getTxIndex(r, txHash)
	if nil != err {
		return 0, err
	}
	return ti.height, nil
}

// GetTxList - transactions for a list of hashes
//
// fails on the first missing hash
func (db *BlockchainDB) GetTxList(txHashes []digest.Digest) ([]*transactionrecord.Transaction, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)

	txs := make([]*transactionrecord.Transaction, 0, len(txHashes))
	for _, txHash := range txHashes {
		tx, err := db.getTx(r, txHash)
		if nil != err {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
