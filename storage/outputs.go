// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/mantlecoin/mantled/digest"
	"github.com/mantlecoin/mantled/fault"
)

// GetNumOutputs - number of outputs recorded for an amount
//
// an amount that was never inserted yields zero, not an error
func (db *BlockchainDB) GetNumOutputs(amount uint64) (uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return 0, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, outputAmountsDB)
	if nil != err {
		return 0, err
	}

	_, _, err = cursor.Get(uint64Key(amount), nil, lmdb.Set)
	if lmdb.IsNotFound(err) {
		return 0, nil
	} else if nil != err {
		return 0, err
	}
	return cursor.Count()
}

// GetOutputKey - ring data for the output with a global index
func (db *BlockchainDB) GetOutputKey(globalIndex uint64) (*OutputKey, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)
	return db.getOutputKey(r, globalIndex)
}

func (db *BlockchainDB) getOutputKey(r *readTxn, globalIndex uint64) (*OutputKey, error) {
	buffer, err := r.txn.Get(db.dbis[outputKeysDB], uint64Key(globalIndex))
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrOutputNotFound
	} else if nil != err {
		return nil, err
	}
	return unpackOutputKey(buffer)
}

// GetOutputKeyByAmount - ring data for the k-th output of an amount
func (db *BlockchainDB) GetOutputKeyByAmount(amount uint64, amountIndex uint64) (*OutputKey, error) {
	globalIndex, err := db.GetOutputGlobalIndex(amount, amountIndex)
	if nil != err {
		return nil, err
	}
	return db.GetOutputKey(globalIndex)
}

// GetOutputTxAndIndexFromGlobal - owning tx hash and local index of an output
func (db *BlockchainDB) GetOutputTxAndIndexFromGlobal(globalIndex uint64) (digest.Digest, uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return digest.Digest{}, 0, err
	}
	defer db.endRead(r)
	return db.getOutputTxAndIndex(r, globalIndex)
}

func (db *BlockchainDB) getOutputTxAndIndex(r *readTxn, globalIndex uint64) (digest.Digest, uint64, error) {
	globalKey := uint64Key(globalIndex)

	value, err := r.txn.Get(db.dbis[outputTxsDB], globalKey)
	if lmdb.IsNotFound(err) {
		return digest.Digest{}, 0, fault.ErrOutputNotFound
	} else if nil != err {
		return digest.Digest{}, 0, err
	}
	var txHash digest.Digest
	if err := digest.DigestFromBytes(&txHash, value); nil != err {
		return digest.Digest{}, 0, err
	}

	value, err = r.txn.Get(db.dbis[outputIndicesDB], globalKey)
	if lmdb.IsNotFound(err) {
		return digest.Digest{}, 0, fault.ErrOutputNotFound
	} else if nil != err {
		return digest.Digest{}, 0, err
	}
	return txHash, keyToUint64(value), nil
}

// GetOutputTxAndIndex - owning tx hash and local index of the k-th
// output of an amount
func (db *BlockchainDB) GetOutputTxAndIndex(amount uint64, amountIndex uint64) (digest.Digest, uint64, error) {
	globalIndex, err := db.GetOutputGlobalIndex(amount, amountIndex)
	if nil != err {
		return digest.Digest{}, 0, err
	}
	return db.GetOutputTxAndIndexFromGlobal(globalIndex)
}

// GetTxAmountOutputIndices - per-amount indices of a transaction's outputs
func (db *BlockchainDB) GetTxAmountOutputIndices(txIndex uint64) ([]uint64, error) {
	amountIndices, _, err := db.GetAmountAndGlobalOutputIndices(txIndex)
	return amountIndices, err
}

// GetAmountAndGlobalOutputIndices - both output id lists of a transaction
func (db *BlockchainDB) GetAmountAndGlobalOutputIndices(txIndex uint64) ([]uint64, []uint64, error) {
	r, err := db.beginRead()
	if nil != err {
		return nil, nil, err
	}
	defer db.endRead(r)

	buffer, err := r.txn.Get(db.dbis[txOutputsDB], uint64Key(txIndex))
	if lmdb.IsNotFound(err) {
		return nil, nil, fault.ErrTransactionNotFound
	} else if nil != err {
		return nil, nil, err
	}
	return unpackOutputIndices(buffer)
}

// GetOutputGlobalIndex - global index of the k-th output of an amount
func (db *BlockchainDB) GetOutputGlobalIndex(amount uint64, amountIndex uint64) (uint64, error) {
	globalIndices, err := db.GetOutputGlobalIndices(amount, []uint64{amountIndex})
	if nil != err {
		return 0, err
	}
	if 1 != len(globalIndices) {
		return 0, fault.ErrOutputNotFound
	}
	return globalIndices[0], nil
}

// GetOutputGlobalIndices - bulk translation of per-amount offsets to
// global output indices
//
// the hot path for ring member selection.  offsets must be ascending;
// an offset past the end of the amount's list truncates the result at
// that point (partial results are permitted)
func (db *BlockchainDB) GetOutputGlobalIndices(amount uint64, offsets []uint64) ([]uint64, error) {
	if !db.open {
		return nil, fault.ErrNotInitialised
	}

	maxOffset := uint64(0)
	for _, offset := range offsets {
		if offset > maxOffset {
			maxOffset = offset
		}
	}

	r, err := db.beginRead()
	if nil != err {
		return nil, err
	}
	defer db.endRead(r)

	cursor, err := r.cursor(db, outputAmountsDB)
	if nil != err {
		return nil, err
	}

	amountKey := uint64Key(amount)
	_, _, err = cursor.Get(amountKey, nil, lmdb.Set)
	if lmdb.IsNotFound(err) {
		return nil, fault.ErrOutputNotFound
	} else if nil != err {
		return nil, err
	}

	numElems, err := cursor.Count()
	if nil != err {
		return nil, err
	}
	if maxOffset <= 1 && numElems <= maxOffset {
		return nil, fault.ErrOutputNotFound
	}

	globalIndices := make([]uint64, 0, len(offsets))

	if maxOffset <= 1 {
		// tiny offsets: step the dup list directly
		for _, offset := range offsets {
			_, value, err := cursor.Get(amountKey, nil, lmdb.FirstDup)
			if nil != err {
				return nil, err
			}
			for i := uint64(0); i < offset; i += 1 {
				_, value, err = cursor.Get(nil, nil, lmdb.NextDup)
				if nil != err {
					return nil, err
				}
			}
			globalIndices = append(globalIndices, binary.LittleEndian.Uint64(value))
		}
		return globalIndices, nil
	}

	// page at a time using the fixed size duplicate pages; curcount is
	// the first index past the current page, blockstart the first in it
	curcount := uint64(0)
	blockstart := uint64(0)
	var page []byte

scanning:
	for _, offset := range offsets {
		if offset >= numElems {
			db.log.Debugf("offset: %d  elements: %d  partial results for amount scan", offset, numElems)
			break scanning
		}

		if 0 == curcount && offset > numElems/2 {
			// enter from the back: position past the last page, then
			// walk pages backward until the one holding offset
			if _, _, err := cursor.Get(amountKey, nil, lmdb.LastDup); nil != err {
				return nil, err
			}
			// step off and back on again to clear the end-of-data state
			if _, _, err := cursor.Get(nil, nil, lmdb.Prev); nil != err {
				return nil, err
			}
			if _, _, err := cursor.Get(nil, nil, lmdb.Next); nil != err {
				return nil, err
			}
			_, value, err := cursor.Get(nil, nil, lmdb.GetMultiple)
			if nil != err {
				return nil, err
			}

			curcount = numElems
			for {
				count := uint64(len(value)) / uint64Size
				curcount -= count
				if curcount > offset {
					_, value, err = cursor.Get(nil, nil, lmdb.PrevMultiple)
					if nil != err {
						return nil, err
					}
				} else {
					blockstart = curcount
					curcount += count
					page = value
					break
				}
			}
		} else {
			for offset >= curcount {
				op := uint(lmdb.NextMultiple)
				if 0 == curcount {
					op = lmdb.GetMultiple
				}
				_, value, err := cursor.Get(nil, nil, op)
				if lmdb.IsNotFound(err) {
					// allow partial results
					break scanning
				} else if nil != err {
					return nil, err
				}

				blockstart = curcount
				curcount += uint64(len(value)) / uint64Size
				page = value
			}
		}

		actualIndex := offset - blockstart
		globalIndices = append(globalIndices, binary.LittleEndian.Uint64(page[actualIndex*uint64Size:]))
	}

	return globalIndices, nil
}
