// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"crypto/rand"
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/mantlecoin/mantled/fault"
)

// resize tuning
const (
	resizeStep        = uint64(1) << 30       // add 1 GiB per resize
	minIncreaseSize   = uint64(512) * 1 << 20 // floor for batch driven increases
	numPrevBlocks     = 500                   // window for average block size
	minAvgBlockSize   = 4 * 1024              // floor for the average
	dbExpansionFactor = 4.5                   // stored size vs raw block size
	batchSafetyFactor = 1.7                   // per-block growth allowance
	minBatchFudge     = 5000.0                // floor for safety * blocks
)

// the percentage trigger is drawn uniformly from [0.6, 0.9] per call;
// the randomness decorrelates resizes across a fleet of nodes that
// would otherwise all hit a fixed threshold at the same block
func resizePercent() float64 {
	var buffer [8]byte
	_, err := rand.Read(buffer[:])
	if nil != err {
		return 0.75 // midpoint when no randomness is available
	}
	u := binary.LittleEndian.Uint64(buffer[:])
	return 0.6 + 0.3*(float64(u>>11)/float64(uint64(1)<<53))
}

// needResize - check whether the map is close enough to full
//
// thresholdSize selects the size-based check used by batches; zero
// falls back to the randomised percentage check
func (db *BlockchainDB) needResize(thresholdSize uint64) bool {

	info, err := db.env.Info()
	if nil != err {
		db.log.Criticalf("cannot read environment info: %s", err)
		return false
	}
	stat, err := db.env.Stat()
	if nil != err {
		db.log.Criticalf("cannot read environment stat: %s", err)
		return false
	}

	// size used excludes data not yet committed, which can be large
	// during a batch; batches pass an estimate to cover that
	mapSize := uint64(info.MapSize)
	sizeUsed := uint64(stat.PSize) * uint64(info.LastPNO)

	db.log.Debugf("map size: %d  used: %d  remaining: %d  threshold: %d",
		mapSize, sizeUsed, mapSize-sizeUsed, thresholdSize)

	if thresholdSize > 0 {
		if mapSize-sizeUsed < thresholdSize {
			db.log.Info("resize threshold met (size based)")
			return true
		}
		return false
	}

	percent := resizePercent()
	if float64(sizeUsed)/float64(mapSize) > percent {
		db.log.Info("resize threshold met (percent based)")
		return true
	}
	return false
}

// doResize - grow the map
//
// unsafe while any transaction is live: new transactions are gated
// and the active counter is spun down to zero first
func (db *BlockchainDB) doResize(increaseSize uint64) error {
	db.syncLock.Lock()
	defer db.syncLock.Unlock()

	// check disk capacity
	var fs unix.Statfs_t
	err := unix.Statfs(db.folder, &fs)
	if nil == err {
		available := fs.Bavail * uint64(fs.Bsize)
		if available < resizeStep {
			db.log.Errorf("insufficient free space to extend store: %d MiB available", available/(1<<20))
			return nil // tolerated: the next write may fail with map full
		}
	} else {
		db.log.Warnf("unable to query free disk space: %s", err)
	}

	info, err := db.env.Info()
	if nil != err {
		return err
	}
	stat, err := db.env.Stat()
	if nil != err {
		return err
	}

	newMapSize := uint64(info.MapSize) + resizeStep
	if increaseSize > 0 {
		newMapSize = uint64(info.MapSize) + increaseSize
	}

	// round up to a whole page
	pageSize := uint64(stat.PSize)
	newMapSize += (pageSize - newMapSize%pageSize) % pageSize

	if nil != db.writeTxn {
		// batch resize checks run before the batch transaction opens,
		// so a live write transaction here is a logic error
		db.log.Critical("resize attempted with write transaction in progress")
		return fault.ErrBatchAlreadyActive
	}

	preventNewTxns()
	waitNoActiveTxns()

	err = db.env.SetMapSize(int64(newMapSize))

	allowNewTxns()

	if nil != err {
		db.log.Criticalf("set map size failed: %s", err)
		return err
	}

	db.log.Infof("map size increased: old: %d MiB  new: %d MiB",
		uint64(info.MapSize)/(1<<20), newMapSize/(1<<20))
	return nil
}

// checkAndResizeForBatch - pre-batch resize check
//
// estimates the space the batch will need and grows the map before
// the batch transaction begins
func (db *BlockchainDB) checkAndResizeForBatch(batchNumBlocks uint64) error {

	thresholdSize := uint64(0)
	increaseSize := uint64(0)
	if batchNumBlocks > 0 {
		thresholdSize = db.estimatedBatchSize(batchNumBlocks)
		db.log.Debugf("estimated batch size: %d", thresholdSize)

		increaseSize = thresholdSize
		if increaseSize < minIncreaseSize {
			increaseSize = minIncreaseSize
		}
	}

	if db.needResize(thresholdSize) {
		db.log.Info("batch store resize needed")
		return db.doResize(increaseSize)
	}
	return nil
}

// estimatedBatchSize - projected on-disk growth for a batch of blocks
//
// prefers the recent batch accumulator, falling back to averaging the
// stored sizes of up to the last 500 blocks
func (db *BlockchainDB) estimatedBatchSize(batchNumBlocks uint64) uint64 {

	avgBlockSize := uint64(0)

	if 0 == db.height {
		db.log.Debug("no existing blocks to check for average block size")
	} else if db.cumCount > 0 {
		avgBlockSize = db.cumSize / db.cumCount
		db.log.Debugf("average block size across recent %d blocks: %d", db.cumCount, avgBlockSize)
		db.cumSize = 0
		db.cumCount = 0
	} else {
		blockStop := uint64(0)
		if db.height > 1 {
			blockStop = db.height - 1
		}
		blockStart := uint64(0)
		if blockStop >= numPrevBlocks {
			blockStart = blockStop - numPrevBlocks + 1
		}

		totalBlockSize := uint64(0)
		numBlocksUsed := uint64(0)
		for blockNum := blockStart; blockNum <= blockStop; blockNum += 1 {
			size, err := db.GetBlockSize(blockNum)
			if nil != err {
				break
			}
			totalBlockSize += size
			numBlocksUsed += 1
		}
		if numBlocksUsed > 0 {
			avgBlockSize = totalBlockSize / numBlocksUsed
		}
		db.log.Debugf("average block size across recent %d blocks: %d", numBlocksUsed, avgBlockSize)
	}

	if avgBlockSize < minAvgBlockSize {
		avgBlockSize = minAvgBlockSize
	}

	fudgeFactor := batchSafetyFactor * float64(batchNumBlocks)
	if fudgeFactor < minBatchFudge {
		fudgeFactor = minBatchFudge
	}

	return uint64(float64(avgBlockSize) * dbExpansionFactor * fudgeFactor)
}
