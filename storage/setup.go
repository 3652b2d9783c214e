// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatsuo/lmdb-go/lmdb"

	"github.com/bitmark-inc/logger"
	"github.com/mantlecoin/mantled/fault"
)

// Version - current store format version
//
// a store recording a different non-zero version refuses to open
const Version = 1

// Flags - environment open flags
type Flags uint

// pool access modes
const (
	ReadOnly Flags = 1 << iota
	NoSync
	NoMetaSync
)

// defaults
const (
	defaultMapSize = 1 << 30 // 1 GiB
	defaultMaxDBs  = 20
	dataFile       = "data.mdb"
	lockFile       = "lock.mdb"
)

// BlockchainDB - the persistent block and transaction store
//
// single writer, many concurrent readers; all access is through the
// methods, the environment handle is never exposed
type BlockchainDB struct {
	log    *logger.L
	env    *lmdb.Env
	folder string
	flags  Flags
	open   bool

	dbis [subDBCount]lmdb.DBI

	// derived counters, resynced from the store at open and mutated
	// only inside the write path
	height     uint64
	numTxs     uint64
	numOutputs uint64

	// recent batch accumulator for size estimation
	cumSize  uint64
	cumCount uint64

	// single writer state
	writeMutex  sync.Mutex
	writeTxn    *writeTxn
	batchActive bool

	// resize serialisation
	syncLock sync.Mutex

	readPool readTxnPool
}

// Open - open (creating if necessary) the store in the given folder
func Open(folder string, flags Flags) (*BlockchainDB, error) {
	return OpenSized(folder, flags, defaultMapSize)
}

// OpenSized - open with an explicit initial map size
func OpenSized(folder string, flags Flags, mapSize int64) (*BlockchainDB, error) {

	log := logger.New("storage")

	readOnly := 0 != flags&ReadOnly

	if !readOnly {
		err := os.MkdirAll(folder, 0700)
		if nil != err {
			return nil, err
		}
	}
	if fileInfo, err := os.Stat(folder); nil != err || !fileInfo.IsDir() {
		return nil, fault.ErrNotInitialised
	}

	env, err := lmdb.NewEnv()
	if nil != err {
		return nil, err
	}

	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	if err = env.SetMaxDBs(defaultMaxDBs); nil != err {
		return nil, err
	}
	if mapSize <= 0 {
		mapSize = defaultMapSize
	}
	if err = env.SetMapSize(mapSize); nil != err {
		return nil, err
	}

	// NoTLS is required so pooled read transactions are not bound to
	// the creating thread
	envFlags := uint(lmdb.NoTLS)
	if readOnly {
		envFlags |= lmdb.Readonly
	}
	if 0 != flags&NoSync {
		envFlags |= lmdb.NoSync
	}
	if 0 != flags&NoMetaSync {
		envFlags |= lmdb.NoMetaSync
	}

	if err = env.Open(folder, envFlags, 0600); nil != err {
		log.Criticalf("cannot open environment: %q  error: %s", folder, err)
		return nil, err
	}

	db := &BlockchainDB{
		log:    log,
		env:    env,
		folder: folder,
		flags:  flags,
	}

	if err = db.openDatabases(readOnly); nil != err {
		return nil, err
	}

	if err = db.checkVersion(readOnly); nil != err {
		log.Criticalf("version check failed: %s", err)
		return nil, err
	}

	if err = db.resyncCounters(); nil != err {
		return nil, err
	}

	db.open = true
	ok = true // prevent environment close

	log.Infof("opened: %q  height: %d  txs: %d  outputs: %d", folder, db.height, db.numTxs, db.numOutputs)
	return db, nil
}

// create or open all sub-databases
func (db *BlockchainDB) openDatabases(readOnly bool) error {

	if readOnly {
		txn, err := db.env.BeginTxn(nil, lmdb.Readonly)
		if nil != err {
			return fault.ErrTransactionStartFailed
		}
		for i := 0; i < subDBCount; i += 1 {
			dbi, err := txn.OpenDBI(subDBs[i].name, subDBs[i].flags)
			if nil != err {
				txn.Abort()
				return fmt.Errorf("cannot open sub-database: %q  error: %s", subDBs[i].name, err)
			}
			db.dbis[i] = dbi
		}
		// the read-only transaction must still commit so the
		// sub-database handles outlive it
		return txn.Commit()
	}

	return db.env.Update(func(txn *lmdb.Txn) error {
		for i := 0; i < subDBCount; i += 1 {
			dbi, err := txn.OpenDBI(subDBs[i].name, subDBs[i].flags|lmdb.Create)
			if nil != err {
				return fmt.Errorf("cannot create sub-database: %q  error: %s", subDBs[i].name, err)
			}
			db.dbis[i] = dbi
		}
		return nil
	})
}

// enforce the store format version property
func (db *BlockchainDB) checkVersion(readOnly bool) error {

	txn, err := db.env.BeginTxn(nil, lmdb.Readonly)
	if nil != err {
		return fault.ErrTransactionStartFailed
	}
	value, err := txn.Get(db.dbis[propertiesDB], versionProperty)
	var stored uint32
	haveVersion := false
	if nil == err {
		if 4 != len(value) {
			txn.Abort()
			return fault.ErrIncompatibleDatabaseVersion
		}
		stored = binary.LittleEndian.Uint32(value)
		haveVersion = true
	} else if !lmdb.IsNotFound(err) {
		txn.Abort()
		return err
	}
	txn.Abort()

	if haveVersion {
		if stored > Version {
			db.log.Criticalf("store version: %d > supported version: %d", stored, Version)
			return fault.ErrIncompatibleDatabaseVersion
		}
		if 0 != stored && stored != Version {
			db.log.Criticalf("store version mismatch: %d  expected: %d", stored, Version)
			return fault.ErrIncompatibleDatabaseVersion
		}
		return nil
	}

	if readOnly {
		return nil // fresh read-only store has nothing to tag
	}
	return db.putVersion()
}

func (db *BlockchainDB) putVersion() error {
	value := make([]byte, 4)
	binary.LittleEndian.PutUint32(value, Version)
	return db.env.Update(func(txn *lmdb.Txn) error {
		return txn.Put(db.dbis[propertiesDB], versionProperty, value, 0)
	})
}

// resync the derived counters from the store
func (db *BlockchainDB) resyncCounters() error {
	txn, err := db.env.BeginTxn(nil, lmdb.Readonly)
	if nil != err {
		return fault.ErrTransactionStartFailed
	}
	defer txn.Abort()

	blockStat, err := txn.Stat(db.dbis[blocksDB])
	if nil != err {
		return err
	}
	txStat, err := txn.Stat(db.dbis[txIndicesDB])
	if nil != err {
		return err
	}
	outputStat, err := txn.Stat(db.dbis[outputIndicesDB])
	if nil != err {
		return err
	}

	db.height = blockStat.Entries
	db.numTxs = txStat.Entries
	db.numOutputs = outputStat.Entries
	return nil
}

// IsReadOnly - true when the environment was opened read only
func (db *BlockchainDB) IsReadOnly() bool {
	return 0 != db.flags&ReadOnly
}

// Filenames - the two files backing the environment
func (db *BlockchainDB) Filenames() []string {
	return []string{
		filepath.Join(db.folder, dataFile),
		filepath.Join(db.folder, lockFile),
	}
}

// Sync - force a durable flush even under NoSync/NoMetaSync
func (db *BlockchainDB) Sync() error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	if db.IsReadOnly() {
		return nil
	}
	err := db.env.Sync(true)
	if nil != err {
		db.log.Criticalf("sync failed: %s", err)
		return fault.ErrCommitFailed
	}
	return nil
}

// Reset - drop the contents of every sub-database
//
// the store remains open and retags the version property
func (db *BlockchainDB) Reset() error {
	if !db.open {
		return fault.ErrNotInitialised
	}
	if db.IsReadOnly() {
		return fault.ErrDatabaseIsReadOnly
	}
	db.writeMutex.Lock()
	defer db.writeMutex.Unlock()
	if nil != db.writeTxn {
		return fault.ErrBatchAlreadyActive
	}

	err := db.env.Update(func(txn *lmdb.Txn) error {
		for i := 0; i < subDBCount; i += 1 {
			if err := txn.Drop(db.dbis[i], false); nil != err {
				return err
			}
		}
		value := make([]byte, 4)
		binary.LittleEndian.PutUint32(value, Version)
		return txn.Put(db.dbis[propertiesDB], versionProperty, value, 0)
	})
	if nil != err {
		return err
	}

	db.height = 0
	db.numTxs = 0
	db.numOutputs = 0
	db.cumSize = 0
	db.cumCount = 0
	return nil
}

// Close - abort any live batch, release pooled readers and close the
// environment
func (db *BlockchainDB) Close() {
	if !db.open {
		return
	}
	db.writeMutex.Lock()
	if db.batchActive {
		db.log.Warn("closing with live batch transaction: aborting")
		db.abortBatchLocked()
	}
	db.writeMutex.Unlock()

	db.readPool.close()
	db.env.Close()
	db.open = false
	db.log.Info("closed")
}
