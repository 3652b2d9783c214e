// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/getoptions"
	"github.com/bitmark-inc/logger"

	"github.com/mantlecoin/mantled/configuration"
	"github.com/mantlecoin/mantled/storage"
)

// main program - inspection tool for the block store
func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	flags := []getoptions.Option{
		{Long: "help", HasArg: getoptions.NO_ARGUMENT, Short: 'h'},
		{Long: "verbose", HasArg: getoptions.NO_ARGUMENT, Short: 'v'},
		{Long: "version", HasArg: getoptions.NO_ARGUMENT, Short: 'V'},
		{Long: "config-file", HasArg: getoptions.REQUIRED_ARGUMENT, Short: 'c'},
	}

	program, options, arguments, err := getoptions.GetOS(flags)
	if nil != err {
		exitwithstatus.Message("%s: getoptions error: %s", program, err)
	}

	if len(options["version"]) > 0 {
		exitwithstatus.Message("%s: version: %s", program, version)
	}

	if len(options["help"]) > 0 || 0 == len(arguments) {
		exitwithstatus.Message("usage: %s [--help] [--verbose] [--version] --config-file=FILE command\n"+
			"       commands: info | block HEIGHT | hashes FIRST LAST | outputs AMOUNT", program)
	}

	if 1 != len(options["config-file"]) {
		exitwithstatus.Message("%s: only one config-file option is required, %d were detected", program, len(options["config-file"]))
	}

	configurationFile := options["config-file"][0]
	theConfiguration, err := configuration.GetConfiguration(configurationFile)
	if nil != err {
		exitwithstatus.Message("%s: failed to read configuration from: %q  error: %s", program, configurationFile, err)
	}

	// start logging
	if err = logger.Initialise(theConfiguration.Logging); nil != err {
		exitwithstatus.Message("%s: logger setup failed with error: %s", program, err)
	}
	defer logger.Finalise()

	log := logger.New("main")
	defer log.Info("finished")
	log.Info("starting…")
	log.Infof("version: %s", version)

	db, err := storage.OpenSized(theConfiguration.DataDirectory, theConfiguration.StoreFlags(), theConfiguration.MapSize)
	if nil != err {
		log.Criticalf("storage open error: %s", err)
		exitwithstatus.Message("%s: storage open error: %s", program, err)
	}
	defer db.Close()

	if err := runCommand(db, arguments); nil != err {
		log.Errorf("command failed: %s", err)
		exitwithstatus.Message("%s: command: %q failed: %s", program, arguments[0], err)
	}
}

// execute one inspection command
func runCommand(db *storage.BlockchainDB, arguments []string) error {

	switch command := arguments[0]; command {

	case "info":
		topHash, err := db.TopBlockHash()
		if nil != err {
			return err
		}
		fmt.Printf("height: %d\n", db.Height())
		fmt.Printf("top block: %s\n", topHash)
		fmt.Printf("transactions: %d\n", db.GetTxCount())
		fmt.Printf("outputs: %d\n", db.NumOutputs())
		for _, name := range db.Filenames() {
			fmt.Printf("file: %s\n", name)
		}
		return nil

	case "block":
		if 2 != len(arguments) {
			return fmt.Errorf("block needs HEIGHT")
		}
		height, err := strconv.ParseUint(arguments[1], 10, 64)
		if nil != err {
			return err
		}
		blk, err := db.GetBlockFromHeight(height)
		if nil != err {
			return err
		}
		hash, err := db.GetBlockHashFromHeight(height)
		if nil != err {
			return err
		}
		fmt.Printf("block: %d\n", height)
		fmt.Printf("hash: %s\n", hash)
		fmt.Printf("timestamp: %d\n", blk.Timestamp)
		fmt.Printf("previous: %s\n", blk.PreviousBlock)
		fmt.Printf("transactions: %d\n", len(blk.TxHashes))
		for i, txHash := range blk.TxHashes {
			fmt.Printf("tx[%d]: %s\n", i, txHash)
		}
		return nil

	case "hashes":
		if 3 != len(arguments) {
			return fmt.Errorf("hashes needs FIRST LAST")
		}
		first, err := strconv.ParseUint(arguments[1], 10, 64)
		if nil != err {
			return err
		}
		last, err := strconv.ParseUint(arguments[2], 10, 64)
		if nil != err {
			return err
		}
		hashes, err := db.GetHashesRange(first, last)
		if nil != err {
			return err
		}
		for i, hash := range hashes {
			fmt.Printf("%d: %s\n", first+uint64(i), hash)
		}
		return nil

	case "outputs":
		if 2 != len(arguments) {
			return fmt.Errorf("outputs needs AMOUNT")
		}
		amount, err := strconv.ParseUint(arguments[1], 10, 64)
		if nil != err {
			return err
		}
		count, err := db.GetNumOutputs(amount)
		if nil != err {
			return err
		}
		fmt.Printf("amount: %d  outputs: %d\n", amount, count)
		return nil

	default:
		return fmt.Errorf("unknown command: %q", command)
	}
}
