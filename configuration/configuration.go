// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration

import (
	"path/filepath"

	"github.com/bitmark-inc/logger"

	"github.com/mantlecoin/mantled/storage"
)

// Configuration - the store tool configuration
type Configuration struct {
	DataDirectory string               `gluamapper:"data_directory" json:"data_directory"`
	ReadOnly      bool                 `gluamapper:"read_only" json:"read_only"`
	NoSync        bool                 `gluamapper:"no_sync" json:"no_sync"`
	NoMetaSync    bool                 `gluamapper:"no_meta_sync" json:"no_meta_sync"`
	MapSize       int64                `gluamapper:"map_size" json:"map_size"`
	Logging       logger.Configuration `gluamapper:"logging" json:"logging"`
}

// GetConfiguration - read and execute the configuration file
func GetConfiguration(fileName string) (*Configuration, error) {

	fileName, err := filepath.Abs(filepath.Clean(fileName))
	if nil != err {
		return nil, err
	}

	// set up defaults
	options := &Configuration{
		DataDirectory: ".",
		ReadOnly:      true,
		Logging: logger.Configuration{
			Directory: ".",
			File:      "mantled-store.log",
			Size:      1048576,
			Count:     10,
			Console:   false,
			Levels: map[string]string{
				logger.DefaultTag: "error",
			},
		},
	}

	if err := ParseConfigurationFile(fileName, options); nil != err {
		return nil, err
	}

	// resolve the data directory relative to the configuration file
	if !filepath.IsAbs(options.DataDirectory) {
		options.DataDirectory = filepath.Join(filepath.Dir(fileName), options.DataDirectory)
	}

	return options, nil
}

// StoreFlags - convert the boolean options to environment flags
func (c *Configuration) StoreFlags() storage.Flags {
	flags := storage.Flags(0)
	if c.ReadOnly {
		flags |= storage.ReadOnly
	}
	if c.NoSync {
		flags |= storage.NoSync
	}
	if c.NoMetaSync {
		flags |= storage.NoMetaSync
	}
	return flags
}
