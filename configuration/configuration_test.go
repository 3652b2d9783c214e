// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package configuration_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlecoin/mantled/configuration"
	"github.com/mantlecoin/mantled/storage"
)

const configurationText = `
local M = {}

M.data_directory = "store.lmdb"
M.read_only = false
M.no_sync = true
M.map_size = 2147483648

M.logging = {
    directory = ".",
    file = "tool.log",
    size = 1048576,
    count = 5,
    console = false,
    levels = {
        DEFAULT = "info",
    },
}

return M
`

// the lua configuration maps onto the structure
func TestGetConfiguration(t *testing.T) {
	dir, err := ioutil.TempDir("", "configuration-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	fileName := filepath.Join(dir, "store.conf")
	require.NoError(t, ioutil.WriteFile(fileName, []byte(configurationText), 0600))

	options, err := configuration.GetConfiguration(fileName)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "store.lmdb"), options.DataDirectory, "data directory")
	assert.False(t, options.ReadOnly, "read only")
	assert.True(t, options.NoSync, "no sync")
	assert.False(t, options.NoMetaSync, "no meta sync")
	assert.Equal(t, int64(2147483648), options.MapSize, "map size")
	assert.Equal(t, "tool.log", options.Logging.File, "log file")
	assert.Equal(t, "info", options.Logging.Levels["DEFAULT"], "log level")

	assert.Equal(t, storage.Flags(storage.NoSync), options.StoreFlags(), "flags")
}

// a missing file is an error
func TestGetConfigurationMissing(t *testing.T) {
	_, err := configuration.GetConfiguration("no-such-file.conf")
	assert.Error(t, err)
}
