// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/transactionrecord"
)

// spent key images are a strict existence set
func TestSpentKeyImages(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	keyImage := makeKeyImage(0xdead)

	spent, err := db.HasKeyImage(keyImage)
	require.NoError(t, err)
	assert.False(t, spent, "fresh key image")

	require.NoError(t, db.AddSpentKey(keyImage))

	spent, err = db.HasKeyImage(keyImage)
	require.NoError(t, err)
	assert.True(t, spent, "added key image")

	// double spend detection
	err = db.AddSpentKey(keyImage)
	assert.Equal(t, fault.ErrKeyImageExists, err, "double add")

	require.NoError(t, db.RemoveSpentKey(keyImage))

	spent, err = db.HasKeyImage(keyImage)
	require.NoError(t, err)
	assert.False(t, spent, "removed key image")

	// removing again is a no-op, not an error
	assert.NoError(t, db.RemoveSpentKey(keyImage), "idempotent remove")
}

// adding a block marks its inputs' key images as spent
func TestBlockMarksKeyImages(t *testing.T) {
	db := setup(t)
	defer teardown(db)

	addChain(t, db, 2, 2, 1, 5)

	spent := 0
	complete, err := db.ForAllKeyImages(func(keyImage transactionrecord.KeyImage) bool {
		spent += 1
		return true
	})
	require.NoError(t, err)
	assert.True(t, complete, "walk ran to the end")
	assert.Equal(t, 4, spent, "one key image per non-miner tx input")

	// each one is individually visible
	spentOne, err := db.HasKeyImage(makeKeyImage(0<<8 | 1))
	require.NoError(t, err)
	assert.True(t, spentOne, "first block first tx key image")
}
