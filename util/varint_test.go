// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util_test

import (
	"bytes"
	"testing"

	"github.com/mantlecoin/mantled/util"
)

// encode and decode across the size boundaries
func TestVarint64(t *testing.T) {
	testData := []struct {
		value    uint64
		expected []byte
	}{
		{0x00, []byte{0x00}},
		{0x01, []byte{0x01}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x01}},
		{0xff, []byte{0xff, 0x01}},
		{0x3fff, []byte{0xff, 0x7f}},
		{0x4000, []byte{0x80, 0x80, 0x01}},
		{0xffffffffffffffff, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}

	for i, item := range testData {
		actual := util.AppendVarint64(nil, item.value)
		if !bytes.Equal(item.expected, actual) {
			t.Errorf("%d: AppendVarint64(%d) = %x  expected: %x", i, item.value, actual, item.expected)
		}

		back, count := util.FromVarint64(actual)
		if count != len(item.expected) {
			t.Errorf("%d: FromVarint64 count: %d  expected: %d", i, count, len(item.expected))
		}
		if back != item.value {
			t.Errorf("%d: FromVarint64 = %d  expected: %d", i, back, item.value)
		}
	}
}

// appending extends the buffer in place
func TestAppendVarint64(t *testing.T) {
	buffer := []byte{0xaa}
	buffer = util.AppendVarint64(buffer, 0x80)
	buffer = util.AppendVarint64(buffer, 3)

	expected := []byte{0xaa, 0x80, 0x01, 0x03}
	if !bytes.Equal(expected, buffer) {
		t.Errorf("chained append: %x  expected: %x", buffer, expected)
	}

	// decoding skips past each value in turn
	value, count := util.FromVarint64(buffer[1:])
	if 0x80 != value || 2 != count {
		t.Errorf("first value: %d, %d  expected: 128, 2", value, count)
	}
	value, count = util.FromVarint64(buffer[1+count:])
	if 3 != value || 1 != count {
		t.Errorf("second value: %d, %d  expected: 3, 1", value, count)
	}
}

// truncated buffers must return a zero count
func TestFromVarint64Truncated(t *testing.T) {
	truncated := [][]byte{
		{},
		{0x80},
		{0xff, 0xff},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
	}
	for i, buffer := range truncated {
		value, count := util.FromVarint64(buffer)
		if 0 != value || 0 != count {
			t.Errorf("%d: FromVarint64(%x) = %d, %d  expected: 0, 0", i, buffer, value, count)
		}
	}
}
