// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transactionrecord

import (
	"github.com/mantlecoin/mantled/util"
)

// Pack - turn a transaction into its packed byte form
//
// layout:
//   version        varint
//   unlock time    varint
//   input count    varint
//   inputs:        amount varint ++ offset count varint ++ offsets varint… ++ key image
//   output count   varint
//   outputs:       amount varint ++ target tag byte ++ key
//   extra length   varint
//   extra          bytes
func (tx *Transaction) Pack() Packed {
	packed := util.AppendVarint64(nil, tx.Version)
	packed = util.AppendVarint64(packed, tx.UnlockTime)

	packed = util.AppendVarint64(packed, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		packed = util.AppendVarint64(packed, in.Amount)
		packed = util.AppendVarint64(packed, uint64(len(in.KeyOffsets)))
		for _, offset := range in.KeyOffsets {
			packed = util.AppendVarint64(packed, offset)
		}
		packed = append(packed, in.KeyImage[:]...)
	}

	packed = util.AppendVarint64(packed, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		packed = util.AppendVarint64(packed, out.Amount)
		packed = append(packed, out.TargetTag)
		packed = append(packed, out.Key[:]...)
	}

	packed = util.AppendVarint64(packed, uint64(len(tx.Extra)))
	packed = append(packed, tx.Extra...)

	return packed
}
