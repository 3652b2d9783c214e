// SPDX-License-Identifier: ISC
// Copyright (c) 2014-2020 Mantlecoin Developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package transactionrecord

import (
	"github.com/mantlecoin/mantled/fault"
	"github.com/mantlecoin/mantled/util"
)

// sanity limits for list counts in a packed record
const (
	maximumInputs     = 8192
	maximumOutputs    = 8192
	maximumKeyOffsets = 8192
	maximumExtraBytes = 65536
)

// Unpack - turn a byte slice back into a transaction
//
// second return value is the number of bytes consumed
func (record Packed) Unpack() (*Transaction, int, error) {

	tx := &Transaction{}
	n := 0

	version, count := util.FromVarint64(record[n:])
	if 0 == count {
		return nil, 0, fault.ErrNotTransactionPack
	}
	n += count
	tx.Version = version

	unlockTime, count := util.FromVarint64(record[n:])
	if 0 == count {
		return nil, 0, fault.ErrNotTransactionPack
	}
	n += count
	tx.UnlockTime = unlockTime

	inputCount, count := util.FromVarint64(record[n:])
	if 0 == count || inputCount > maximumInputs {
		return nil, 0, fault.ErrNotTransactionPack
	}
	n += count

	if inputCount > 0 {
		tx.Inputs = make([]Input, inputCount)
	}
	for i := uint64(0); i < inputCount; i += 1 {
		in := &tx.Inputs[i]

		amount, count := util.FromVarint64(record[n:])
		if 0 == count {
			return nil, 0, fault.ErrNotTransactionPack
		}
		n += count
		in.Amount = amount

		offsetCount, count := util.FromVarint64(record[n:])
		if 0 == count || offsetCount > maximumKeyOffsets {
			return nil, 0, fault.ErrNotTransactionPack
		}
		n += count

		if offsetCount > 0 {
			in.KeyOffsets = make([]uint64, offsetCount)
		}
		for j := uint64(0); j < offsetCount; j += 1 {
			offset, count := util.FromVarint64(record[n:])
			if 0 == count {
				return nil, 0, fault.ErrNotTransactionPack
			}
			n += count
			in.KeyOffsets[j] = offset
		}

		if len(record) < n+KeyImageLength {
			return nil, 0, fault.ErrNotTransactionPack
		}
		copy(in.KeyImage[:], record[n:n+KeyImageLength])
		n += KeyImageLength
	}

	outputCount, count := util.FromVarint64(record[n:])
	if 0 == count || outputCount > maximumOutputs {
		return nil, 0, fault.ErrNotTransactionPack
	}
	n += count

	if outputCount > 0 {
		tx.Outputs = make([]Output, outputCount)
	}
	for i := uint64(0); i < outputCount; i += 1 {
		out := &tx.Outputs[i]

		amount, count := util.FromVarint64(record[n:])
		if 0 == count {
			return nil, 0, fault.ErrNotTransactionPack
		}
		n += count
		out.Amount = amount

		if len(record) < n+1+KeyLength {
			return nil, 0, fault.ErrNotTransactionPack
		}
		out.TargetTag = record[n]
		n += 1
		if OutputToKey != out.TargetTag {
			return nil, 0, fault.ErrUnsupportedOutputType
		}
		copy(out.Key[:], record[n:n+KeyLength])
		n += KeyLength
	}

	extraLength, count := util.FromVarint64(record[n:])
	if 0 == count || extraLength > maximumExtraBytes {
		return nil, 0, fault.ErrNotTransactionPack
	}
	n += count
	if uint64(len(record)) < uint64(n)+extraLength {
		return nil, 0, fault.ErrNotTransactionPack
	}
	if extraLength > 0 {
		tx.Extra = make([]byte, extraLength)
		copy(tx.Extra, record[n:uint64(n)+extraLength])
	}
	n += int(extraLength)

	return tx, n, nil
}
