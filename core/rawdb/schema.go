// Copyright 2021 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package rawdb contains the low level accessors of the flat chain indexes.
// Trie nodes and contract code live under go-ethereum's own schema in the
// same key-value store.
package rawdb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// lastIndexKey tracks the number of blocks in the local chain.
	lastIndexKey = []byte("DLastIndex")

	// forkBlockKey pins the remote block a forked database was created at.
	forkBlockKey = []byte("DForkBlock")

	blockPrefix      = []byte("Db") // blockPrefix + index (uint64 big endian) -> block
	blockLogsPrefix  = []byte("Dl") // blockLogsPrefix + index -> block logs
	blockIndexPrefix = []byte("DH") // blockIndexPrefix + hash -> index
	txPrefix         = []byte("Dt") // txPrefix + hash -> transaction
	receiptPrefix    = []byte("Dr") // receiptPrefix + hash -> receipt

	// TombstonePrefix is the common prefix of forked deletion markers.
	TombstonePrefix        = []byte("Dx")
	accountTombstonePrefix = []byte("Dxa") // accountTombstonePrefix + address -> height
	slotTombstonePrefix    = []byte("Dxs") // slotTombstonePrefix + address + slot -> height
)

// encodeIndex encodes a chain index as big endian uint64.
func encodeIndex(index uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, index)
	return enc
}

func blockKey(index uint64) []byte {
	return append(append([]byte{}, blockPrefix...), encodeIndex(index)...)
}

func blockLogsKey(index uint64) []byte {
	return append(append([]byte{}, blockLogsPrefix...), encodeIndex(index)...)
}

func blockIndexKey(hash common.Hash) []byte {
	return append(append([]byte{}, blockIndexPrefix...), hash.Bytes()...)
}

func txKey(hash common.Hash) []byte {
	return append(append([]byte{}, txPrefix...), hash.Bytes()...)
}

func receiptKey(hash common.Hash) []byte {
	return append(append([]byte{}, receiptPrefix...), hash.Bytes()...)
}

func accountTombstoneKey(addr common.Address) []byte {
	return append(append([]byte{}, accountTombstonePrefix...), addr.Bytes()...)
}

func slotTombstoneKey(addr common.Address, slot common.Hash) []byte {
	key := make([]byte, 0, len(slotTombstonePrefix)+common.AddressLength+common.HashLength)
	key = append(key, slotTombstonePrefix...)
	key = append(key, addr.Bytes()...)
	return append(key, slot.Bytes()...)
}
