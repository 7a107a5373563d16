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

package rawdb

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
)

// ReadForkBlock retrieves the remote block number a forked database is
// pinned to.
func ReadForkBlock(db ethdb.KeyValueReader) (uint64, bool) {
	data, _ := db.Get(forkBlockKey)
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// WriteForkBlock pins the database to a remote block number.
func WriteForkBlock(db ethdb.KeyValueWriter, number uint64) error {
	return db.Put(forkBlockKey, encodeIndex(number))
}

// WriteAccountTombstone records that a remote account was deleted locally at
// the given height.
func WriteAccountTombstone(db ethdb.KeyValueWriter, addr common.Address, height uint64) error {
	return db.Put(accountTombstoneKey(addr), encodeIndex(height))
}

// DeleteAccountTombstone removes the deletion marker of an account.
func DeleteAccountTombstone(db ethdb.KeyValueWriter, addr common.Address) error {
	return db.Delete(accountTombstoneKey(addr))
}

// WriteSlotTombstone records that a remote storage slot was zeroed locally at
// the given height.
func WriteSlotTombstone(db ethdb.KeyValueWriter, addr common.Address, slot common.Hash, height uint64) error {
	return db.Put(slotTombstoneKey(addr, slot), encodeIndex(height))
}

// DeleteSlotTombstone removes the deletion marker of a storage slot.
func DeleteSlotTombstone(db ethdb.KeyValueWriter, addr common.Address, slot common.Hash) error {
	return db.Delete(slotTombstoneKey(addr, slot))
}

// IterateTombstones walks all persisted deletion markers. Account markers are
// reported with a nil slot.
func IterateTombstones(db ethdb.Iteratee, fn func(addr common.Address, slot *common.Hash, height uint64)) error {
	it := db.NewIterator(TombstonePrefix, nil)
	defer it.Release()

	for it.Next() {
		key, val := it.Key(), it.Value()
		if len(val) != 8 {
			return fmt.Errorf("invalid tombstone entry %x", key)
		}
		height := binary.BigEndian.Uint64(val)

		switch {
		case len(key) == len(accountTombstonePrefix)+common.AddressLength && key[2] == accountTombstonePrefix[2]:
			fn(common.BytesToAddress(key[3:]), nil, height)
		case len(key) == len(slotTombstonePrefix)+common.AddressLength+common.HashLength && key[2] == slotTombstonePrefix[2]:
			slot := common.BytesToHash(key[3+common.AddressLength:])
			fn(common.BytesToAddress(key[3:3+common.AddressLength]), &slot, height)
		default:
			return fmt.Errorf("invalid tombstone key %x", key)
		}
	}
	return it.Error()
}
