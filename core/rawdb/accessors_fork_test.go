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
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
)

func TestTombstoneIteration(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()

	var (
		acct = common.HexToAddress("0x0a")
		cntr = common.HexToAddress("0x0b")
		slot = common.HexToHash("0x01")
	)
	WriteAccountTombstone(db, acct, 12)
	WriteSlotTombstone(db, cntr, slot, 15)

	// Unrelated keys under other prefixes must not be visited.
	WriteForkBlock(db, 10)
	WriteLastIndex(db, 3)

	accounts, slots := make(map[common.Address]uint64), make(map[common.Hash]uint64)
	err := IterateTombstones(db, func(addr common.Address, s *common.Hash, height uint64) {
		if s == nil {
			accounts[addr] = height
			return
		}
		if addr != cntr {
			t.Errorf("slot tombstone address mismatch: have %x, want %x", addr, cntr)
		}
		slots[*s] = height
	})
	if err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if accounts[acct] != 12 || len(accounts) != 1 {
		t.Errorf("account tombstones mismatch: %v", accounts)
	}
	if slots[slot] != 15 || len(slots) != 1 {
		t.Errorf("slot tombstones mismatch: %v", slots)
	}

	DeleteSlotTombstone(db, cntr, slot)
	DeleteAccountTombstone(db, acct)
	count := 0
	IterateTombstones(db, func(common.Address, *common.Hash, uint64) { count++ })
	if count != 0 {
		t.Fatalf("deleted tombstones still visited: %d", count)
	}
	if n, ok := ReadForkBlock(db); !ok || n != 10 {
		t.Fatalf("fork block mismatch: have %d/%v", n, ok)
	}
}
