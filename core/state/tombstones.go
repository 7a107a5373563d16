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

package state

import (
	"bytes"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/btree"
	"github.com/probeum/devchain/core/rawdb"
)

// tombstone marks an account or a storage slot that exists on the remote
// chain but was deleted locally at height.
type tombstone struct {
	height uint64
	addr   common.Address
	slot   *common.Hash // nil for account tombstones
}

func tombstoneLess(a, b tombstone) bool {
	if a.height != b.height {
		return a.height < b.height
	}
	if c := bytes.Compare(a.addr[:], b.addr[:]); c != 0 {
		return c < 0
	}
	switch {
	case a.slot == nil:
		return b.slot != nil
	case b.slot == nil:
		return false
	}
	return bytes.Compare(a.slot[:], b.slot[:]) < 0
}

type slotKey struct {
	addr common.Address
	slot common.Hash
}

// Tombstones is the set of local deletions of remote state. Only the earliest
// deletion height of each key is kept; a later non-zero write is visible
// through the local trie and needs no marker.
type Tombstones struct {
	db ethdb.KeyValueStore

	byHeight *btree.BTreeG[tombstone]
	accounts map[common.Address]uint64
	slots    map[slotKey]uint64
	lock     sync.RWMutex
}

// NewTombstones loads the persisted deletion markers from db.
func NewTombstones(db ethdb.KeyValueStore) (*Tombstones, error) {
	t := &Tombstones{
		db:       db,
		byHeight: btree.NewG(32, tombstoneLess),
		accounts: make(map[common.Address]uint64),
		slots:    make(map[slotKey]uint64),
	}
	err := rawdb.IterateTombstones(db, func(addr common.Address, slot *common.Hash, height uint64) {
		t.byHeight.ReplaceOrInsert(tombstone{height: height, addr: addr, slot: slot})
		if slot == nil {
			t.accounts[addr] = height
		} else {
			t.slots[slotKey{addr, *slot}] = height
		}
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Account returns the deletion height of addr, if any.
func (t *Tombstones) Account(addr common.Address) (uint64, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	height, ok := t.accounts[addr]
	return height, ok
}

// Slot returns the deletion height of a storage slot, if any.
func (t *Tombstones) Slot(addr common.Address, slot common.Hash) (uint64, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	height, ok := t.slots[slotKey{addr, slot}]
	return height, ok
}

// DeletedAt reports whether the account is deleted, or the slot cleared, as
// of height. Either tombstone hides the remote value of a slot.
func (t *Tombstones) DeletedAt(addr common.Address, slot *common.Hash, height uint64) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if h, ok := t.accounts[addr]; ok && h <= height {
		return true
	}
	if slot == nil {
		return false
	}
	h, ok := t.slots[slotKey{addr, *slot}]
	return ok && h <= height
}

// MarkAccount records the deletion of addr at height unless an earlier marker
// exists.
func (t *Tombstones) MarkAccount(addr common.Address, height uint64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if h, ok := t.accounts[addr]; ok && h <= height {
		return nil
	}
	if err := rawdb.WriteAccountTombstone(t.db, addr, height); err != nil {
		return err
	}
	if h, ok := t.accounts[addr]; ok {
		t.byHeight.Delete(tombstone{height: h, addr: addr})
	}
	t.accounts[addr] = height
	t.byHeight.ReplaceOrInsert(tombstone{height: height, addr: addr})
	return nil
}

// MarkSlot records the clearing of a storage slot at height unless an
// earlier marker exists.
func (t *Tombstones) MarkSlot(addr common.Address, slot common.Hash, height uint64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	key := slotKey{addr, slot}
	if h, ok := t.slots[key]; ok && h <= height {
		return nil
	}
	if err := rawdb.WriteSlotTombstone(t.db, addr, slot, height); err != nil {
		return err
	}
	if h, ok := t.slots[key]; ok {
		t.byHeight.Delete(tombstone{height: h, addr: addr, slot: &slot})
	}
	t.slots[key] = height
	t.byHeight.ReplaceOrInsert(tombstone{height: height, addr: addr, slot: &slot})
	return nil
}

// Truncate drops every marker recorded above height.
func (t *Tombstones) Truncate(height uint64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	var stale []tombstone
	t.byHeight.AscendGreaterOrEqual(tombstone{height: height + 1}, func(item tombstone) bool {
		stale = append(stale, item)
		return true
	})
	batch := t.db.NewBatch()
	for _, item := range stale {
		t.byHeight.Delete(item)
		if item.slot == nil {
			delete(t.accounts, item.addr)
			rawdb.DeleteAccountTombstone(batch, item.addr)
		} else {
			delete(t.slots, slotKey{item.addr, *item.slot})
			rawdb.DeleteSlotTombstone(batch, item.addr, *item.slot)
		}
	}
	if len(stale) > 0 {
		log.Debug("Truncated fork tombstones", "height", height, "dropped", len(stale))
	}
	return batch.Write()
}

// Len returns the number of markers.
func (t *Tombstones) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.byHeight.Len()
}
