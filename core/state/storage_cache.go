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
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// forkedStorage holds the remote storage values of one address that were
// read since the cache was created.
type forkedStorage struct {
	created uint64 // local height the cache was created at
	slots   map[common.Hash]common.Hash
}

// storageCaches keeps one forkedStorage per address. A revert below the
// creation height of a cache evicts it entirely.
type storageCaches struct {
	caches map[common.Address]*forkedStorage
	lock   sync.Mutex
}

func newStorageCaches() *storageCaches {
	return &storageCaches{caches: make(map[common.Address]*forkedStorage)}
}

func (c *storageCaches) get(addr common.Address, slot common.Hash) (common.Hash, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if s := c.caches[addr]; s != nil {
		val, ok := s.slots[slot]
		return val, ok
	}
	return common.Hash{}, false
}

func (c *storageCaches) put(addr common.Address, slot, val common.Hash, height uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	s := c.caches[addr]
	if s == nil {
		s = &forkedStorage{created: height, slots: make(map[common.Hash]common.Hash)}
		c.caches[addr] = s
	}
	s.slots[slot] = val
}

// evictAbove drops every cache created above height and returns how many
// were dropped.
func (c *storageCaches) evictAbove(height uint64) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	var dropped int
	for addr, s := range c.caches {
		if s.created > height {
			delete(c.caches, addr)
			dropped++
		}
	}
	return dropped
}

func (c *storageCaches) len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return len(c.caches)
}
