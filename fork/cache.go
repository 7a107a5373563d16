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

package fork

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru"
)

var (
	cacheHitMeter  = metrics.NewRegisteredMeter("fork/cache/hit", nil)
	cacheMissMeter = metrics.NewRegisteredMeter("fork/cache/miss", nil)
)

type valueKind uint8

const (
	accountValue valueKind = iota
	storageValue
)

// cacheKey identifies a remote value. Remote state at a block never changes,
// so entries are never invalidated.
type cacheKey struct {
	kind   valueKind
	addr   common.Address
	slot   common.Hash
	number uint64
}

func (k cacheKey) String() string {
	return fmt.Sprintf("%d:%x:%x:%d", k.kind, k.addr, k.slot, k.number)
}

// Cache holds remote values keyed by kind, address, slot and block number.
// A nil Cache stores nothing.
type Cache struct {
	bounded   *lru.Cache
	unbounded map[cacheKey]interface{}
	lock      sync.Mutex
}

// NewCache creates a cache for the given capacity: zero disables the cache
// (returning nil), a negative capacity is unbounded and a positive one
// evicts the least recently used entries beyond it.
func NewCache(capacity int) *Cache {
	switch {
	case capacity == 0:
		return nil
	case capacity < 0:
		return &Cache{unbounded: make(map[cacheKey]interface{})}
	}
	bounded, err := lru.New(capacity)
	if err != nil {
		panic(err) // only fails for non-positive sizes
	}
	return &Cache{bounded: bounded}
}

// Get retrieves a cached value.
func (c *Cache) Get(key cacheKey) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	var (
		val interface{}
		ok  bool
	)
	if c.bounded != nil {
		val, ok = c.bounded.Get(key)
	} else {
		c.lock.Lock()
		val, ok = c.unbounded[key]
		c.lock.Unlock()
	}
	if ok {
		cacheHitMeter.Mark(1)
	} else {
		cacheMissMeter.Mark(1)
	}
	return val, ok
}

// Add inserts a value into the cache.
func (c *Cache) Add(key cacheKey, val interface{}) {
	if c == nil {
		return
	}
	if c.bounded != nil {
		c.bounded.Add(key, val)
		return
	}
	c.lock.Lock()
	c.unbounded[key] = val
	c.lock.Unlock()
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	if c.bounded != nil {
		return c.bounded.Len()
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.unbounded)
}
