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
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCacheCapacity(t *testing.T) {
	keys := make([]cacheKey, 5)
	for i := range keys {
		keys[i] = cacheKey{kind: storageValue, addr: common.Address{byte(i)}, number: 1}
	}
	tests := []struct {
		capacity int
		retained int
	}{
		{0, 0},
		{-1, 5},
		{3, 3},
	}
	for _, tt := range tests {
		cache := NewCache(tt.capacity)
		if tt.capacity == 0 && cache != nil {
			t.Fatalf("zero capacity must disable the cache")
		}
		for i, key := range keys {
			cache.Add(key, i)
		}
		if have := cache.Len(); have != tt.retained {
			t.Errorf("capacity %d: retained %d entries, want %d", tt.capacity, have, tt.retained)
		}
		// The most recent entry survives unless caching is disabled.
		val, ok := cache.Get(keys[len(keys)-1])
		if ok != (tt.retained > 0) {
			t.Errorf("capacity %d: latest entry presence %v", tt.capacity, ok)
		}
		if ok && val.(int) != len(keys)-1 {
			t.Errorf("capacity %d: wrong value %v", tt.capacity, val)
		}
		if tt.capacity > 0 {
			if _, ok := cache.Get(keys[0]); ok {
				t.Errorf("capacity %d: oldest entry not evicted", tt.capacity)
			}
		}
	}
}

func TestCacheKeyDistinguishesBlocks(t *testing.T) {
	cache := NewCache(-1)
	a := cacheKey{kind: accountValue, addr: common.Address{1}, number: 1}
	b := a
	b.number = 2

	cache.Add(a, "one")
	if _, ok := cache.Get(b); ok {
		t.Fatal("entries of different blocks must not alias")
	}
	if a.String() == b.String() {
		t.Fatal("flight keys of different blocks must differ")
	}
}
