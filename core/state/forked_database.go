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

// Package state layers the remote state of a forked chain under the local
// go-ethereum state database.
package state

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
)

// RemoteAccount is the state of an account on the forked chain.
type RemoteAccount struct {
	Nonce   uint64
	Balance *uint256.Int
	Code    []byte
}

// Empty reports whether the account carries no state at all.
func (a *RemoteAccount) Empty() bool {
	return a.Nonce == 0 && (a.Balance == nil || a.Balance.IsZero()) && len(a.Code) == 0
}

// Remote is the source of forked chain state, pinned to a block number by
// the caller.
type Remote interface {
	Account(ctx context.Context, addr common.Address, number uint64) (*RemoteAccount, error)
	Storage(ctx context.Context, addr common.Address, slot common.Hash, number uint64) (common.Hash, error)
}

// ForkedDatabase opens local state whose missing accounts, code and storage
// are read from a remote chain at the fork block.
type ForkedDatabase struct {
	db         *gethstate.CachingDB
	disk       ethdb.Database
	remote     Remote
	forkNumber uint64

	tombstones *Tombstones
	storage    *storageCaches

	codes    map[common.Hash][]byte
	codeLock sync.RWMutex
}

// NewForkedDatabase creates a forked state database over the local trie
// database.
func NewForkedDatabase(disk ethdb.Database, tdb *triedb.Database, remote Remote, forkNumber uint64) (*ForkedDatabase, error) {
	tombstones, err := NewTombstones(disk)
	if err != nil {
		return nil, err
	}
	return &ForkedDatabase{
		db:         gethstate.NewDatabase(tdb, nil),
		disk:       disk,
		remote:     remote,
		forkNumber: forkNumber,
		tombstones: tombstones,
		storage:    newStorageCaches(),
		codes:      make(map[common.Hash][]byte),
	}, nil
}

// ForkNumber returns the remote block the database is pinned to.
func (db *ForkedDatabase) ForkNumber() uint64 { return db.forkNumber }

// Tombstones returns the local deletion markers.
func (db *ForkedDatabase) Tombstones() *Tombstones { return db.tombstones }

// TrieDB returns the underlying trie database.
func (db *ForkedDatabase) TrieDB() *triedb.Database { return db.db.TrieDB() }

// At returns a state database whose readers resolve tombstones as of the
// given local height.
func (db *ForkedDatabase) At(height uint64) *ForkedView {
	return &ForkedView{CachingDB: db.db, fdb: db, height: height}
}

// Truncate forgets all local forked bookkeeping above height. It is called
// when blocks are popped off the local chain.
func (db *ForkedDatabase) Truncate(height uint64) error {
	if err := db.tombstones.Truncate(height); err != nil {
		return err
	}
	if n := db.storage.evictAbove(height); n > 0 {
		log.Debug("Evicted forked storage caches", "height", height, "count", n)
	}
	return nil
}

// remoteNumber returns the remote block that backs local height. Heights at
// or below the fork read the remote chain at that height.
func (db *ForkedDatabase) remoteNumber(height uint64) uint64 {
	if height < db.forkNumber {
		return height
	}
	return db.forkNumber
}

// account fetches the remote account and synthesises its local form. Empty
// remote accounts are reported as nil.
func (db *ForkedDatabase) account(addr common.Address, height uint64) (*gethtypes.StateAccount, error) {
	number := db.remoteNumber(height)
	remote, err := db.remote.Account(context.Background(), addr, number)
	if err != nil {
		return nil, err
	}
	if remote == nil || remote.Empty() {
		return nil, nil
	}
	acct := &gethtypes.StateAccount{
		Nonce:    remote.Nonce,
		Balance:  new(uint256.Int),
		Root:     gethtypes.EmptyRootHash,
		CodeHash: gethtypes.EmptyCodeHash.Bytes(),
	}
	if remote.Balance != nil {
		acct.Balance.Set(remote.Balance)
	}
	if len(remote.Code) > 0 {
		hash := crypto.Keccak256Hash(remote.Code)
		acct.CodeHash = hash.Bytes()

		db.codeLock.Lock()
		if _, ok := db.codes[hash]; !ok {
			db.codes[hash] = remote.Code
			gethrawdb.WriteCode(db.disk, hash, remote.Code)
		}
		db.codeLock.Unlock()
	}
	log.Trace("Resolved remote account", "address", addr, "number", number)
	return acct, nil
}

func (db *ForkedDatabase) code(hash common.Hash) []byte {
	db.codeLock.RLock()
	defer db.codeLock.RUnlock()

	return db.codes[hash]
}

// slot fetches a remote storage value. Accounts without code on the remote
// chain have no storage and are not queried. Only values at the fork block
// go through the per-address storage caches.
func (db *ForkedDatabase) slot(addr common.Address, slot common.Hash, height uint64) (common.Hash, error) {
	number := db.remoteNumber(height)
	atFork := number == db.forkNumber
	if atFork {
		if val, ok := db.storage.get(addr, slot); ok {
			return val, nil
		}
	}
	remote, err := db.remote.Account(context.Background(), addr, number)
	if err != nil {
		return common.Hash{}, err
	}
	var val common.Hash
	if remote != nil && len(remote.Code) > 0 {
		if val, err = db.remote.Storage(context.Background(), addr, slot, number); err != nil {
			return common.Hash{}, err
		}
	}
	if atFork {
		db.storage.put(addr, slot, val, height)
	}
	return val, nil
}

// ForkedView is a state database bound to a local height. It records which
// keys its readers were asked for so that local deletions of remote state
// can be detected when the block is committed.
type ForkedView struct {
	*gethstate.CachingDB

	fdb     *ForkedDatabase
	height  uint64
	readers []*forkedReader
	lock    sync.Mutex
}

// Height returns the local height the view resolves tombstones at.
func (v *ForkedView) Height() uint64 { return v.height }

// Reader implements state.Database, wrapping the local reader with the
// remote fallback.
func (v *ForkedView) Reader(root common.Hash) (gethstate.Reader, error) {
	inner, err := v.CachingDB.Reader(root)
	if err != nil {
		return nil, err
	}
	r := newForkedReader(inner, v)

	v.lock.Lock()
	v.readers = append(v.readers, r)
	v.lock.Unlock()
	return r, nil
}

// CommitTombstones marks every account and slot read through this view that
// statedb no longer holds but the remote chain does, whether the value came
// from the remote chain or from an earlier local write. It must run after the
// state has been finalised and before it is committed.
func (v *ForkedView) CommitTombstones(statedb *gethstate.StateDB) error {
	v.lock.Lock()
	readers := append([]*forkedReader(nil), v.readers...)
	v.lock.Unlock()

	tombs := v.fdb.tombstones
	for _, r := range readers {
		for _, item := range r.accounts.ToSlice() {
			addr := item.(common.Address)
			if statedb.Exist(addr) || tombs.DeletedAt(addr, nil, v.height) {
				continue
			}
			remote, err := v.fdb.account(addr, v.height)
			if err != nil {
				return err
			}
			if remote == nil {
				continue
			}
			if err := tombs.MarkAccount(addr, v.height); err != nil {
				return err
			}
		}
		for _, item := range r.slots.ToSlice() {
			key := item.(slotKey)
			if statedb.GetState(key.addr, key.slot) != (common.Hash{}) || tombs.DeletedAt(key.addr, &key.slot, v.height) {
				continue
			}
			remote, err := v.fdb.slot(key.addr, key.slot, v.height)
			if err != nil {
				return err
			}
			if remote == (common.Hash{}) {
				continue
			}
			if err := tombs.MarkSlot(key.addr, key.slot, v.height); err != nil {
				return err
			}
		}
	}
	return nil
}
