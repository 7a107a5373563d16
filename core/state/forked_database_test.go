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
	"context"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/ethereum/go-ethereum/triedb/hashdb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	accounts map[common.Address]*RemoteAccount
	storage  map[common.Address]map[common.Hash]common.Hash

	storageCalls atomic.Int32
}

func (r *fakeRemote) Account(ctx context.Context, addr common.Address, number uint64) (*RemoteAccount, error) {
	if acct, ok := r.accounts[addr]; ok {
		return acct, nil
	}
	return &RemoteAccount{Balance: new(uint256.Int)}, nil
}

func (r *fakeRemote) Storage(ctx context.Context, addr common.Address, slot common.Hash, number uint64) (common.Hash, error) {
	r.storageCalls.Add(1)
	return r.storage[addr][slot], nil
}

var (
	holder   = common.HexToAddress("0x1000")
	contract = common.HexToAddress("0x2000")
	slotOne  = common.HexToHash("0x01")
	valSeven = common.HexToHash("0x07")
	code     = []byte{0x60, 0x00, 0x54, 0x00} // PUSH1 0 SLOAD STOP
)

func newTestForkedDatabase(t *testing.T) (*ForkedDatabase, *fakeRemote, ethdb.Database, *triedb.Database) {
	remote := &fakeRemote{
		accounts: map[common.Address]*RemoteAccount{
			holder:   {Nonce: 3, Balance: uint256.NewInt(1000)},
			contract: {Nonce: 1, Balance: new(uint256.Int), Code: code},
		},
		storage: map[common.Address]map[common.Hash]common.Hash{
			contract: {slotOne: valSeven},
			holder:   {slotOne: valSeven},
		},
	}
	disk := gethrawdb.NewMemoryDatabase()
	tdb := triedb.NewDatabase(disk, &triedb.Config{HashDB: hashdb.Defaults})
	fdb, err := NewForkedDatabase(disk, tdb, remote, 10)
	require.NoError(t, err)
	return fdb, remote, disk, tdb
}

func commitState(t *testing.T, view *ForkedView, statedb *gethstate.StateDB, tdb *triedb.Database) common.Hash {
	statedb.Finalise(true)
	require.NoError(t, view.CommitTombstones(statedb))
	root, err := statedb.Commit(view.Height(), true, false)
	require.NoError(t, err)
	require.NoError(t, tdb.Commit(root, false))
	return root
}

func TestForkedReaderFallback(t *testing.T) {
	fdb, remote, _, _ := newTestForkedDatabase(t)

	statedb, err := gethstate.New(gethtypes.EmptyRootHash, fdb.At(11))
	require.NoError(t, err)

	assert.Equal(t, uint64(1000), statedb.GetBalance(holder).Uint64())
	assert.Equal(t, uint64(3), statedb.GetNonce(holder))
	assert.Equal(t, code, statedb.GetCode(contract))
	assert.Equal(t, valSeven, statedb.GetState(contract, slotOne))

	// Accounts without code have no storage on the remote chain.
	before := remote.storageCalls.Load()
	assert.Equal(t, common.Hash{}, statedb.GetState(holder, slotOne))
	assert.Equal(t, before, remote.storageCalls.Load())

	assert.False(t, statedb.Exist(common.HexToAddress("0xdead")))
}

func TestForkedLocalWritesWin(t *testing.T) {
	fdb, _, _, tdb := newTestForkedDatabase(t)

	view := fdb.At(11)
	statedb, err := gethstate.New(gethtypes.EmptyRootHash, view)
	require.NoError(t, err)
	statedb.SetState(contract, slotOne, common.HexToHash("0x19"))
	statedb.AddBalance(holder, uint256.NewInt(1), 0)
	root := commitState(t, view, statedb, tdb)

	statedb, err = gethstate.New(root, fdb.At(12))
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x19"), statedb.GetState(contract, slotOne))
	assert.Equal(t, uint64(1001), statedb.GetBalance(holder).Uint64())
	assert.Zero(t, fdb.Tombstones().Len())
}

func TestForkedTombstones(t *testing.T) {
	fdb, _, disk, tdb := newTestForkedDatabase(t)

	view := fdb.At(11)
	statedb, err := gethstate.New(gethtypes.EmptyRootHash, view)
	require.NoError(t, err)
	require.Equal(t, valSeven, statedb.GetState(contract, slotOne))
	statedb.SetState(contract, slotOne, common.Hash{})
	root := commitState(t, view, statedb, tdb)

	height, ok := fdb.Tombstones().Slot(contract, slotOne)
	require.True(t, ok)
	assert.Equal(t, uint64(11), height)

	// Cleared locally, the remote value must stay hidden.
	statedb, err = gethstate.New(root, fdb.At(12))
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, statedb.GetState(contract, slotOne))

	// Tombstones survive a reopen.
	reopened, err := NewTombstones(disk)
	require.NoError(t, err)
	assert.True(t, reopened.DeletedAt(contract, &slotOne, 11))
	assert.False(t, reopened.DeletedAt(contract, &slotOne, 10))

	// Popping the block that cleared the slot brings the remote value back.
	require.NoError(t, fdb.Truncate(10))
	assert.Zero(t, fdb.Tombstones().Len())
	statedb, err = gethstate.New(gethtypes.EmptyRootHash, fdb.At(11))
	require.NoError(t, err)
	assert.Equal(t, valSeven, statedb.GetState(contract, slotOne))
}

func TestForkedTombstoneAfterLocalWrite(t *testing.T) {
	fdb, _, _, tdb := newTestForkedDatabase(t)

	view := fdb.At(11)
	statedb, err := gethstate.New(gethtypes.EmptyRootHash, view)
	require.NoError(t, err)
	statedb.SetState(contract, slotOne, common.HexToHash("0x09"))
	root := commitState(t, view, statedb, tdb)
	assert.Zero(t, fdb.Tombstones().Len())

	// The slot now reads from the local trie, yet clearing it must still
	// hide the remote value.
	view = fdb.At(12)
	statedb, err = gethstate.New(root, view)
	require.NoError(t, err)
	statedb.SetState(contract, slotOne, common.Hash{})
	root = commitState(t, view, statedb, tdb)

	height, ok := fdb.Tombstones().Slot(contract, slotOne)
	require.True(t, ok)
	assert.Equal(t, uint64(12), height)

	statedb, err = gethstate.New(root, fdb.At(13))
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, statedb.GetState(contract, slotOne))
}

func TestForkedAccountTombstone(t *testing.T) {
	fdb, _, _, tdb := newTestForkedDatabase(t)

	view := fdb.At(11)
	statedb, err := gethstate.New(gethtypes.EmptyRootHash, view)
	require.NoError(t, err)
	require.True(t, statedb.Exist(holder))
	statedb.SetNonce(holder, 0, 0)
	statedb.SubBalance(holder, uint256.NewInt(1000), 0)
	root := commitState(t, view, statedb, tdb)

	height, ok := fdb.Tombstones().Account(holder)
	require.True(t, ok, "emptied account must be deleted and marked")
	assert.Equal(t, uint64(11), height)

	statedb, err = gethstate.New(root, fdb.At(12))
	require.NoError(t, err)
	assert.False(t, statedb.Exist(holder))
}

func TestTombstonesEarliestWins(t *testing.T) {
	tombs, err := NewTombstones(gethrawdb.NewMemoryDatabase())
	require.NoError(t, err)

	require.NoError(t, tombs.MarkSlot(contract, slotOne, 20))
	require.NoError(t, tombs.MarkSlot(contract, slotOne, 25))
	h, _ := tombs.Slot(contract, slotOne)
	assert.Equal(t, uint64(20), h)

	require.NoError(t, tombs.MarkSlot(contract, slotOne, 15))
	h, _ = tombs.Slot(contract, slotOne)
	assert.Equal(t, uint64(15), h)
	assert.Equal(t, 1, tombs.Len())

	require.NoError(t, tombs.MarkAccount(holder, 30))
	require.NoError(t, tombs.Truncate(20))
	assert.Equal(t, 1, tombs.Len())
	_, ok := tombs.Account(holder)
	assert.False(t, ok)
}

func TestStorageCacheEviction(t *testing.T) {
	caches := newStorageCaches()
	caches.put(contract, slotOne, valSeven, 11)
	caches.put(holder, slotOne, valSeven, 14)

	assert.Equal(t, 1, caches.evictAbove(12))
	_, ok := caches.get(holder, slotOne)
	assert.False(t, ok)
	val, ok := caches.get(contract, slotOne)
	assert.True(t, ok)
	assert.Equal(t, valSeven, val)
	assert.Equal(t, 1, caches.len())
}
