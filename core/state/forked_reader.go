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
	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// forkedReader serves local state first and falls back to the remote chain
// for values the local trie does not hold and no tombstone hides.
type forkedReader struct {
	gethstate.Reader

	view *ForkedView

	// Every key asked for, wherever it was served from. Any write or
	// deletion during a block reads the key first.
	accounts mapset.Set // common.Address
	slots    mapset.Set // slotKey
}

func newForkedReader(inner gethstate.Reader, view *ForkedView) *forkedReader {
	return &forkedReader{
		Reader:   inner,
		view:     view,
		accounts: mapset.NewSet(),
		slots:    mapset.NewSet(),
	}
}

// Account implements state.Reader.
func (r *forkedReader) Account(addr common.Address) (*gethtypes.StateAccount, error) {
	r.accounts.Add(addr)
	acct, err := r.Reader.Account(addr)
	if err != nil || acct != nil {
		return acct, err
	}
	fdb := r.view.fdb
	if fdb.tombstones.DeletedAt(addr, nil, r.view.height) {
		return nil, nil
	}
	return fdb.account(addr, r.view.height)
}

// Storage implements state.Reader.
func (r *forkedReader) Storage(addr common.Address, slot common.Hash) (common.Hash, error) {
	r.slots.Add(slotKey{addr, slot})
	val, err := r.Reader.Storage(addr, slot)
	if err != nil || val != (common.Hash{}) {
		return val, err
	}
	fdb := r.view.fdb
	if fdb.tombstones.DeletedAt(addr, &slot, r.view.height) {
		return common.Hash{}, nil
	}
	return fdb.slot(addr, slot, r.view.height)
}

// Code implements state.ContractCodeReader.
func (r *forkedReader) Code(addr common.Address, codeHash common.Hash) ([]byte, error) {
	code, err := r.Reader.Code(addr, codeHash)
	if len(code) == 0 && codeHash != gethtypes.EmptyCodeHash {
		if remote := r.view.fdb.code(codeHash); remote != nil {
			return remote, nil
		}
	}
	return code, err
}

// CodeSize implements state.ContractCodeReader.
func (r *forkedReader) CodeSize(addr common.Address, codeHash common.Hash) (int, error) {
	size, err := r.Reader.CodeSize(addr, codeHash)
	if size == 0 && codeHash != gethtypes.EmptyCodeHash {
		if remote := r.view.fdb.code(codeHash); remote != nil {
			return len(remote), nil
		}
	}
	return size, err
}
