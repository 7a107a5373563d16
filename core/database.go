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

package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/log"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// OpenDatabase opens the key-value store of a chain. An empty path yields a
// memory database.
func OpenDatabase(path string, cache, handles int) (ethdb.Database, error) {
	if path == "" {
		log.Info("Using in-memory database")
		return rawdb.NewMemoryDatabase(), nil
	}
	kv, err := leveldb.New(path, cache, handles, "devchain/db/", false)
	if err != nil {
		if lerrors.IsCorrupted(err) {
			return nil, &InitializationError{Err: fmt.Errorf("database %s is corrupted: %w", path, err)}
		}
		return nil, &InitializationError{Err: err}
	}
	log.Info("Opened database", "path", path, "cache", cache, "handles", handles)
	return rawdb.NewDatabase(kv), nil
}
