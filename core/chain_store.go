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
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/probeum/devchain/core/rawdb"
	"github.com/probeum/devchain/core/types"
)

var (
	blockCacheHitMeter  = metrics.NewRegisteredMeter("chain/blocks/cache/hit", nil)
	blockCacheMissMeter = metrics.NewRegisteredMeter("chain/blocks/cache/miss", nil)
)

// ChainStore is the append-only list of local blocks with their logs,
// transactions and receipts. Blocks are addressed by local index, which is
// the block number minus the number of the first local block.
type ChainStore struct {
	db    ethdb.Database
	first uint64 // number of the block at local index 0

	blocks *fastcache.Cache // encoded blocks by local index
	length uint64
	lock   sync.RWMutex
}

// NewChainStore opens the flat indexes in db.
func NewChainStore(db ethdb.Database, first uint64, cacheSize int) *ChainStore {
	s := &ChainStore{
		db:     db,
		first:  first,
		blocks: fastcache.New(cacheSize),
	}
	if last, ok := rawdb.ReadLastIndex(db); ok {
		s.length = last + 1
	}
	return s
}

// Len returns the number of local blocks.
func (s *ChainStore) Len() uint64 {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.length
}

// First returns the number of the first local block.
func (s *ChainStore) First() uint64 { return s.first }

// Head returns the latest local block, or nil for an empty store.
func (s *ChainStore) Head() (*types.Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.length == 0 {
		return nil, nil
	}
	return s.blockAt(s.length - 1)
}

// BlockByNumber returns the block with the given number, or nil if it is not
// a local block.
func (s *ChainStore) BlockByNumber(number uint64) (*types.Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if number < s.first || number-s.first >= s.length {
		return nil, nil
	}
	return s.blockAt(number - s.first)
}

// BlockByHash returns the block with the given hash, or nil if it is not a
// local block.
func (s *ChainStore) BlockByHash(hash common.Hash) (*types.Block, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	index, ok := rawdb.ReadBlockIndex(s.db, hash)
	if !ok || index >= s.length {
		return nil, nil
	}
	return s.blockAt(index)
}

func (s *ChainStore) blockAt(index uint64) (*types.Block, error) {
	key := encodeBlockCacheKey(index)
	data, ok := s.blocks.HasGet(nil, key)
	if ok {
		blockCacheHitMeter.Mark(1)
	} else {
		blockCacheMissMeter.Mark(1)
		data = rawdb.ReadBlockRLP(s.db, index)
		if len(data) == 0 {
			return nil, fmt.Errorf("missing block at index %d", index)
		}
		s.blocks.Set(key, data)
	}
	block := new(types.Block)
	if err := rlp.DecodeBytes(data, block); err != nil {
		return nil, fmt.Errorf("invalid block at index %d: %w", index, err)
	}
	return block, nil
}

// Logs returns the logs emitted by the block with the given number.
func (s *ChainStore) Logs(number uint64) ([]*gethtypes.Log, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if number < s.first || number-s.first >= s.length {
		return nil, nil
	}
	return rawdb.ReadBlockLogs(s.db, number-s.first)
}

// Transaction returns a mined transaction, or nil if it is unknown.
func (s *ChainStore) Transaction(hash common.Hash) (*types.Transaction, error) {
	data := rawdb.ReadTransactionRLP(s.db, hash)
	if len(data) == 0 {
		return nil, nil
	}
	tx := new(types.Transaction)
	if err := rlp.DecodeBytes(data, tx); err != nil {
		return nil, err
	}
	if tx.Hash() != hash {
		return nil, &StoreConsistencyError{Key: hash, Have: tx.Hash()}
	}
	return tx, nil
}

// Receipt returns the receipt of a mined transaction, or nil if it is
// unknown.
func (s *ChainStore) Receipt(hash common.Hash) (*gethtypes.Receipt, error) {
	return rawdb.ReadReceipt(s.db, hash)
}

// Append atomically stores block with its receipts, transactions and logs.
// Receipts must carry their final block fields.
func (s *ChainStore) Append(block *types.Block, receipts []*gethtypes.Receipt) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if want := s.first + s.length; block.NumberU64() != want {
		return fmt.Errorf("non-contiguous block %d, expected %d", block.NumberU64(), want)
	}
	txs := block.Transactions()
	if len(txs) != len(receipts) {
		return fmt.Errorf("block %d has %d transactions but %d receipts", block.NumberU64(), len(txs), len(receipts))
	}
	var (
		index = s.length
		batch = s.db.NewBatch()
		logs  []*gethtypes.Log
	)
	if err := rawdb.WriteBlock(batch, index, block); err != nil {
		return err
	}
	if err := rawdb.WriteBlockIndex(batch, block.Hash(), index); err != nil {
		return err
	}
	for i, tx := range txs {
		if err := rawdb.WriteTransaction(batch, tx); err != nil {
			return err
		}
		if err := rawdb.WriteReceipt(batch, receipts[i]); err != nil {
			return err
		}
		logs = append(logs, receipts[i].Logs...)
	}
	if err := rawdb.WriteBlockLogs(batch, index, logs); err != nil {
		return err
	}
	if err := rawdb.WriteLastIndex(batch, index); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.length++
	return nil
}

// Pop removes the latest block and everything indexed with it.
func (s *ChainStore) Pop() (*types.Block, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.length == 0 {
		return nil, nil
	}
	index := s.length - 1
	block, err := s.blockAt(index)
	if err != nil {
		return nil, err
	}
	batch := s.db.NewBatch()
	for _, tx := range block.Transactions() {
		rawdb.DeleteTransaction(batch, tx.Hash())
		rawdb.DeleteReceipt(batch, tx.Hash())
	}
	rawdb.DeleteBlockLogs(batch, index)
	rawdb.DeleteBlockIndex(batch, block.Hash())
	rawdb.DeleteBlock(batch, index)
	if index == 0 {
		rawdb.DeleteLastIndex(batch)
	} else {
		rawdb.WriteLastIndex(batch, index-1)
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	s.blocks.Del(encodeBlockCacheKey(index))
	s.length--
	return block, nil
}

// Verify checks that every stored transaction decodes to the hash it is
// stored under and that every block is indexed by its hash.
func (s *ChainStore) Verify() error {
	err := rawdb.IterateTransactions(s.db, func(hash common.Hash, data []byte) error {
		tx := new(types.Transaction)
		if err := rlp.DecodeBytes(data, tx); err != nil {
			return fmt.Errorf("transaction %x: %w", hash, err)
		}
		if tx.Hash() != hash {
			return &StoreConsistencyError{Key: hash, Have: tx.Hash()}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.lock.RLock()
	defer s.lock.RUnlock()

	for index := uint64(0); index < s.length; index++ {
		block, err := s.blockAt(index)
		if err != nil {
			return err
		}
		if have, ok := rawdb.ReadBlockIndex(s.db, block.Hash()); !ok || have != index {
			return &StoreConsistencyError{Key: block.Hash(), Have: common.BigToHash(block.Number())}
		}
	}
	return nil
}

// Reset drops the encoded block cache.
func (s *ChainStore) Reset() {
	s.blocks.Reset()
}

func encodeBlockCacheKey(index uint64) []byte {
	return []byte{
		byte(index >> 56), byte(index >> 48), byte(index >> 40), byte(index >> 32),
		byte(index >> 24), byte(index >> 16), byte(index >> 8), byte(index),
	}
}
