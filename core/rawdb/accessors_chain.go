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
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/probeum/devchain/core/types"
)

// ReadLastIndex retrieves the local index of the chain tip. The second result
// is false for a database that holds no blocks yet.
func ReadLastIndex(db ethdb.KeyValueReader) (uint64, bool) {
	data, _ := db.Get(lastIndexKey)
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// WriteLastIndex stores the local index of the chain tip.
func WriteLastIndex(db ethdb.KeyValueWriter, index uint64) error {
	return db.Put(lastIndexKey, encodeIndex(index))
}

// DeleteLastIndex marks the chain as empty.
func DeleteLastIndex(db ethdb.KeyValueWriter) error {
	return db.Delete(lastIndexKey)
}

// ReadBlockRLP retrieves the encoded block at the given local index.
func ReadBlockRLP(db ethdb.KeyValueReader, index uint64) rlp.RawValue {
	data, _ := db.Get(blockKey(index))
	return data
}

// WriteBlock stores a block at the given local index.
func WriteBlock(db ethdb.KeyValueWriter, index uint64, block *types.Block) error {
	data, err := rlp.EncodeToBytes(block)
	if err != nil {
		return err
	}
	return db.Put(blockKey(index), data)
}

// DeleteBlock removes the block at the given local index.
func DeleteBlock(db ethdb.KeyValueWriter, index uint64) error {
	return db.Delete(blockKey(index))
}

// ReadBlockIndex retrieves the local index of the block with the given hash.
func ReadBlockIndex(db ethdb.KeyValueReader, hash common.Hash) (uint64, bool) {
	data, _ := db.Get(blockIndexKey(hash))
	if len(data) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(data), true
}

// WriteBlockIndex stores the hash to index mapping of a block.
func WriteBlockIndex(db ethdb.KeyValueWriter, hash common.Hash, index uint64) error {
	return db.Put(blockIndexKey(hash), encodeIndex(index))
}

// DeleteBlockIndex removes the hash to index mapping of a block.
func DeleteBlockIndex(db ethdb.KeyValueWriter, hash common.Hash) error {
	return db.Delete(blockIndexKey(hash))
}

// storedLog is the persisted form of a log. Unlike the consensus encoding it
// keeps every derived field so that a reopened chain returns identical logs.
type storedLog struct {
	Address     common.Address
	Topics      []common.Hash
	Data        []byte
	BlockNumber uint64
	TxHash      common.Hash
	TxIndex     uint64
	BlockHash   common.Hash
	Index       uint64
}

func newStoredLog(l *gethtypes.Log) *storedLog {
	return &storedLog{
		Address:     l.Address,
		Topics:      l.Topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		TxHash:      l.TxHash,
		TxIndex:     uint64(l.TxIndex),
		BlockHash:   l.BlockHash,
		Index:       uint64(l.Index),
	}
}

func (s *storedLog) log() *gethtypes.Log {
	return &gethtypes.Log{
		Address:     s.Address,
		Topics:      s.Topics,
		Data:        s.Data,
		BlockNumber: s.BlockNumber,
		TxHash:      s.TxHash,
		TxIndex:     uint(s.TxIndex),
		BlockHash:   s.BlockHash,
		Index:       uint(s.Index),
	}
}

func encodeLogs(logs []*gethtypes.Log) []*storedLog {
	stored := make([]*storedLog, len(logs))
	for i, l := range logs {
		stored[i] = newStoredLog(l)
	}
	return stored
}

func decodeLogs(stored []*storedLog) []*gethtypes.Log {
	logs := make([]*gethtypes.Log, len(stored))
	for i, s := range stored {
		logs[i] = s.log()
	}
	return logs
}

// ReadBlockLogs retrieves all logs emitted by the block at the given local
// index. A missing entry yields nil without error.
func ReadBlockLogs(db ethdb.KeyValueReader, index uint64) ([]*gethtypes.Log, error) {
	data, _ := db.Get(blockLogsKey(index))
	if len(data) == 0 {
		return nil, nil
	}
	var stored []*storedLog
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	return decodeLogs(stored), nil
}

// WriteBlockLogs stores the logs of the block at the given local index.
func WriteBlockLogs(db ethdb.KeyValueWriter, index uint64, logs []*gethtypes.Log) error {
	data, err := rlp.EncodeToBytes(encodeLogs(logs))
	if err != nil {
		return err
	}
	return db.Put(blockLogsKey(index), data)
}

// DeleteBlockLogs removes the logs of the block at the given local index.
func DeleteBlockLogs(db ethdb.KeyValueWriter, index uint64) error {
	return db.Delete(blockLogsKey(index))
}

// ReadTransactionRLP retrieves the encoded transaction with the given hash.
func ReadTransactionRLP(db ethdb.KeyValueReader, hash common.Hash) rlp.RawValue {
	data, _ := db.Get(txKey(hash))
	return data
}

// WriteTransaction stores a transaction under its hash.
func WriteTransaction(db ethdb.KeyValueWriter, tx *types.Transaction) error {
	data, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return err
	}
	return db.Put(txKey(tx.Hash()), data)
}

// DeleteTransaction removes the transaction with the given hash.
func DeleteTransaction(db ethdb.KeyValueWriter, hash common.Hash) error {
	return db.Delete(txKey(hash))
}

// IterateTransactions calls fn for every stored transaction in key order. It
// stops at the first error fn returns.
func IterateTransactions(db ethdb.Iteratee, fn func(hash common.Hash, data []byte) error) error {
	it := db.NewIterator(txPrefix, nil)
	defer it.Release()

	for it.Next() {
		key := it.Key()
		if len(key) != len(txPrefix)+common.HashLength {
			continue
		}
		if err := fn(common.BytesToHash(key[len(txPrefix):]), common.CopyBytes(it.Value())); err != nil {
			return err
		}
	}
	return it.Error()
}

// storedReceipt is the persisted form of a receipt, including the block and
// transaction position fields the consensus encoding leaves out.
type storedReceipt struct {
	Type              uint8
	Status            uint64
	CumulativeGasUsed uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	ContractAddress   common.Address
	TxHash            common.Hash
	BlockHash         common.Hash
	BlockNumber       uint64
	TransactionIndex  uint64
	Logs              []*storedLog
}

// ReadReceipt retrieves the receipt of the transaction with the given hash.
// A missing receipt yields nil without error.
func ReadReceipt(db ethdb.KeyValueReader, hash common.Hash) (*gethtypes.Receipt, error) {
	data, _ := db.Get(receiptKey(hash))
	if len(data) == 0 {
		return nil, nil
	}
	var stored storedReceipt
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, err
	}
	receipt := &gethtypes.Receipt{
		Type:              stored.Type,
		Status:            stored.Status,
		CumulativeGasUsed: stored.CumulativeGasUsed,
		GasUsed:           stored.GasUsed,
		EffectiveGasPrice: stored.EffectiveGasPrice,
		ContractAddress:   stored.ContractAddress,
		TxHash:            stored.TxHash,
		BlockHash:         stored.BlockHash,
		BlockNumber:       new(big.Int).SetUint64(stored.BlockNumber),
		TransactionIndex:  uint(stored.TransactionIndex),
		Logs:              decodeLogs(stored.Logs),
	}
	receipt.Bloom = types.LogsBloom(receipt.Logs)
	return receipt, nil
}

// WriteReceipt stores a receipt under the hash of its transaction.
func WriteReceipt(db ethdb.KeyValueWriter, receipt *gethtypes.Receipt) error {
	stored := &storedReceipt{
		Type:              receipt.Type,
		Status:            receipt.Status,
		CumulativeGasUsed: receipt.CumulativeGasUsed,
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: receipt.EffectiveGasPrice,
		ContractAddress:   receipt.ContractAddress,
		TxHash:            receipt.TxHash,
		BlockHash:         receipt.BlockHash,
		TransactionIndex:  uint64(receipt.TransactionIndex),
		Logs:              encodeLogs(receipt.Logs),
	}
	if stored.EffectiveGasPrice == nil {
		stored.EffectiveGasPrice = new(big.Int)
	}
	if receipt.BlockNumber != nil {
		stored.BlockNumber = receipt.BlockNumber.Uint64()
	}
	data, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return db.Put(receiptKey(receipt.TxHash), data)
}

// DeleteReceipt removes the receipt of the transaction with the given hash.
func DeleteReceipt(db ethdb.KeyValueWriter, hash common.Hash) error {
	return db.Delete(receiptKey(hash))
}
