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

// Package types contains the block and transaction types of the simulated chain.
package types

import (
	"io"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// Block is a header together with the ordered transactions it carries.
// Blocks are immutable once built.
type Block struct {
	header       *gethtypes.Header
	transactions Transactions

	hash atomic.Pointer[common.Hash]
}

// NewBlock assembles a block from header, transactions and their receipts. The
// header's transaction root, receipt root and bloom are derived from the
// inputs; every other field is taken as given.
func NewBlock(header *gethtypes.Header, txs []*Transaction, receipts []*gethtypes.Receipt) *Block {
	b := &Block{header: gethtypes.CopyHeader(header)}

	if len(txs) == 0 {
		b.header.TxHash = gethtypes.EmptyTxsHash
	} else {
		b.transactions = make(Transactions, len(txs))
		copy(b.transactions, txs)
		b.header.TxHash = gethtypes.DeriveSha(b.transactions, trie.NewStackTrie(nil))
	}
	if len(receipts) == 0 {
		b.header.ReceiptHash = gethtypes.EmptyReceiptsHash
	} else {
		b.header.ReceiptHash = gethtypes.DeriveSha(gethtypes.Receipts(receipts), trie.NewStackTrie(nil))
	}
	b.header.Bloom = ReceiptsBloom(receipts)
	b.header.UncleHash = gethtypes.EmptyUncleHash
	return b
}

// NewBlockWithHash creates a block whose hash is fixed to hash instead of being
// derived from the header. Blocks fetched from a forked chain are built this
// way since their headers may carry fields this chain does not model.
func NewBlockWithHash(header *gethtypes.Header, txs []*Transaction, hash common.Hash) *Block {
	b := &Block{header: gethtypes.CopyHeader(header), transactions: txs}
	b.hash.Store(&hash)
	return b
}

// Header returns a copy of the block header.
func (b *Block) Header() *gethtypes.Header { return gethtypes.CopyHeader(b.header) }

func (b *Block) Transactions() Transactions { return b.transactions }
func (b *Block) Number() *big.Int          { return new(big.Int).Set(b.header.Number) }
func (b *Block) NumberU64() uint64         { return b.header.Number.Uint64() }
func (b *Block) ParentHash() common.Hash   { return b.header.ParentHash }
func (b *Block) Root() common.Hash         { return b.header.Root }
func (b *Block) GasLimit() uint64          { return b.header.GasLimit }
func (b *Block) GasUsed() uint64           { return b.header.GasUsed }
func (b *Block) Time() uint64              { return b.header.Time }
func (b *Block) Coinbase() common.Address  { return b.header.Coinbase }
func (b *Block) BaseFee() *big.Int {
	if b.header.BaseFee == nil {
		return nil
	}
	return new(big.Int).Set(b.header.BaseFee)
}

// Transaction returns the transaction with the given hash, or nil.
func (b *Block) Transaction(hash common.Hash) *Transaction {
	for _, tx := range b.transactions {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

// Hash returns the keccak256 hash of the header, or the fixed hash of a
// fallback block.
func (b *Block) Hash() common.Hash {
	if h := b.hash.Load(); h != nil {
		return *h
	}
	h := b.header.Hash()
	b.hash.Store(&h)
	return h
}

// storedBlock is the persisted form of a Block.
type storedBlock struct {
	Header *gethtypes.Header
	Txs    []*Transaction
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &storedBlock{Header: b.header, Txs: b.transactions})
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	var dec storedBlock
	if err := s.Decode(&dec); err != nil {
		return err
	}
	b.header, b.transactions = dec.Header, dec.Txs
	b.hash.Store(nil)
	return nil
}

// ReceiptsBloom folds the logs of all receipts into one bloom filter.
func ReceiptsBloom(receipts []*gethtypes.Receipt) gethtypes.Bloom {
	var bloom gethtypes.Bloom
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			bloom.Add(log.Address.Bytes())
			for _, topic := range log.Topics {
				bloom.Add(topic.Bytes())
			}
		}
	}
	return bloom
}

// LogsBloom returns the bloom filter of a single receipt's logs.
func LogsBloom(logs []*gethtypes.Log) gethtypes.Bloom {
	return ReceiptsBloom([]*gethtypes.Receipt{{Logs: logs}})
}
