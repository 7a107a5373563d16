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

// Package forktest provides an in-process remote chain to fork from in tests.
package forktest

import (
	"encoding/json"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/trie"
)

// Account is the state of an account as of the block it was set at.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[common.Hash]common.Hash
}

type minedTx struct {
	tx      *gethtypes.Transaction
	from    common.Address
	number  uint64
	index   uint64
	receipt *gethtypes.Receipt
}

// Chain is a fake remote chain. Its headers are generated on the fly and
// account state is versioned by block number.
type Chain struct {
	chainID   *big.Int
	networkID uint64
	head      uint64

	accounts map[common.Address]map[uint64]*Account
	txs      map[uint64][]*minedTx
	byHash   map[common.Hash]*minedTx
	headers  map[uint64]*gethtypes.Header

	calls map[string]int
	lock  sync.Mutex
}

// NewChain creates a fake chain with the given head.
func NewChain(chainID int64, networkID uint64, head uint64) *Chain {
	return &Chain{
		chainID:   big.NewInt(chainID),
		networkID: networkID,
		head:      head,
		accounts:  make(map[common.Address]map[uint64]*Account),
		txs:       make(map[uint64][]*minedTx),
		byHash:    make(map[common.Hash]*minedTx),
		headers:   make(map[uint64]*gethtypes.Header),
		calls:     make(map[string]int),
	}
}

// SetAccount sets the state of addr from block number onwards.
func (c *Chain) SetAccount(number uint64, addr common.Address, acct Account) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.accounts[addr] == nil {
		c.accounts[addr] = make(map[uint64]*Account)
	}
	if acct.Balance == nil {
		acct.Balance = new(big.Int)
	}
	c.accounts[addr][number] = &acct
}

// SetHead moves the head of the chain.
func (c *Chain) SetHead(head uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.head = head
	c.headers = make(map[uint64]*gethtypes.Header)
}

// AddTransaction mines tx into block number with a successful receipt.
func (c *Chain) AddTransaction(number uint64, tx *gethtypes.Transaction, from common.Address) {
	c.lock.Lock()
	defer c.lock.Unlock()

	mtx := &minedTx{tx: tx, from: from, number: number, index: uint64(len(c.txs[number]))}
	c.txs[number] = append(c.txs[number], mtx)
	c.byHash[tx.Hash()] = mtx
	c.headers = make(map[uint64]*gethtypes.Header)
}

// Calls returns how many times method was served.
func (c *Chain) Calls(method string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.calls[method]
}

// Client returns an in-process RPC client connected to the chain.
func (c *Chain) Client() *rpc.Client {
	server := rpc.NewServer()
	if err := server.RegisterName("eth", &ethService{c}); err != nil {
		panic(err)
	}
	if err := server.RegisterName("net", &netService{c}); err != nil {
		panic(err)
	}
	return rpc.DialInProc(server)
}

func (c *Chain) served(method string) {
	c.lock.Lock()
	c.calls[method]++
	c.lock.Unlock()
}

// account returns the state of addr at number. The caller holds the lock.
func (c *Chain) account(addr common.Address, number uint64) *Account {
	versions := c.accounts[addr]
	var (
		best  *Account
		found uint64
	)
	for n, acct := range versions {
		if n <= number && (best == nil || n >= found) {
			best, found = acct, n
		}
	}
	return best
}

// header returns the generated header of block number. The caller holds the
// lock.
func (c *Chain) header(number uint64) *gethtypes.Header {
	if h, ok := c.headers[number]; ok {
		return h
	}
	var parent common.Hash
	if number > 0 {
		parent = c.header(number - 1).Hash()
	}
	h := &gethtypes.Header{
		ParentHash:  parent,
		UncleHash:   gethtypes.EmptyUncleHash,
		Root:        common.BigToHash(new(big.Int).SetUint64(number + 1)),
		TxHash:      gethtypes.EmptyTxsHash,
		ReceiptHash: gethtypes.EmptyReceiptsHash,
		Difficulty:  new(big.Int),
		Number:      new(big.Int).SetUint64(number),
		GasLimit:    30_000_000,
		Time:        1_600_000_000 + number*12,
		Extra:       []byte{},
	}
	if txs := c.txs[number]; len(txs) > 0 {
		list := make(gethtypes.Transactions, len(txs))
		for i, mtx := range txs {
			list[i] = mtx.tx
		}
		h.TxHash = gethtypes.DeriveSha(list, trie.NewStackTrie(nil))
		h.GasUsed = uint64(len(txs)) * 21000
	}
	c.headers[number] = h
	return h
}

func (c *Chain) resolve(blockNrOrHash rpc.BlockNumberOrHash) (uint64, error) {
	if hash, ok := blockNrOrHash.Hash(); ok {
		for n := uint64(0); n <= c.head; n++ {
			if c.header(n).Hash() == hash {
				return n, nil
			}
		}
		return 0, errors.New("header not found")
	}
	number, _ := blockNrOrHash.Number()
	switch {
	case number < 0:
		if number == rpc.EarliestBlockNumber {
			return 0, nil
		}
		return c.head, nil
	case uint64(number) > c.head:
		return 0, errors.New("header not found")
	}
	return uint64(number), nil
}

func (c *Chain) rpcTx(mtx *minedTx) (map[string]interface{}, error) {
	enc, err := json.Marshal(mtx.tx)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(enc, &fields); err != nil {
		return nil, err
	}
	fields["from"] = mtx.from
	fields["blockHash"] = c.header(mtx.number).Hash()
	fields["blockNumber"] = (*hexutil.Big)(new(big.Int).SetUint64(mtx.number))
	fields["transactionIndex"] = hexutil.Uint64(mtx.index)
	return fields, nil
}

func (c *Chain) rpcBlock(number uint64) (map[string]interface{}, error) {
	head := c.header(number)
	enc, err := json.Marshal(head)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(enc, &fields); err != nil {
		return nil, err
	}
	txs := make([]interface{}, 0, len(c.txs[number]))
	for _, mtx := range c.txs[number] {
		tx, err := c.rpcTx(mtx)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	fields["hash"] = head.Hash()
	fields["transactions"] = txs
	fields["uncles"] = []common.Hash{}
	return fields, nil
}

type ethService struct{ c *Chain }

func (s *ethService) ChainId() *hexutil.Big {
	s.c.served("eth_chainId")
	return (*hexutil.Big)(s.c.chainID)
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	s.c.served("eth_blockNumber")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()
	return hexutil.Uint64(s.c.head)
}

func (s *ethService) GetBalance(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Big, error) {
	s.c.served("eth_getBalance")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	number, err := s.c.resolve(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	if acct := s.c.account(addr, number); acct != nil {
		return (*hexutil.Big)(acct.Balance), nil
	}
	return (*hexutil.Big)(new(big.Int)), nil
}

func (s *ethService) GetTransactionCount(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*hexutil.Uint64, error) {
	s.c.served("eth_getTransactionCount")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	number, err := s.c.resolve(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	var nonce hexutil.Uint64
	if acct := s.c.account(addr, number); acct != nil {
		nonce = hexutil.Uint64(acct.Nonce)
	}
	return &nonce, nil
}

func (s *ethService) GetCode(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	s.c.served("eth_getCode")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	number, err := s.c.resolve(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	if acct := s.c.account(addr, number); acct != nil {
		return acct.Code, nil
	}
	return hexutil.Bytes{}, nil
}

func (s *ethService) GetStorageAt(addr common.Address, slot common.Hash, blockNrOrHash rpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	s.c.served("eth_getStorageAt")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	number, err := s.c.resolve(blockNrOrHash)
	if err != nil {
		return nil, err
	}
	var val common.Hash
	if acct := s.c.account(addr, number); acct != nil {
		val = acct.Storage[slot]
	}
	return val.Bytes(), nil
}

func (s *ethService) GetBlockByNumber(number rpc.BlockNumber, fullTx bool) (map[string]interface{}, error) {
	s.c.served("eth_getBlockByNumber")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	n, err := s.c.resolve(rpc.BlockNumberOrHashWithNumber(number))
	if err != nil {
		return nil, nil
	}
	return s.c.rpcBlock(n)
}

func (s *ethService) GetBlockByHash(hash common.Hash, fullTx bool) (map[string]interface{}, error) {
	s.c.served("eth_getBlockByHash")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	n, err := s.c.resolve(rpc.BlockNumberOrHashWithHash(hash, false))
	if err != nil {
		return nil, nil
	}
	return s.c.rpcBlock(n)
}

func (s *ethService) GetTransactionByHash(hash common.Hash) (map[string]interface{}, error) {
	s.c.served("eth_getTransactionByHash")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	mtx := s.c.byHash[hash]
	if mtx == nil || mtx.number > s.c.head {
		return nil, nil
	}
	return s.c.rpcTx(mtx)
}

func (s *ethService) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	s.c.served("eth_getTransactionReceipt")
	s.c.lock.Lock()
	defer s.c.lock.Unlock()

	mtx := s.c.byHash[hash]
	if mtx == nil || mtx.number > s.c.head {
		return nil, nil
	}
	head := s.c.header(mtx.number)
	return &gethtypes.Receipt{
		Type:              mtx.tx.Type(),
		Status:            gethtypes.ReceiptStatusSuccessful,
		CumulativeGasUsed: (mtx.index + 1) * 21000,
		Logs:              []*gethtypes.Log{},
		TxHash:            hash,
		GasUsed:           21000,
		EffectiveGasPrice: mtx.tx.GasPrice(),
		BlockHash:         head.Hash(),
		BlockNumber:       new(big.Int).SetUint64(mtx.number),
		TransactionIndex:  uint(mtx.index),
	}, nil
}

type netService struct{ c *Chain }

func (s *netService) Version() string {
	s.c.served("net_version")
	return new(big.Int).SetUint64(s.c.networkID).String()
}
