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

package sim

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/types"
)

// BlockNumber returns the number of the head block.
func (s *Simulator) BlockNumber() (uint64, error) {
	var number uint64
	err := s.queue.do(func() error {
		head, err := s.chain.Head()
		if err != nil {
			return err
		}
		number = head.NumberU64()
		return nil
	})
	return number, err
}

// BlockByNumber returns the block with the given number or tag, or nil if
// there is none.
func (s *Simulator) BlockByNumber(number rpc.BlockNumber) (*types.Block, error) {
	return s.BlockByNumberOrHash(rpc.BlockNumberOrHashWithNumber(number))
}

// BlockByHash returns the block with the given hash, or nil.
func (s *Simulator) BlockByHash(hash common.Hash) (*types.Block, error) {
	return s.BlockByNumberOrHash(rpc.BlockNumberOrHashWithHash(hash, false))
}

func (s *Simulator) BlockByNumberOrHash(blockNrOrHash rpc.BlockNumberOrHash) (*types.Block, error) {
	var block *types.Block
	err := s.queue.do(func() error {
		var err error
		block, err = s.chain.GetBlock(blockNrOrHash)
		if errors.Is(err, core.ErrBlockNotFound) {
			return nil
		}
		return err
	})
	return block, err
}

// GetBalance returns the balance of addr in wei.
func (s *Simulator) GetBalance(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (*big.Int, error) {
	var balance *big.Int
	err := s.queue.do(func() error {
		b, err := s.chain.GetBalance(addr, blockNrOrHash)
		if err != nil {
			return err
		}
		balance = b.ToBig()
		return nil
	})
	return balance, err
}

// GetTransactionCount returns the nonce of addr. The pending tag counts the
// transactions waiting to be mined.
func (s *Simulator) GetTransactionCount(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) (uint64, error) {
	var nonce uint64
	err := s.queue.do(func() error {
		var err error
		if number, ok := blockNrOrHash.Number(); ok && number == rpc.PendingBlockNumber {
			nonce, err = s.chain.GetQueuedNonce(addr)
			return err
		}
		nonce, err = s.chain.GetNonce(addr, blockNrOrHash)
		return err
	})
	return nonce, err
}

func (s *Simulator) GetCode(addr common.Address, blockNrOrHash rpc.BlockNumberOrHash) ([]byte, error) {
	var code []byte
	err := s.queue.do(func() error {
		var err error
		code, err = s.chain.GetCode(addr, blockNrOrHash)
		return err
	})
	return code, err
}

func (s *Simulator) GetStorageAt(addr common.Address, slot common.Hash, blockNrOrHash rpc.BlockNumberOrHash) (common.Hash, error) {
	var value common.Hash
	err := s.queue.do(func() error {
		var err error
		value, err = s.chain.GetStorage(addr, slot, blockNrOrHash)
		return err
	})
	return value, err
}

// GetTransaction returns a mined transaction and its position, or nil if it
// is unknown.
func (s *Simulator) GetTransaction(hash common.Hash) (*types.Transaction, *core.TxLocation, error) {
	var (
		tx  *types.Transaction
		loc *core.TxLocation
	)
	err := s.queue.do(func() error {
		var err error
		tx, loc, err = s.chain.GetTransaction(hash)
		if errors.Is(err, core.ErrTxNotFound) {
			return nil
		}
		return err
	})
	return tx, loc, err
}

// GetTransactionReceipt returns the receipt of a mined transaction, or nil.
func (s *Simulator) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	var receipt *gethtypes.Receipt
	err := s.queue.do(func() error {
		var err error
		receipt, err = s.chain.GetTransactionReceipt(hash)
		if errors.Is(err, core.ErrTxNotFound) {
			return nil
		}
		return err
	})
	return receipt, err
}

// PendingTransactions returns the transactions waiting to be mined.
func (s *Simulator) PendingTransactions() []*types.Transaction {
	return s.chain.Pending()
}
