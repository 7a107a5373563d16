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
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/probeum/devchain/core/types"
)

// ChainBackend is the chain engine as seen by the simulator. BlockChain is
// the plain implementation; ForkedBlockChain wraps it and overrides the
// lookups that may be answered by the remote chain.
type ChainBackend interface {
	Config() *Config
	ChainConfig() *params.ChainConfig
	Signer() gethtypes.Signer

	Head() (*types.Block, error)
	GetBlock(at rpc.BlockNumberOrHash) (*types.Block, error)
	GetBlockByNumber(number uint64) (*types.Block, error)
	GetBlockByHash(hash common.Hash) (*types.Block, error)
	GetBlockLogs(number uint64) ([]*gethtypes.Log, error)
	GetTransaction(hash common.Hash) (*types.Transaction, *TxLocation, error)
	GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error)

	StateAt(at rpc.BlockNumberOrHash) (*gethstate.StateDB, *types.Block, error)
	GetAccount(addr common.Address, at rpc.BlockNumberOrHash) (*gethtypes.StateAccount, error)
	GetBalance(addr common.Address, at rpc.BlockNumberOrHash) (*uint256.Int, error)
	GetNonce(addr common.Address, at rpc.BlockNumberOrHash) (uint64, error)
	GetCode(addr common.Address, at rpc.BlockNumberOrHash) ([]byte, error)
	GetStorage(addr common.Address, slot common.Hash, at rpc.BlockNumberOrHash) (common.Hash, error)

	QueueTransaction(tx *types.Transaction) error
	GetQueuedNonce(addr common.Address) (uint64, error)
	Pending() []*types.Transaction
	ClearPending() int

	ProcessCall(tx *types.Transaction, at rpc.BlockNumberOrHash, hooks *tracing.Hooks) (*CallResult, error)
	ProcessBlock(block *types.Block, commit bool) (*ProcessResult, error)
	ProcessNextBlock() (*ProcessResult, error)
	Mine(timestamp *uint64) (*ProcessResult, error)
	PopBlock() (*types.Block, error)
	ReplayTransaction(hash common.Hash, hooks func(*gethstate.StateDB) *tracing.Hooks) (*gethcore.ExecutionResult, error)

	IncreaseTime(seconds int64) int64
	SetTime(t time.Time) int64
	TimeOffset() int64
	SetTimeOffset(seconds int64)

	SubscribeChainHeadEvent(ch chan<- ChainHeadEvent) event.Subscription
	SubscribeCloseEvent(ch chan<- CloseEvent) event.Subscription
	Close() error
}

var (
	_ ChainBackend = (*BlockChain)(nil)
	_ ChainBackend = (*ForkedBlockChain)(nil)
)
