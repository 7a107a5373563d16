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

// Package core implements the local chain engine: block production, state
// transitions, historical state access and the forked chain variant.
package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
	"github.com/probeum/devchain/core/types"
)

// ChainHeadEvent is posted whenever the head of the chain changes, both when
// a block is added and when one is popped.
type ChainHeadEvent struct{ Block *types.Block }

// CloseEvent is posted once when the chain is closed.
type CloseEvent struct{}

// TxLocation locates a mined transaction.
type TxLocation struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// stateSource hands out the state databases blocks are executed and read
// against.
type stateSource interface {
	// Database returns the state database serving the block with the given
	// number.
	Database(number uint64) gethstate.Database

	// Prepare runs after a block's state is finalised and before it is
	// committed.
	Prepare(db gethstate.Database, statedb *gethstate.StateDB) error

	// Truncate drops bookkeeping kept for blocks above number.
	Truncate(number uint64) error
}

type localStates struct {
	db *gethstate.CachingDB
}

func (s *localStates) Database(uint64) gethstate.Database                   { return s.db }
func (s *localStates) Prepare(gethstate.Database, *gethstate.StateDB) error { return nil }
func (s *localStates) Truncate(uint64) error                                { return nil }

// ancestorSource serves the blocks that precede the first local block.
type ancestorSource interface {
	BlockByNumber(number uint64) (*types.Block, error)
	BlockByHash(hash common.Hash) (*types.Block, error)
}

// BlockChain is the local chain engine. Blocks are produced one at a time
// from the queue of pending transactions; historical state is read by
// opening the state trie at the root of the requested block.
type BlockChain struct {
	config      *Config
	chainConfig *params.ChainConfig
	signer      gethtypes.Signer

	db        ethdb.Database
	triedb    *triedb.Database
	states    stateSource
	store     *ChainStore
	ancestors ancestorSource // nil unless the chain continues a remote one
	anchor    *types.Block   // parent of the first local block, if any

	pending   []*types.Transaction
	pendingMu sync.Mutex

	timeOffset atomic.Int64 // seconds added to the clock

	chainHeadFeed event.Feed
	closeFeed     event.Feed
	scope         event.SubscriptionScope

	chainmu sync.Mutex // serialises block production and reverts
	closed  atomic.Bool
}

// NewBlockChain opens a chain over db. Initialize must be called before the
// chain is used.
func NewBlockChain(db ethdb.Database, config *Config) (*BlockChain, error) {
	return newBlockChain(db, config, 0)
}

func newBlockChain(db ethdb.Database, config *Config, first uint64) (*BlockChain, error) {
	cfg := *config
	if err := cfg.sanitize(); err != nil {
		return nil, &InitializationError{Err: err}
	}
	chainConfig := cfg.ChainConfig()
	tdb := triedb.NewDatabase(db, triedb.HashDefaults)
	bc := &BlockChain{
		config:      &cfg,
		chainConfig: chainConfig,
		signer:      gethtypes.LatestSigner(chainConfig),
		db:          db,
		triedb:      tdb,
		states:      &localStates{db: gethstate.NewDatabase(tdb, nil)},
		store:       NewChainStore(db, first, cfg.DatabaseCache),
	}
	return bc, nil
}

// Config returns the sanitised chain settings.
func (bc *BlockChain) Config() *Config { return bc.config }

// ChainConfig returns the go-ethereum chain rules in effect.
func (bc *BlockChain) ChainConfig() *params.ChainConfig { return bc.chainConfig }

// Signer returns the transaction signer of the chain.
func (bc *BlockChain) Signer() gethtypes.Signer { return bc.signer }

// Initialize loads the existing chain, or writes a genesis block holding the
// given accounts when the database is empty.
func (bc *BlockChain) Initialize(alloc gethtypes.GenesisAlloc) error {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	if bc.store.Len() > 0 {
		if err := bc.store.Verify(); err != nil {
			return &InitializationError{Err: err}
		}
		head, err := bc.store.Head()
		if err != nil {
			return &InitializationError{Err: err}
		}
		log.Info("Loaded most recent local block", "number", head.NumberU64(), "hash", head.Hash(), "age", common.PrettyAge(time.Unix(int64(head.Time()), 0)))
		return nil
	}
	header := bc.genesisHeader()
	db := bc.states.Database(header.Number.Uint64())
	statedb, err := gethstate.New(gethtypes.EmptyRootHash, db)
	if err != nil {
		return &InitializationError{Err: err}
	}
	for addr, account := range alloc {
		if account.Balance != nil {
			statedb.SetBalance(addr, uint256.MustFromBig(account.Balance), tracing.BalanceIncreaseGenesisBalance)
		}
		if account.Nonce != 0 {
			statedb.SetNonce(addr, account.Nonce, tracing.NonceChangeGenesis)
		}
		if len(account.Code) > 0 {
			statedb.SetCode(addr, account.Code, tracing.CodeChangeGenesis)
		}
		for key, value := range account.Storage {
			statedb.SetState(addr, key, value)
		}
	}
	statedb.Finalise(true)
	res := &ProcessResult{}
	if err := bc.seal(header, nil, res, statedb, db, true); err != nil {
		return &InitializationError{Err: err}
	}
	log.Info("Wrote genesis block", "number", header.Number, "hash", res.Block.Hash(), "accounts", len(alloc))
	return nil
}

func (bc *BlockChain) genesisHeader() *gethtypes.Header {
	var header *gethtypes.Header
	if bc.anchor != nil {
		header = bc.CreateBlock(bc.anchor)
	} else {
		header = bc.CreateBlock(nil)
	}
	if bc.config.Time != 0 {
		header.Time = bc.config.Time
	}
	return header
}

// CreateBlock returns the header of a new empty block on top of parent. A nil
// parent creates a genesis header.
func (bc *BlockChain) CreateBlock(parent *types.Block) *gethtypes.Header {
	header := &gethtypes.Header{
		Number:     new(big.Int),
		GasLimit:   bc.config.BlockGasLimit,
		Time:       bc.currentTime(),
		Coinbase:   bc.config.Coinbase,
		Difficulty: new(big.Int),
		BaseFee:    new(big.Int).SetUint64(bc.config.BaseFee),
		Extra:      []byte{},
	}
	if parent != nil {
		header.ParentHash = parent.Hash()
		header.Number.Add(parent.Number(), common.Big1)
	}
	// PREVRANDAO must be set for the post-merge rules to apply. Deriving it
	// from the parent keeps block production deterministic.
	header.MixDigest = crypto.Keccak256Hash(header.ParentHash.Bytes())

	if bc.chainConfig.IsShanghai(header.Number, header.Time) {
		header.WithdrawalsHash = &gethtypes.EmptyWithdrawalsHash
	}
	if bc.chainConfig.IsCancun(header.Number, header.Time) {
		var blobGasUsed, excessBlobGas uint64
		header.BlobGasUsed = &blobGasUsed
		header.ExcessBlobGas = &excessBlobGas
		header.ParentBeaconRoot = new(common.Hash)
	}
	return header
}

// currentTime returns the block time of a block created now.
func (bc *BlockChain) currentTime() uint64 {
	now := bc.clock().Unix() + bc.timeOffset.Load()
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (bc *BlockChain) clock() time.Time {
	if bc.config.Clock != nil {
		return bc.config.Clock()
	}
	return time.Now()
}

// IncreaseTime moves the clock forward and returns the total offset in
// seconds. Negative amounts are ignored.
func (bc *BlockChain) IncreaseTime(seconds int64) int64 {
	if seconds < 0 {
		seconds = 0
	}
	return bc.timeOffset.Add(seconds)
}

// SetTime moves the clock to t and returns the resulting offset in seconds.
func (bc *BlockChain) SetTime(t time.Time) int64 {
	offset := t.Unix() - bc.clock().Unix()
	bc.timeOffset.Store(offset)
	return offset
}

// TimeOffset returns the current clock offset in seconds.
func (bc *BlockChain) TimeOffset() int64 { return bc.timeOffset.Load() }

// SetTimeOffset replaces the clock offset.
func (bc *BlockChain) SetTimeOffset(seconds int64) { bc.timeOffset.Store(seconds) }

// Head returns the latest block.
func (bc *BlockChain) Head() (*types.Block, error) {
	head, err := bc.store.Head()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, ErrBlockNotFound
	}
	return head, nil
}

// GetBlockByNumber returns the block with the given number, or nil.
func (bc *BlockChain) GetBlockByNumber(number uint64) (*types.Block, error) {
	if number >= bc.store.First() {
		return bc.store.BlockByNumber(number)
	}
	if bc.ancestors != nil {
		return bc.ancestors.BlockByNumber(number)
	}
	return nil, nil
}

// GetBlockByHash returns the block with the given hash, or nil.
func (bc *BlockChain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	block, err := bc.store.BlockByHash(hash)
	if err != nil || block != nil {
		return block, err
	}
	if bc.ancestors != nil {
		return bc.ancestors.BlockByHash(hash)
	}
	return nil, nil
}

// GetBlock resolves a block number, tag or hash. Unknown blocks are reported
// as ErrBlockNotFound.
func (bc *BlockChain) GetBlock(at rpc.BlockNumberOrHash) (*types.Block, error) {
	var (
		block *types.Block
		err   error
	)
	if hash, ok := at.Hash(); ok {
		block, err = bc.GetBlockByHash(hash)
	} else {
		number, _ := at.Number()
		switch number {
		case rpc.LatestBlockNumber, rpc.PendingBlockNumber, rpc.SafeBlockNumber, rpc.FinalizedBlockNumber:
			return bc.Head()
		case rpc.EarliestBlockNumber:
			block, err = bc.GetBlockByNumber(0)
		default:
			if number < 0 {
				return nil, fmt.Errorf("invalid block number %d", number)
			}
			block, err = bc.GetBlockByNumber(uint64(number))
		}
	}
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrBlockNotFound
	}
	return block, nil
}

// GetHeader implements ChainContext.
func (bc *BlockChain) GetHeader(hash common.Hash, number uint64) *gethtypes.Header {
	block, err := bc.GetBlockByNumber(number)
	if err != nil || block == nil || block.Hash() != hash {
		return nil
	}
	return block.Header()
}

// openState opens a throw-away state at the post-state of block.
func (bc *BlockChain) openState(block *types.Block) (*gethstate.StateDB, gethstate.Database, error) {
	return bc.openStateAt(block, block.NumberU64())
}

// openChildState opens the post-state of parent for building the block on
// top of it.
func (bc *BlockChain) openChildState(parent *types.Block) (*gethstate.StateDB, gethstate.Database, error) {
	return bc.openStateAt(parent, parent.NumberU64()+1)
}

func (bc *BlockChain) openStateAt(block *types.Block, height uint64) (*gethstate.StateDB, gethstate.Database, error) {
	root := block.Root()
	if block.NumberU64() < bc.store.First() {
		// Blocks of the chain being continued have no local trie.
		root = gethtypes.EmptyRootHash
	}
	db := bc.states.Database(height)
	statedb, err := gethstate.New(root, db)
	if err != nil {
		return nil, nil, err
	}
	return statedb, db, nil
}

// StateAt returns the state after the given block. The state is a private
// copy that is never committed.
func (bc *BlockChain) StateAt(at rpc.BlockNumberOrHash) (*gethstate.StateDB, *types.Block, error) {
	block, err := bc.GetBlock(at)
	if err != nil {
		return nil, nil, err
	}
	statedb, _, err := bc.openState(block)
	if err != nil {
		return nil, nil, err
	}
	return statedb, block, nil
}

// GetAccount returns the account at the given block, or nil if it does not
// exist.
func (bc *BlockChain) GetAccount(addr common.Address, at rpc.BlockNumberOrHash) (*gethtypes.StateAccount, error) {
	statedb, _, err := bc.StateAt(at)
	if err != nil {
		return nil, err
	}
	if !statedb.Exist(addr) {
		return nil, nil
	}
	return &gethtypes.StateAccount{
		Nonce:    statedb.GetNonce(addr),
		Balance:  statedb.GetBalance(addr),
		Root:     statedb.GetStorageRoot(addr),
		CodeHash: statedb.GetCodeHash(addr).Bytes(),
	}, statedb.Error()
}

// GetBalance returns the balance of addr at the given block.
func (bc *BlockChain) GetBalance(addr common.Address, at rpc.BlockNumberOrHash) (*uint256.Int, error) {
	statedb, _, err := bc.StateAt(at)
	if err != nil {
		return nil, err
	}
	return statedb.GetBalance(addr), statedb.Error()
}

// GetNonce returns the nonce of addr at the given block.
func (bc *BlockChain) GetNonce(addr common.Address, at rpc.BlockNumberOrHash) (uint64, error) {
	statedb, _, err := bc.StateAt(at)
	if err != nil {
		return 0, err
	}
	return statedb.GetNonce(addr), statedb.Error()
}

// GetCode returns the code of addr at the given block.
func (bc *BlockChain) GetCode(addr common.Address, at rpc.BlockNumberOrHash) ([]byte, error) {
	statedb, _, err := bc.StateAt(at)
	if err != nil {
		return nil, err
	}
	return statedb.GetCode(addr), statedb.Error()
}

// GetStorage returns a storage slot of addr at the given block.
func (bc *BlockChain) GetStorage(addr common.Address, slot common.Hash, at rpc.BlockNumberOrHash) (common.Hash, error) {
	statedb, _, err := bc.StateAt(at)
	if err != nil {
		return common.Hash{}, err
	}
	return statedb.GetState(addr, slot), statedb.Error()
}

// GetBlockLogs returns the logs of a local block.
func (bc *BlockChain) GetBlockLogs(number uint64) ([]*gethtypes.Log, error) {
	return bc.store.Logs(number)
}

// GetTransaction returns a mined or pending transaction. Pending
// transactions have no location. Unknown transactions are reported as nil.
func (bc *BlockChain) GetTransaction(hash common.Hash) (*types.Transaction, *TxLocation, error) {
	tx, err := bc.store.Transaction(hash)
	if err != nil {
		return nil, nil, err
	}
	if tx == nil {
		bc.pendingMu.Lock()
		defer bc.pendingMu.Unlock()

		for _, ptx := range bc.pending {
			if ptx.Hash() == hash {
				return ptx, nil, nil
			}
		}
		return nil, nil, nil
	}
	receipt, err := bc.store.Receipt(hash)
	if err != nil {
		return nil, nil, err
	}
	if receipt == nil {
		return nil, nil, &StoreConsistencyError{Key: hash}
	}
	return tx, &TxLocation{
		BlockHash:   receipt.BlockHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Index:       uint64(receipt.TransactionIndex),
	}, nil
}

// GetTransactionReceipt returns the receipt of a mined transaction, or nil.
func (bc *BlockChain) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	return bc.store.Receipt(hash)
}

// queuedNonce returns the nonce the next queued transaction of addr must
// carry. The pending lock must be held.
func (bc *BlockChain) queuedNonce(addr common.Address, statedb *gethstate.StateDB) uint64 {
	nonce := statedb.GetNonce(addr)
	for _, tx := range bc.pending {
		if tx.From() == addr && tx.Nonce() >= nonce {
			nonce = tx.Nonce() + 1
		}
	}
	return nonce
}

// GetQueuedNonce returns the nonce of addr including its pending
// transactions.
func (bc *BlockChain) GetQueuedNonce(addr common.Address) (uint64, error) {
	statedb, _, err := bc.StateAt(rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber))
	if err != nil {
		return 0, err
	}
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	return bc.queuedNonce(addr, statedb), nil
}

// QueueTransaction validates tx against the latest state and adds it to the
// pending transactions. Invalid transactions are rejected with a
// RejectionError.
func (bc *BlockChain) QueueTransaction(tx *types.Transaction) error {
	if bc.closed.Load() {
		return ErrClosed
	}
	statedb, _, err := bc.StateAt(rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber))
	if err != nil {
		return err
	}
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	for _, ptx := range bc.pending {
		if ptx.Hash() == tx.Hash() {
			return reject(fmt.Errorf("known transaction: %x", tx.Hash()))
		}
	}
	if err := bc.validateTx(tx, statedb, bc.queuedNonce(tx.From(), statedb)); err != nil {
		log.Debug("Rejected transaction", "hash", tx.Hash(), "from", tx.From(), "err", err)
		return err
	}
	bc.pending = append(bc.pending, tx)
	log.Trace("Queued transaction", "hash", tx.Hash(), "from", tx.From(), "nonce", tx.Nonce())
	return nil
}

// Pending returns a copy of the queued transactions in arrival order.
func (bc *BlockChain) Pending() []*types.Transaction {
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	return append([]*types.Transaction(nil), bc.pending...)
}

// ClearPending drops every queued transaction and returns how many there
// were.
func (bc *BlockChain) ClearPending() int {
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	n := len(bc.pending)
	bc.pending = nil
	return n
}

// removePending drops txs from the queue.
func (bc *BlockChain) removePending(txs []*types.Transaction) {
	if len(txs) == 0 {
		return
	}
	drop := mapset.NewThreadUnsafeSet()
	for _, tx := range txs {
		drop.Add(tx.Hash())
	}
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	kept := bc.pending[:0]
	for _, tx := range bc.pending {
		if !drop.Contains(tx.Hash()) {
			kept = append(kept, tx)
		}
	}
	for i := len(kept); i < len(bc.pending); i++ {
		bc.pending[i] = nil
	}
	bc.pending = kept
}

// packPending orders the queue and returns the longest prefix whose gas
// limits fit into one block.
func (bc *BlockChain) packPending() ([]*types.Transaction, error) {
	bc.pendingMu.Lock()
	defer bc.pendingMu.Unlock()

	if len(bc.pending) == 0 {
		return nil, nil
	}
	var (
		ordered = types.SortByPriceAndNonce(bc.pending)
		gas     uint64
		n       int
	)
	for _, tx := range ordered {
		if gas+tx.Gas() > bc.config.BlockGasLimit {
			break
		}
		gas += tx.Gas()
		n++
	}
	if n == 0 {
		return nil, &FatalError{TxHash: ordered[0].Hash(), Err: ErrExceedsBlockGasLimit}
	}
	return ordered[:n], nil
}

// ProcessCall executes tx at the given block without committing it. hooks
// may be nil.
func (bc *BlockChain) ProcessCall(tx *types.Transaction, at rpc.BlockNumberOrHash, hooks *tracing.Hooks) (*CallResult, error) {
	if bc.closed.Load() {
		return nil, ErrClosed
	}
	statedb, block, err := bc.StateAt(at)
	if err != nil {
		return nil, err
	}
	return bc.call(block.Header(), tx, statedb, hooks)
}

// ProcessBlock executes the transactions of block on top of its parent. The
// header's execution fields are recomputed. With commit set the resulting
// block becomes the new head; it must then extend the current head.
func (bc *BlockChain) ProcessBlock(block *types.Block, commit bool) (*ProcessResult, error) {
	if bc.closed.Load() {
		return nil, ErrClosed
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	parent, err := bc.GetBlockByHash(block.ParentHash())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %x", ErrBlockNotFound, block.ParentHash())
	}
	if commit {
		head, err := bc.Head()
		if err != nil {
			return nil, err
		}
		if head.Hash() != parent.Hash() {
			return nil, fmt.Errorf("block %d does not extend head %d", block.NumberU64(), head.NumberU64())
		}
	}
	statedb, db, err := bc.openChildState(parent)
	if err != nil {
		return nil, err
	}
	header := block.Header()
	res, err := bc.process(header, block.Transactions(), statedb, nil)
	if err != nil {
		return nil, err
	}
	if err := bc.seal(header, block.Transactions(), res, statedb, db, commit); err != nil {
		return nil, err
	}
	return res, nil
}

// ProcessNextBlock mines the pending transactions that fit into one block.
func (bc *BlockChain) ProcessNextBlock() (*ProcessResult, error) {
	return bc.mine(nil, false)
}

// Mine mines one block, even if nothing is pending. A non-nil timestamp is
// used as the block time and the clock continues from it.
func (bc *BlockChain) Mine(timestamp *uint64) (*ProcessResult, error) {
	return bc.mine(timestamp, true)
}

func (bc *BlockChain) mine(timestamp *uint64, allowEmpty bool) (*ProcessResult, error) {
	if bc.closed.Load() {
		return nil, ErrClosed
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	start := time.Now()
	txs, err := bc.packPending()
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 && !allowEmpty {
		return nil, ErrNoPending
	}
	parent, err := bc.Head()
	if err != nil {
		return nil, err
	}
	header := bc.CreateBlock(parent)
	if timestamp != nil {
		header.Time = *timestamp
		bc.SetTime(time.Unix(int64(*timestamp), 0))
	}
	statedb, db, err := bc.openChildState(parent)
	if err != nil {
		return nil, err
	}
	res, err := bc.process(header, txs, statedb, nil)

	// Whatever happens, the packed transactions leave the queue.
	bc.removePending(txs)
	if err != nil {
		log.Error("Block processing failed", "number", header.Number, "err", err)
		return nil, err
	}
	if err := bc.seal(header, txs, res, statedb, db, true); err != nil {
		log.Error("Failed to commit block", "number", header.Number, "err", err)
		return nil, err
	}
	log.Info("Sealed new block", "number", header.Number, "hash", res.Block.Hash(),
		"txs", len(txs), "gas", header.GasUsed, "failed", res.Err.Count(),
		"elapsed", common.PrettyDuration(time.Since(start)))
	return res, nil
}

// seal computes the state root of header and assembles the block. With
// commit set the state is written out and the block appended to the chain.
func (bc *BlockChain) seal(header *gethtypes.Header, txs []*types.Transaction, res *ProcessResult, statedb *gethstate.StateDB, db gethstate.Database, commit bool) error {
	if !commit {
		header.Root = statedb.IntermediateRoot(true)
		res.Block = types.NewBlock(header, txs, res.Receipts)
		finalizeReceipts(res.Block, res.Receipts)
		return nil
	}
	if err := bc.states.Prepare(db, statedb); err != nil {
		return err
	}
	root, err := statedb.Commit(header.Number.Uint64(), true, bc.chainConfig.IsCancun(header.Number, header.Time))
	if err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	if err := bc.triedb.Commit(root, false); err != nil {
		return fmt.Errorf("commit trie: %w", err)
	}
	header.Root = root
	res.Block = types.NewBlock(header, txs, res.Receipts)
	finalizeReceipts(res.Block, res.Receipts)
	return bc.PutBlock(res.Block, res.Receipts)
}

// PutBlock appends a processed block with its receipts and announces the new
// head.
func (bc *BlockChain) PutBlock(block *types.Block, receipts []*gethtypes.Receipt) error {
	if err := bc.store.Append(block, receipts); err != nil {
		return err
	}
	bc.chainHeadFeed.Send(ChainHeadEvent{Block: block})
	return nil
}

// PopBlock removes the head block. The genesis block cannot be removed.
func (bc *BlockChain) PopBlock() (*types.Block, error) {
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	if bc.store.Len() <= 1 {
		return nil, ErrGenesisPop
	}
	block, err := bc.store.Pop()
	if err != nil {
		return nil, err
	}
	head, err := bc.Head()
	if err != nil {
		return nil, err
	}
	if err := bc.states.Truncate(head.NumberU64()); err != nil {
		return nil, err
	}
	log.Debug("Reverted block", "number", block.NumberU64(), "hash", block.Hash(), "head", head.NumberU64())
	bc.chainHeadFeed.Send(ChainHeadEvent{Block: head})
	return block, nil
}

// ReplayTransaction re-executes the block containing a mined transaction up
// to and including it. hooks is invoked with the state the transaction runs
// against and returns the tracing hooks to attach to it.
func (bc *BlockChain) ReplayTransaction(hash common.Hash, hooks func(*gethstate.StateDB) *tracing.Hooks) (*gethcore.ExecutionResult, error) {
	receipt, err := bc.store.Receipt(hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrTxNotFound
	}
	block, err := bc.store.BlockByHash(receipt.BlockHash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, fmt.Errorf("%w: %x", ErrBlockNotFound, receipt.BlockHash)
	}
	parent, err := bc.GetBlockByHash(block.ParentHash())
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %x", ErrBlockNotFound, block.ParentHash())
	}
	statedb, _, err := bc.openState(parent)
	if err != nil {
		return nil, err
	}
	target := int(receipt.TransactionIndex)
	res, err := bc.process(block.Header(), block.Transactions()[:target+1], statedb, func(i int) *tracing.Hooks {
		if i == target && hooks != nil {
			return hooks(statedb)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res.Results[target], nil
}

// SubscribeChainHeadEvent registers a subscription of ChainHeadEvent.
func (bc *BlockChain) SubscribeChainHeadEvent(ch chan<- ChainHeadEvent) event.Subscription {
	return bc.scope.Track(bc.chainHeadFeed.Subscribe(ch))
}

// SubscribeCloseEvent registers a subscription of CloseEvent.
func (bc *BlockChain) SubscribeCloseEvent(ch chan<- CloseEvent) event.Subscription {
	return bc.scope.Track(bc.closeFeed.Subscribe(ch))
}

// Close stops the chain. Operations in flight complete; later ones fail
// with ErrClosed. The database is left open.
func (bc *BlockChain) Close() error {
	if !bc.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	bc.chainmu.Lock()
	defer bc.chainmu.Unlock()

	bc.closeFeed.Send(CloseEvent{})
	bc.scope.Close()
	bc.store.Reset()
	if err := bc.triedb.Close(); err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	log.Info("Blockchain stopped")
	return nil
}
