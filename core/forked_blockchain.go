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
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	"github.com/probeum/devchain/core/rawdb"
	"github.com/probeum/devchain/core/state"
	"github.com/probeum/devchain/core/types"
	"github.com/probeum/devchain/fork"
)

// Upstream is the remote chain a forked chain continues from.
type Upstream interface {
	state.Remote

	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	NetworkID(ctx context.Context) (*big.Int, error)
	BlockByNumber(ctx context.Context, number uint64) (*types.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, *fork.TxLocation, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// ForkedBlockChain is a local chain that continues a remote one at a pinned
// fork block. Blocks, transactions and state at or below the fork block are
// served by the remote chain; state the local chain has not touched yet is
// read from the remote chain at the fork block.
type ForkedBlockChain struct {
	*BlockChain

	upstream   Upstream
	fdb        *state.ForkedDatabase
	forkNumber uint64
}

// NewForkedBlockChain opens a forked chain over db. The fork block is taken
// from the database if it was forked before, from number if given, or else
// from the remote head. Initialize must be called before the chain is used.
func NewForkedBlockChain(db ethdb.Database, config *Config, upstream Upstream, number *uint64) (*ForkedBlockChain, error) {
	ctx := context.Background()

	forkNumber, err := pinForkBlock(ctx, db, upstream, number)
	if err != nil {
		return nil, &InitializationError{Err: err}
	}
	cfg := *config
	if cfg.ChainID == 0 {
		id, err := upstream.ChainID(ctx)
		if err != nil {
			return nil, &InitializationError{Err: fmt.Errorf("chain id: %w", err)}
		}
		cfg.ChainID = id.Uint64()
	}
	if cfg.NetworkID == 0 {
		id, err := upstream.NetworkID(ctx)
		if err != nil {
			return nil, &InitializationError{Err: fmt.Errorf("network id: %w", err)}
		}
		cfg.NetworkID = id.Uint64()
	}
	forkBlock, err := upstream.BlockByNumber(ctx, forkNumber)
	if err != nil {
		return nil, &InitializationError{Err: err}
	}
	if forkBlock == nil {
		return nil, &InitializationError{Err: fmt.Errorf("%w: fork block %d", ErrBlockNotFound, forkNumber)}
	}
	bc, err := newBlockChain(db, &cfg, forkNumber+1)
	if err != nil {
		return nil, err
	}
	fdb, err := state.NewForkedDatabase(db, bc.triedb, upstream, forkNumber)
	if err != nil {
		return nil, &InitializationError{Err: err}
	}
	bc.states = &forkedStates{fdb: fdb}
	bc.ancestors = &remoteBlocks{upstream: upstream, forkNumber: forkNumber}
	bc.anchor = forkBlock

	log.Info("Forked remote chain", "number", forkNumber, "hash", forkBlock.Hash(), "chainid", cfg.ChainID, "networkid", cfg.NetworkID)
	return &ForkedBlockChain{
		BlockChain: bc,
		upstream:   upstream,
		fdb:        fdb,
		forkNumber: forkNumber,
	}, nil
}

// pinForkBlock resolves the fork block number once and persists it.
func pinForkBlock(ctx context.Context, db ethdb.Database, upstream Upstream, number *uint64) (uint64, error) {
	if stored, ok := rawdb.ReadForkBlock(db); ok {
		if number != nil && *number != stored {
			return 0, fmt.Errorf("database was forked at block %d, not %d", stored, *number)
		}
		return stored, nil
	}
	var pinned uint64
	if number != nil {
		pinned = *number
	} else {
		head, err := upstream.BlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("remote head: %w", err)
		}
		pinned = head
	}
	if err := rawdb.WriteForkBlock(db, pinned); err != nil {
		return 0, err
	}
	return pinned, nil
}

// ForkBlockNumber returns the number of the remote block the chain
// continues.
func (bc *ForkedBlockChain) ForkBlockNumber() uint64 { return bc.forkNumber }

// Tombstones returns the markers of remote state deleted locally.
func (bc *ForkedBlockChain) Tombstones() *state.Tombstones { return bc.fdb.Tombstones() }

// GetTransaction returns a local transaction, or a remote one mined at or
// below the fork block.
func (bc *ForkedBlockChain) GetTransaction(hash common.Hash) (*types.Transaction, *TxLocation, error) {
	tx, loc, err := bc.BlockChain.GetTransaction(hash)
	if err != nil || tx != nil {
		return tx, loc, err
	}
	rtx, rloc, err := bc.upstream.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, nil, err
	}
	if rtx == nil || rloc.BlockNumber > bc.forkNumber {
		return nil, nil, nil
	}
	log.Trace("Served remote transaction", "hash", hash, "number", rloc.BlockNumber)
	return rtx, &TxLocation{BlockHash: rloc.BlockHash, BlockNumber: rloc.BlockNumber, Index: rloc.Index}, nil
}

// GetTransactionReceipt returns a local receipt, or a remote one mined at or
// below the fork block.
func (bc *ForkedBlockChain) GetTransactionReceipt(hash common.Hash) (*gethtypes.Receipt, error) {
	receipt, err := bc.BlockChain.GetTransactionReceipt(hash)
	if err != nil || receipt != nil {
		return receipt, err
	}
	receipt, err = bc.upstream.TransactionReceipt(context.Background(), hash)
	if err != nil || receipt == nil {
		return nil, err
	}
	if receipt.BlockNumber == nil || receipt.BlockNumber.Uint64() > bc.forkNumber {
		return nil, nil
	}
	return receipt, nil
}

// forkedStates serves state through the forked database, resolving deletion
// markers at the height of the block being read or built.
type forkedStates struct {
	fdb *state.ForkedDatabase
}

func (s *forkedStates) Database(number uint64) gethstate.Database {
	return s.fdb.At(number)
}

func (s *forkedStates) Prepare(db gethstate.Database, statedb *gethstate.StateDB) error {
	view, ok := db.(*state.ForkedView)
	if !ok {
		return fmt.Errorf("unexpected state database %T", db)
	}
	return view.CommitTombstones(statedb)
}

func (s *forkedStates) Truncate(number uint64) error {
	return s.fdb.Truncate(number)
}

// remoteBlocks serves the remote blocks up to the fork block.
type remoteBlocks struct {
	upstream   Upstream
	forkNumber uint64
}

func (r *remoteBlocks) BlockByNumber(number uint64) (*types.Block, error) {
	if number > r.forkNumber {
		return nil, nil
	}
	return r.upstream.BlockByNumber(context.Background(), number)
}

func (r *remoteBlocks) BlockByHash(hash common.Hash) (*types.Block, error) {
	block, err := r.upstream.BlockByHash(context.Background(), hash)
	if err != nil || block == nil {
		return nil, err
	}
	// Remote blocks past the fork are not part of this chain.
	if block.NumberU64() > r.forkNumber {
		return nil, nil
	}
	return block, nil
}
