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

// Package sim implements the local development chain: a chain engine behind
// a serial action queue, with development accounts, snapshots, time control
// and automatic mining.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/probeum/devchain/accounts"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/fork"
	"github.com/probeum/devchain/miner"
)

// Simulator is a local development chain. Every operation touching chain
// state runs on a single action queue, so operations never interleave.
type Simulator struct {
	config *Config
	id     uuid.UUID
	log    log.Logger

	db       ethdb.Database
	chain    core.ChainBackend
	upstream core.Upstream // nil unless forked
	accounts *accounts.Manager
	miner    *miner.Miner

	queue *queue
	snaps snapshots

	closeOnce sync.Once
	closeErr  error
}

// New opens the database, connects to the forked chain if one is configured
// and starts a simulator on top.
func New(config *Config) (*Simulator, error) {
	db, err := core.OpenDatabase(config.Database.Path, config.Database.Cache, config.Database.Handles)
	if err != nil {
		return nil, err
	}
	var upstream core.Upstream
	if config.Fork.Enabled() {
		client, err := fork.Dial(context.Background(), &config.Fork)
		if err != nil {
			db.Close()
			return nil, err
		}
		upstream = client
	}
	s, err := newSimulator(config, db, upstream)
	if err != nil {
		if client, ok := upstream.(*fork.Client); ok {
			client.Close()
		}
		db.Close()
		return nil, err
	}
	return s, nil
}

// newSimulator starts a simulator over an open database. A non-nil upstream
// forks it.
func newSimulator(config *Config, db ethdb.Database, upstream core.Upstream) (*Simulator, error) {
	cfg := *config
	am, err := accounts.NewManager(&cfg.Accounts)
	if err != nil {
		return nil, fmt.Errorf("failed to derive accounts: %w", err)
	}
	var chain core.ChainBackend
	if upstream != nil {
		fc, err := core.NewForkedBlockChain(db, &cfg.Chain, upstream, cfg.Fork.BlockNumber)
		if err != nil {
			return nil, err
		}
		if err := fc.Initialize(am.Alloc()); err != nil {
			fc.Close()
			return nil, err
		}
		chain = fc
	} else {
		bc, err := core.NewBlockChain(db, &cfg.Chain)
		if err != nil {
			return nil, err
		}
		if err := bc.Initialize(am.Alloc()); err != nil {
			bc.Close()
			return nil, err
		}
		chain = bc
	}
	head, err := chain.Head()
	if err != nil {
		chain.Close()
		return nil, err
	}
	id := uuid.New()
	s := &Simulator{
		config:   &cfg,
		id:       id,
		log:      log.New("sim", id.String()[:8]),
		db:       db,
		chain:    chain,
		upstream: upstream,
		accounts: am,
		queue:    newQueue(),
	}
	s.miner = miner.New(&cfg.Miner, s)
	if !cfg.Miner.Stopped {
		s.miner.Start()
	}

	s.log.Info("Started development chain", "chainid", chain.Config().ChainID, "networkid", chain.Config().NetworkID,
		"head", head.NumberU64(), "accounts", len(am.Accounts()), "blocktime", cfg.Miner.BlockTime)
	return s, nil
}

// ID returns the random identifier of this simulator instance.
func (s *Simulator) ID() uuid.UUID { return s.id }

// Chain returns the chain engine. Callers must not use it while the
// simulator is running actions.
func (s *Simulator) Chain() core.ChainBackend { return s.chain }

// AccountManager returns the development accounts.
func (s *Simulator) AccountManager() *accounts.Manager { return s.accounts }

// Accounts returns the addresses of the development accounts.
func (s *Simulator) Accounts() []common.Address { return s.accounts.Addresses() }

// ChainID returns the chain id transactions are signed for.
func (s *Simulator) ChainID() uint64 { return s.chain.Config().ChainID }

// NetworkID returns the network id.
func (s *Simulator) NetworkID() uint64 { return s.chain.Config().NetworkID }

// SubscribeChainHeadEvent registers a subscription of new head blocks.
func (s *Simulator) SubscribeChainHeadEvent(ch chan<- core.ChainHeadEvent) event.Subscription {
	return s.chain.SubscribeChainHeadEvent(ch)
}

// Close stops mining, finishes the accepted actions and closes the chain,
// the remote connection and the database.
func (s *Simulator) Close() error {
	s.closeOnce.Do(func() {
		s.miner.Close()
		s.queue.close()
		if err := s.chain.Close(); err != nil {
			s.closeErr = err
		}
		if client, ok := s.upstream.(*fork.Client); ok {
			client.Close()
		}
		if err := s.db.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
		s.log.Info("Development chain stopped")
	})
	return s.closeErr
}
