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

// Package miner produces blocks on a timer.
package miner

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/types"
)

const (
	// minBlockTime is the minimal interval between two interval-mined blocks.
	minBlockTime = 10 * time.Millisecond
)

// Config contains the mining settings.
type Config struct {
	// BlockTime is the interval between blocks. Zero mines a block as soon
	// as a transaction arrives.
	BlockTime time.Duration

	// TransactionGas is the gas limit of sent transactions that set none.
	TransactionGas uint64

	// Stopped starts the chain with mining disabled.
	Stopped bool
}

// DefaultConfig contains the default mining settings.
var DefaultConfig = Config{
	BlockTime:      0,
	TransactionGas: 90000,
}

// Backend mines blocks. Implementations serialise mining with every other
// chain operation.
type Backend interface {
	Mine(timestamp *uint64) (*types.Block, error)
}

// Miner mines a block every block time while it is running. With a zero
// block time it only tracks whether mining is enabled and leaves block
// production to the caller.
type Miner struct {
	backend Backend
	running int32 // The indicator whether the miner is running or not.

	interval   time.Duration
	startCh    chan struct{}
	stopCh     chan struct{}
	intervalCh chan time.Duration
	exitCh     chan struct{}
	wg         sync.WaitGroup

	// Test hook, called after every interval block.
	minedHook func(block *types.Block, err error)
}

// New creates a stopped miner.
func New(config *Config, backend Backend) *Miner {
	interval := config.BlockTime
	if interval > 0 && interval < minBlockTime {
		log.Warn("Sanitizing miner block time", "provided", interval, "updated", minBlockTime)
		interval = minBlockTime
	}
	m := &Miner{
		backend:    backend,
		interval:   interval,
		startCh:    make(chan struct{}),
		stopCh:     make(chan struct{}),
		intervalCh: make(chan time.Duration),
		exitCh:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.loop()
	return m
}

// Instant reports whether blocks are mined per transaction instead of on a
// timer.
func (m *Miner) Instant() bool { return atomic.LoadInt64((*int64)(&m.interval)) == 0 }

// Start sets the running status and arms the block timer.
func (m *Miner) Start() {
	atomic.StoreInt32(&m.running, 1)
	select {
	case m.startCh <- struct{}{}:
	case <-m.exitCh:
	}
}

// Stop clears the running status.
func (m *Miner) Stop() {
	atomic.StoreInt32(&m.running, 0)
	select {
	case m.stopCh <- struct{}{}:
	case <-m.exitCh:
	}
}

// Mining returns an indicator whether the miner is running or not.
func (m *Miner) Mining() bool {
	return atomic.LoadInt32(&m.running) == 1
}

// SetBlockTime updates the interval between blocks.
func (m *Miner) SetBlockTime(interval time.Duration) {
	if interval > 0 && interval < minBlockTime {
		log.Warn("Sanitizing miner block time", "provided", interval, "updated", minBlockTime)
		interval = minBlockTime
	}
	select {
	case m.intervalCh <- interval:
	case <-m.exitCh:
	}
}

// Close terminates the mining loop. Note the miner does not support being
// closed multiple times.
func (m *Miner) Close() {
	atomic.StoreInt32(&m.running, 0)
	close(m.exitCh)
	m.wg.Wait()
}

// loop mines a block each time the timer fires while the miner is running.
func (m *Miner) loop() {
	defer m.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C // discard the initial tick

	arm := func() {
		timer.Stop()
		if m.Mining() && !m.Instant() {
			timer.Reset(m.interval)
		}
	}
	for {
		select {
		case <-m.startCh:
			arm()

		case <-m.stopCh:
			timer.Stop()

		case interval := <-m.intervalCh:
			log.Info("Miner block time update", "from", m.interval, "to", interval)
			atomic.StoreInt64((*int64)(&m.interval), int64(interval))
			arm()

		case <-timer.C:
			if !m.Mining() || m.Instant() {
				continue
			}
			block, err := m.backend.Mine(nil)
			switch {
			case errors.Is(err, core.ErrClosed):
				log.Debug("Chain closed, stopping miner")
				atomic.StoreInt32(&m.running, 0)
				continue
			case err != nil:
				log.Warn("Interval block failed", "err", err)
			}
			if m.minedHook != nil {
				m.minedHook(block, err)
			}
			arm()

		case <-m.exitCh:
			return
		}
	}
}
