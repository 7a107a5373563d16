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
	"time"

	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/types"
)

// Mine mines one block with the pending transactions that fit, even if there
// are none. A non-nil timestamp becomes the block time and later blocks
// continue from it. Failed transactions end up in the block with a failed
// receipt and are only logged here.
func (s *Simulator) Mine(timestamp *uint64) (*types.Block, error) {
	var block *types.Block
	err := s.queue.do(func() error {
		res, err := s.chain.Mine(timestamp)
		if err != nil {
			return err
		}
		if res.Err != nil {
			s.log.Debug("Mined failing transactions", "number", res.Block.NumberU64(), "err", res.Err)
		}
		block = res.Block
		return nil
	})
	return block, err
}

// mineInstant mines the pending transactions if blocks are produced per
// transaction. It must run on the queue.
func (s *Simulator) mineInstant() (*core.ProcessResult, error) {
	if !s.miner.Instant() || !s.miner.Mining() {
		return nil, nil
	}
	res, err := s.chain.ProcessNextBlock()
	if errors.Is(err, core.ErrNoPending) {
		return nil, nil
	}
	return res, err
}

// StartMining resumes block production. With per-transaction mining the
// transactions queued while stopped are mined first.
func (s *Simulator) StartMining() error {
	if s.miner.Instant() {
		err := s.queue.do(func() error {
			for {
				_, err := s.chain.ProcessNextBlock()
				if errors.Is(err, core.ErrNoPending) {
					return nil
				}
				if err != nil {
					return err
				}
			}
		})
		if err != nil {
			return err
		}
	}
	s.miner.Start()
	return nil
}

// StopMining halts block production. Sent transactions stay pending until
// mining resumes or a block is mined explicitly.
func (s *Simulator) StopMining() {
	s.miner.Stop()
}

// Mining reports whether blocks are being produced.
func (s *Simulator) Mining() bool { return s.miner.Mining() }

// SetBlockTime switches between per-transaction mining (zero) and mining on
// an interval.
func (s *Simulator) SetBlockTime(d time.Duration) {
	s.miner.SetBlockTime(d)
}

// IncreaseTime moves the chain clock forward and returns the total offset
// from the wall clock in seconds.
func (s *Simulator) IncreaseTime(seconds int64) (int64, error) {
	var offset int64
	err := s.queue.do(func() error {
		offset = s.chain.IncreaseTime(seconds)
		return nil
	})
	return offset, err
}

// SetTime sets the time of the next block and returns the resulting offset
// from the wall clock in seconds.
func (s *Simulator) SetTime(t time.Time) (int64, error) {
	var offset int64
	err := s.queue.do(func() error {
		offset = s.chain.SetTime(t)
		return nil
	})
	return offset, err
}
