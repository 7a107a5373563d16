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

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/probeum/devchain/core"
)

var errInvalidBlockRange = errors.New("invalid block range params")

// GetLogs returns the logs of local blocks matching the query. Blocks the
// chain was forked from are not searched.
func (s *Simulator) GetLogs(q ethereum.FilterQuery) ([]*gethtypes.Log, error) {
	var logs []*gethtypes.Log
	err := s.queue.do(func() error {
		if q.BlockHash != nil {
			block, err := s.chain.GetBlockByHash(*q.BlockHash)
			if err != nil {
				return err
			}
			if block == nil {
				return core.ErrBlockNotFound
			}
			found, err := s.chain.GetBlockLogs(block.NumberU64())
			if err != nil {
				return err
			}
			logs = filterLogs(found, q.Addresses, q.Topics)
			return nil
		}
		head, err := s.chain.Head()
		if err != nil {
			return err
		}
		begin, end := head.NumberU64(), head.NumberU64()
		if q.FromBlock != nil && q.FromBlock.Sign() >= 0 {
			begin = q.FromBlock.Uint64()
		}
		if q.ToBlock != nil && q.ToBlock.Sign() >= 0 {
			end = q.ToBlock.Uint64()
		}
		if begin > end {
			return errInvalidBlockRange
		}
		if end > head.NumberU64() {
			end = head.NumberU64()
		}
		for number := begin; number <= end; number++ {
			found, err := s.chain.GetBlockLogs(number)
			if err != nil {
				return err
			}
			logs = append(logs, filterLogs(found, q.Addresses, q.Topics)...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []*gethtypes.Log{}
	}
	return logs, nil
}

// filterLogs returns the logs emitted by one of addresses, if any are
// given, whose topics match the topic positions. An empty position matches
// any topic.
func filterLogs(logs []*gethtypes.Log, addresses []common.Address, topics [][]common.Hash) []*gethtypes.Log {
	addrs := mapset.NewThreadUnsafeSet()
	for _, addr := range addresses {
		addrs.Add(addr)
	}
	var ret []*gethtypes.Log
Logs:
	for _, log := range logs {
		if addrs.Cardinality() > 0 && !addrs.Contains(log.Address) {
			continue
		}
		if len(topics) > len(log.Topics) {
			continue
		}
		for i, sub := range topics {
			if len(sub) == 0 {
				continue // empty rule set == wildcard
			}
			match := false
			for _, topic := range sub {
				if log.Topics[i] == topic {
					match = true
					break
				}
			}
			if !match {
				continue Logs
			}
		}
		ret = append(ret, log)
	}
	return ret
}
