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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogs(t *testing.T) {
	s := newTestSimulator(t, testConfig())

	var emitters []common.Address
	for i := 0; i < 2; i++ {
		hash, err := s.SendTransaction(deployArgs(testAccount, loggerCode))
		require.NoError(t, err)
		emitters = append(emitters, mustReceipt(t, s, hash).ContractAddress)
	}
	_, err := s.Mine(nil)
	require.NoError(t, err)

	logs, err := s.GetLogs(ethereum.FilterQuery{FromBlock: big.NewInt(0)})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, emitters[0], logs[0].Address)
	assert.Equal(t, uint64(1), logs[0].BlockNumber)
	assert.Equal(t, uint64(2), logs[1].BlockNumber)

	// Without a range only the head block is searched.
	logs, err = s.GetLogs(ethereum.FilterQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.NotNil(t, logs)

	logs, err = s.GetLogs(ethereum.FilterQuery{FromBlock: big.NewInt(0), Addresses: []common.Address{emitters[1]}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, emitters[1], logs[0].Address)

	logs, err = s.GetLogs(ethereum.FilterQuery{FromBlock: big.NewInt(2), ToBlock: big.NewInt(100)})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	block, err := s.BlockByNumber(1)
	require.NoError(t, err)
	hash := block.Hash()
	logs, err = s.GetLogs(ethereum.FilterQuery{BlockHash: &hash})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = s.GetLogs(ethereum.FilterQuery{FromBlock: big.NewInt(3), ToBlock: big.NewInt(1)})
	assert.ErrorIs(t, err, errInvalidBlockRange)

	missing := common.Hash{1}
	_, err = s.GetLogs(ethereum.FilterQuery{BlockHash: &missing})
	assert.Error(t, err)
}

func TestFilterLogs(t *testing.T) {
	var (
		addr1, addr2 = common.HexToAddress("0x1"), common.HexToAddress("0x2")
		topicA       = common.HexToHash("0xa")
		topicB       = common.HexToHash("0xb")
		topicC       = common.HexToHash("0xc")
	)
	logs := []*gethtypes.Log{
		{Address: addr1, Topics: []common.Hash{topicA}},
		{Address: addr1, Topics: []common.Hash{topicA, topicB}},
		{Address: addr2, Topics: []common.Hash{topicB, topicC}},
		{Address: addr2},
	}
	tests := []struct {
		addresses []common.Address
		topics    [][]common.Hash
		want      []int
	}{
		{nil, nil, []int{0, 1, 2, 3}},
		{[]common.Address{addr1}, nil, []int{0, 1}},
		{[]common.Address{addr1, addr2}, nil, []int{0, 1, 2, 3}},
		{nil, [][]common.Hash{{topicA}}, []int{0, 1}},
		{nil, [][]common.Hash{{topicA, topicB}}, []int{0, 1, 2}},
		{nil, [][]common.Hash{{}, {topicB}}, []int{1}},
		{nil, [][]common.Hash{{}, {}}, []int{1, 2}},
		{[]common.Address{addr2}, [][]common.Hash{{topicB}, {topicC}}, []int{2}},
		{nil, [][]common.Hash{{topicC}}, nil},
	}
	for i, tt := range tests {
		var want []*gethtypes.Log
		for _, j := range tt.want {
			want = append(want, logs[j])
		}
		assert.Equal(t, want, filterLogs(logs, tt.addresses, tt.topics), "test %d", i)
	}
}
