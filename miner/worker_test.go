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

package miner

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBackend struct {
	mined  int32
	closed int32
}

func (b *testBackend) Mine(timestamp *uint64) (*types.Block, error) {
	if atomic.LoadInt32(&b.closed) == 1 {
		return nil, core.ErrClosed
	}
	atomic.AddInt32(&b.mined, 1)
	return nil, nil
}

func (b *testBackend) count() int { return int(atomic.LoadInt32(&b.mined)) }

func TestIntervalMining(t *testing.T) {
	backend := new(testBackend)
	m := New(&Config{BlockTime: 20 * time.Millisecond}, backend)
	defer m.Close()

	assert.False(t, m.Mining())
	assert.False(t, m.Instant())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, backend.count(), "mined while stopped")

	m.Start()
	assert.True(t, m.Mining())
	require.Eventually(t, func() bool { return backend.count() >= 3 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Mining())
	// At most one block may have been in flight when stopping.
	stopped := backend.count()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, backend.count(), stopped+1)
}

func TestInstantMining(t *testing.T) {
	backend := new(testBackend)
	m := New(&DefaultConfig, backend)
	defer m.Close()

	assert.True(t, m.Instant())
	m.Start()
	assert.True(t, m.Mining())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, backend.count())

	// Switching to a block time starts the timer of the running miner.
	m.SetBlockTime(time.Millisecond)
	assert.False(t, m.Instant())
	require.Eventually(t, func() bool { return backend.count() > 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestMinerBackendClosed(t *testing.T) {
	backend := &testBackend{closed: 1}
	m := New(&Config{BlockTime: minBlockTime}, backend)

	var hooked int32
	m.minedHook = func(*types.Block, error) { atomic.AddInt32(&hooked, 1) }
	m.Start()

	// The miner stops on the first closed error without reporting a block.
	require.Eventually(t, func() bool { return !m.Mining() }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&hooked))
	m.Stop()
	m.Close()
}
