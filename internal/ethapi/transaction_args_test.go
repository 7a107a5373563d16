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

package ethapi

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/probeum/devchain/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendMock struct {
	config  *params.ChainConfig
	baseFee *big.Int
	nonces  map[common.Address]uint64
}

func newBackendMock(london bool) *backendMock {
	config := &params.ChainConfig{ChainID: big.NewInt(1337)}
	b := &backendMock{config: config, nonces: make(map[common.Address]uint64)}
	if london {
		config.LondonBlock = big.NewInt(0)
		b.baseFee = big.NewInt(params.GWei)
	}
	return b
}

func (b *backendMock) ChainConfig() *params.ChainConfig { return b.config }

func (b *backendMock) Head() (*types.Block, error) {
	header := &gethtypes.Header{Number: big.NewInt(5), BaseFee: b.baseFee}
	return types.NewBlock(header, nil, nil), nil
}

func (b *backendMock) GetQueuedNonce(addr common.Address) (uint64, error) {
	return b.nonces[addr], nil
}

var (
	from = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	to   = common.HexToAddress("0x000000000000000000000000000000000000dEaD")
)

func bigArg(v int64) *hexutil.Big { return (*hexutil.Big)(big.NewInt(v)) }

func TestSetDefaultsLondon(t *testing.T) {
	b := newBackendMock(true)
	b.nonces[from] = 7

	args := &TransactionArgs{From: &from, To: &to}
	require.NoError(t, args.SetDefaults(b, 90000))

	tx := args.ToTransaction()
	assert.Equal(t, uint8(gethtypes.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(90000), tx.Gas())
	assert.Equal(t, DefaultGasTipCap, tx.GasTipCap())
	assert.Equal(t, big.NewInt(3*params.GWei), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(1337), tx.ChainId())
	assert.Equal(t, 0, tx.Value().Sign())
}

func TestSetDefaultsLegacy(t *testing.T) {
	b := newBackendMock(false)

	gas := hexutil.Uint64(30000)
	args := &TransactionArgs{From: &from, To: &to, Gas: &gas, Value: bigArg(5)}
	require.NoError(t, args.SetDefaults(b, 90000))

	tx := args.ToTransaction()
	assert.Equal(t, uint8(gethtypes.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(30000), tx.Gas())
	assert.Equal(t, DefaultGasTipCap, tx.GasPrice())
	assert.Equal(t, big.NewInt(5), tx.Value())

	args = &TransactionArgs{From: &from, MaxFeePerGas: bigArg(1)}
	assert.ErrorIs(t, args.SetDefaults(b, 90000), errLondonInactive)
}

func TestSetDefaultsExplicitPrice(t *testing.T) {
	b := newBackendMock(true)

	list := gethtypes.AccessList{{Address: to}}
	args := &TransactionArgs{From: &from, To: &to, GasPrice: bigArg(10), AccessList: &list}
	require.NoError(t, args.SetDefaults(b, 90000))

	tx := args.ToTransaction()
	assert.Equal(t, uint8(gethtypes.AccessListTxType), tx.Type())
	assert.Equal(t, big.NewInt(10), tx.GasPrice())
	assert.Len(t, tx.AccessList(), 1)

	args = &TransactionArgs{From: &from, ChainID: bigArg(1)}
	assert.Error(t, args.SetDefaults(b, 90000))
}

func TestArgumentValidation(t *testing.T) {
	data, input := hexutil.Bytes{1}, hexutil.Bytes{2}
	tests := []struct {
		args TransactionArgs
		err  error
	}{
		{TransactionArgs{GasPrice: bigArg(1), MaxFeePerGas: bigArg(1)}, errBothFeeStyles},
		{TransactionArgs{Data: &data, Input: &input}, errDataInputClash},
		{TransactionArgs{Value: bigArg(-1)}, errNegativeValue},
		{TransactionArgs{MaxPriorityFeePerGas: bigArg(-1)}, errNegativeGasPrice},
		{TransactionArgs{Data: &data, Input: &data}, nil},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.err, tt.args.validate(), "test %d", i)
	}

	args := TransactionArgs{From: &from}
	assert.Equal(t, errEmptyCreation, args.ValidateSend())
	args = TransactionArgs{To: &to}
	assert.Error(t, args.ValidateSend())
}

func TestToCallTransaction(t *testing.T) {
	input := hexutil.Bytes{0xde, 0xad}
	gas := hexutil.Uint64(100_000_000)
	args := &TransactionArgs{From: &from, To: &to, Gas: &gas, Input: &input}

	tx, err := args.ToCallTransaction(50_000_000)
	require.NoError(t, err)
	assert.True(t, tx.IsFake())
	assert.Equal(t, from, tx.From())
	assert.Equal(t, uint64(50_000_000), tx.Gas())
	assert.Equal(t, []byte{0xde, 0xad}, tx.Data())
	assert.Equal(t, 0, tx.GasPrice().Sign())

	// The arguments themselves are left untouched.
	assert.Equal(t, hexutil.Uint64(100_000_000), *args.Gas)

	tx, err = args.WithGas(21000).ToCallTransaction(50_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), tx.Gas())

	// Without a sender the call runs from the zero address.
	tx, err = (&TransactionArgs{To: &to}).ToCallTransaction(0)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, tx.From())
	assert.Equal(t, uint64(math.MaxUint64/2), tx.Gas())
}
