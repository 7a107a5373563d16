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
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
)

func TestVMErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{vm.ErrExecutionReverted, KindRevert},
		{vm.ErrOutOfGas, KindOutOfGas},
		{vm.ErrCodeStoreOutOfGas, KindOutOfGas},
		{&vm.ErrInvalidOpCode{}, KindInvalidOpcode},
		{vm.ErrInvalidJump, KindInvalidJump},
		{&vm.ErrStackUnderflow{}, KindStackUnderflow},
		{&vm.ErrStackOverflow{}, KindStackOverflow},
		{vm.ErrWriteProtection, KindStaticStateChange},
		{fmt.Errorf("wrapped: %w", vm.ErrOutOfGas), KindOutOfGas},
		{errors.New("something else"), "something else"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vmErrorKind(tt.err), "error %v", tt.err)
	}
}

func TestRuntimeErrorMessages(t *testing.T) {
	var nilErr *RuntimeError
	assert.Equal(t, 0, nilErr.Count())
	assert.NoError(t, nilErr.Err())

	e := new(RuntimeError)
	assert.NoError(t, e.Err())

	first := common.HexToHash("0x01")
	e.Add(first, vm.ErrExecutionReverted, 9, nopeRevert)
	assert.Equal(t, 1, e.Count())
	assert.EqualError(t, e.Err(), "VM Exception while processing transaction: revert nope")
	assert.Equal(t, "nope", e.Failures[0].Reason)
	assert.Equal(t, uint64(9), e.Failures[0].PC)

	var dataErr rpc.DataError
	if assert.ErrorAs(t, e.Err(), &dataErr) {
		assert.Equal(t, common.Bytes2Hex(nopeRevert), dataErr.ErrorData().(string)[2:])
	}
	var rpcErr rpc.Error
	if assert.ErrorAs(t, e.Err(), &rpcErr) {
		assert.Equal(t, -32000, rpcErr.ErrorCode())
	}

	other := new(RuntimeError)
	second := common.HexToHash("0x02")
	other.Add(second, vm.ErrOutOfGas, 3, nil)
	e.Combine(other)
	e.Combine(nil)

	assert.Equal(t, 2, e.Count())
	assert.Nil(t, e.ErrorData())
	want := "Multiple VM Exceptions while processing transactions:" +
		"\n" + first.Hex() + ": revert nope" +
		"\n" + second.Hex() + ": out of gas"
	assert.EqualError(t, e, want)
}

func TestRevertWithoutReason(t *testing.T) {
	e := new(RuntimeError)
	e.Add(common.Hash{}, vm.ErrExecutionReverted, 0, []byte{0xde, 0xad})
	assert.EqualError(t, e, "VM Exception while processing transaction: revert")
	assert.Empty(t, e.Failures[0].Reason)
	assert.Equal(t, "0xdead", e.ErrorData())
}
