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
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// VM failure kinds as they appear in error messages.
const (
	KindRevert            = "revert"
	KindOutOfGas          = "out of gas"
	KindInvalidOpcode     = "invalid opcode"
	KindInvalidJump       = "invalid JUMP"
	KindStackUnderflow    = "stack underflow"
	KindStackOverflow     = "stack overflow"
	KindStaticStateChange = "static state change"
)

// ExecutionFailure describes one transaction whose execution failed inside
// the VM.
type ExecutionFailure struct {
	TxHash     common.Hash
	Kind       string
	PC         uint64
	ReturnData []byte
	Reason     string // decoded Error(string) revert reason, if any
}

func (f *ExecutionFailure) message() string {
	if f.Reason != "" {
		return f.Kind + " " + f.Reason
	}
	return f.Kind
}

// RuntimeError collects the VM failures of one or more transactions. Failed
// transactions are still mined with a status 0 receipt.
type RuntimeError struct {
	Failures []*ExecutionFailure
}

// vmErrorKind maps a go-ethereum VM error onto its failure kind.
func vmErrorKind(err error) string {
	var (
		invalidOp *vm.ErrInvalidOpCode
		underflow *vm.ErrStackUnderflow
		overflow  *vm.ErrStackOverflow
	)
	switch {
	case errors.Is(err, vm.ErrExecutionReverted):
		return KindRevert
	case errors.Is(err, vm.ErrOutOfGas), errors.Is(err, vm.ErrCodeStoreOutOfGas), errors.Is(err, vm.ErrGasUintOverflow):
		return KindOutOfGas
	case errors.As(err, &invalidOp):
		return KindInvalidOpcode
	case errors.Is(err, vm.ErrInvalidJump):
		return KindInvalidJump
	case errors.As(err, &underflow):
		return KindStackUnderflow
	case errors.As(err, &overflow):
		return KindStackOverflow
	case errors.Is(err, vm.ErrWriteProtection):
		return KindStaticStateChange
	default:
		return err.Error()
	}
}

// Add records a failed execution.
func (e *RuntimeError) Add(hash common.Hash, err error, pc uint64, returnData []byte) {
	failure := &ExecutionFailure{
		TxHash:     hash,
		Kind:       vmErrorKind(err),
		PC:         pc,
		ReturnData: common.CopyBytes(returnData),
	}
	if failure.Kind == KindRevert {
		if reason, uerr := abi.UnpackRevert(returnData); uerr == nil {
			failure.Reason = reason
		}
	}
	e.Failures = append(e.Failures, failure)
}

// Combine appends the failures of other.
func (e *RuntimeError) Combine(other *RuntimeError) {
	if other == nil {
		return
	}
	e.Failures = append(e.Failures, other.Failures...)
}

// Count returns the number of recorded failures.
func (e *RuntimeError) Count() int {
	if e == nil {
		return 0
	}
	return len(e.Failures)
}

// Err returns e, or nil if nothing failed. Use it when handing the
// aggregate out as an error value.
func (e *RuntimeError) Err() error {
	if e.Count() == 0 {
		return nil
	}
	return e
}

func (e *RuntimeError) Error() string {
	switch len(e.Failures) {
	case 0:
		return "no VM exceptions"
	case 1:
		return "VM Exception while processing transaction: " + e.Failures[0].message()
	}
	var b strings.Builder
	b.WriteString("Multiple VM Exceptions while processing transactions:")
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n%s: %s", f.TxHash.Hex(), f.message())
	}
	return b.String()
}

// ErrorCode implements rpc.Error.
func (e *RuntimeError) ErrorCode() int { return -32000 }

// ErrorData implements rpc.DataError, carrying the return data of a single
// failure.
func (e *RuntimeError) ErrorData() interface{} {
	if len(e.Failures) != 1 {
		return nil
	}
	return hexutil.Encode(e.Failures[0].ReturnData)
}

// pcTracker remembers the program counter of the last opcode executed by the
// outermost call frame.
type pcTracker struct {
	pc uint64
}

// hooks returns tracing hooks that update the tracker and then forward to
// inner, which may be nil.
func (t *pcTracker) hooks(inner *tracing.Hooks) *tracing.Hooks {
	hooks := new(tracing.Hooks)
	if inner != nil {
		*hooks = *inner
	}
	onOpcode, onFault := hooks.OnOpcode, hooks.OnFault
	hooks.OnOpcode = func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
		if depth == 1 {
			t.pc = pc
		}
		if onOpcode != nil {
			onOpcode(pc, op, gas, cost, scope, rData, depth, err)
		}
	}
	hooks.OnFault = func(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
		if depth == 1 {
			t.pc = pc
		}
		if onFault != nil {
			onFault(pc, op, gas, cost, scope, depth, err)
		}
	}
	return hooks
}
