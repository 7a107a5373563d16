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

// Package gasestimator computes the gas limit a transaction needs by tracing
// a single execution and accounting for the gas withheld by every call.
package gasestimator

import (
	"errors"
	"fmt"

	gethcore "github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/types"
)

// Caller executes a transaction without committing it.
type Caller interface {
	ProcessCall(tx *types.Transaction, at rpc.BlockNumberOrHash, hooks *tracing.Hooks) (*core.CallResult, error)
}

// Result is the outcome of an estimation.
type Result struct {
	Gas        uint64
	ReturnData []byte

	// Failure is set when the transaction fails even with the full gas
	// allowance. Gas is then the gas it used.
	Failure *core.RuntimeError
}

// Estimate returns the gas newTx needs at the given block. newTx builds the
// transaction with the given gas limit; allowance is the most gas it may be
// given.
func Estimate(chain Caller, at rpc.BlockNumberOrHash, allowance uint64, newTx func(gas uint64) *types.Transaction) (*Result, error) {
	rec := NewRecorder()
	res, err := chain.ProcessCall(newTx(allowance), at, rec.Hooks())
	if err != nil {
		return nil, err
	}
	used := res.UsedGas + res.RefundedGas
	if res.Failed() {
		return &Result{Gas: used, ReturnData: res.Revert(), Failure: res.Failure}, nil
	}
	gas := used
	if rec.root != nil && rec.Steps() > 0 && !rec.lowestAtEnd() {
		intrinsic := sub(allowance, rec.root.gas)
		gas = max(intrinsic+rec.root.need(), used)
	}
	if gas < params.TxGas {
		gas = params.TxGas
	}
	if gas >= allowance {
		return &Result{Gas: allowance, ReturnData: res.ReturnData}, nil
	}
	// Confirm the estimate, searching upwards if the trace missed a
	// requirement.
	ok, err := executable(chain, at, newTx, gas)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Debug("Gas estimate too low, searching", "estimate", gas, "allowance", allowance)
		if gas, err = search(chain, at, newTx, gas, allowance); err != nil {
			return nil, err
		}
	}
	return &Result{Gas: gas, ReturnData: res.ReturnData}, nil
}

// executable reports whether the transaction succeeds with the given gas.
func executable(chain Caller, at rpc.BlockNumberOrHash, newTx func(uint64) *types.Transaction, gas uint64) (bool, error) {
	res, err := chain.ProcessCall(newTx(gas), at, nil)
	if err != nil {
		if errors.Is(err, gethcore.ErrIntrinsicGas) {
			return false, nil
		}
		return false, err
	}
	return !res.Failed(), nil
}

// search binary searches the lowest working gas limit in (lo, hi]. hi is
// known to succeed.
func search(chain Caller, at rpc.BlockNumberOrHash, newTx func(uint64) *types.Transaction, lo, hi uint64) (uint64, error) {
	for lo+1 < hi {
		mid := lo + (hi-lo)/2
		ok, err := executable(chain, at, newTx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// ErrGasAllowance is returned when a transaction runs out of gas at the
// highest allowance.
var ErrGasAllowance = errors.New("gas required exceeds allowance")

// Err converts a failed estimation into an error. Out of gas at the full
// allowance is reported as ErrGasAllowance, other failures as the runtime
// error.
func (r *Result) Err(allowance uint64) error {
	if r.Failure.Count() == 0 {
		return nil
	}
	if f := r.Failure.Failures[0]; f.Kind == core.KindOutOfGas && len(r.ReturnData) == 0 {
		return fmt.Errorf("%w (%d)", ErrGasAllowance, allowance)
	}
	return r.Failure
}
