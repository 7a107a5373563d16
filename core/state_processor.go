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
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/probeum/devchain/core/types"
)

// ProcessResult is the outcome of running the transactions of a block.
type ProcessResult struct {
	Block    *types.Block
	Receipts []*gethtypes.Receipt
	Results  []*gethcore.ExecutionResult

	// Err aggregates the transactions that failed inside the VM. It is nil
	// when all of them succeeded.
	Err *RuntimeError
}

// CallResult is the outcome of a call that is never committed.
type CallResult struct {
	*gethcore.ExecutionResult

	// Failure describes the VM error, if any, in the form a mined
	// transaction would report it.
	Failure *RuntimeError
}

// process executes txs on top of statedb in the context of header. It fills
// in the gas used of header and returns the receipts. Receipts and logs carry
// no block hash yet. hooks, if non-nil, is consulted per transaction index for
// tracing hooks.
func (bc *BlockChain) process(header *gethtypes.Header, txs []*types.Transaction, statedb *gethstate.StateDB, hooks func(int) *tracing.Hooks) (*ProcessResult, error) {
	var (
		blockCtx = NewEVMBlockContext(header, bc)
		gp       = new(gethcore.GasPool).AddGas(header.GasLimit)
		usedGas  uint64
		res      = &ProcessResult{Err: new(RuntimeError)}
	)
	for i, tx := range txs {
		var inner *tracing.Hooks
		if hooks != nil {
			inner = hooks(i)
		}
		receipt, result, err := bc.applyTransaction(blockCtx, header, tx, i, statedb, gp, &usedGas, inner, res.Err)
		if err != nil {
			return nil, &FatalError{TxHash: tx.Hash(), Err: err}
		}
		res.Receipts = append(res.Receipts, receipt)
		res.Results = append(res.Results, result)
	}
	header.GasUsed = usedGas
	if res.Err.Count() == 0 {
		res.Err = nil
	}
	return res, nil
}

// applyTransaction runs one transaction and builds its receipt. VM failures
// are recorded in failures; only consensus errors are returned.
func (bc *BlockChain) applyTransaction(blockCtx vm.BlockContext, header *gethtypes.Header, tx *types.Transaction, index int, statedb *gethstate.StateDB, gp *gethcore.GasPool, usedGas *uint64, hooks *tracing.Hooks, failures *RuntimeError) (*gethtypes.Receipt, *gethcore.ExecutionResult, error) {
	var (
		tracker = new(pcTracker)
		msg     = tx.AsMessage(header.BaseFee)
		evm     = vm.NewEVM(blockCtx, statedb, bc.chainConfig, vm.Config{Tracer: tracker.hooks(hooks)})
	)
	statedb.SetTxContext(tx.Hash(), index)

	result, err := gethcore.ApplyMessage(evm, msg, gp)
	if err != nil {
		return nil, nil, err
	}
	statedb.Finalise(true)
	*usedGas += result.UsedGas

	receipt := &gethtypes.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: *usedGas,
		TxHash:            tx.Hash(),
		GasUsed:           result.UsedGas,
		EffectiveGasPrice: msg.GasPrice,
		BlockNumber:       header.Number,
		TransactionIndex:  uint(index),
	}
	if msg.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From, tx.Nonce())
	}
	if result.Failed() {
		receipt.Status = gethtypes.ReceiptStatusFailed
		receipt.Logs = []*gethtypes.Log{}
		failures.Add(tx.Hash(), result.Err, tracker.pc, result.Revert())
	} else {
		receipt.Status = gethtypes.ReceiptStatusSuccessful
		receipt.Logs = statedb.GetLogs(tx.Hash(), header.Number.Uint64(), common.Hash{}, header.Time)
	}
	receipt.Bloom = types.LogsBloom(receipt.Logs)
	return receipt, result, nil
}

// call executes msg on statedb without committing anything. The caller owns
// statedb and discards it afterwards.
func (bc *BlockChain) call(header *gethtypes.Header, tx *types.Transaction, statedb *gethstate.StateDB, hooks *tracing.Hooks) (*CallResult, error) {
	var (
		tracker  = new(pcTracker)
		blockCtx = NewEVMBlockContext(header, bc)
		msg      = tx.AsMessage(nil)
		evm      = vm.NewEVM(blockCtx, statedb, bc.chainConfig, vm.Config{Tracer: tracker.hooks(hooks), NoBaseFee: true})
	)
	// Calls never fail on the nonce.
	msg.Nonce = statedb.GetNonce(msg.From)
	statedb.SetTxContext(tx.Hash(), 0)

	result, err := gethcore.ApplyMessage(evm, msg, new(gethcore.GasPool).AddGas(math.MaxUint64))
	if err != nil {
		return nil, fmt.Errorf("err: %w (supplied gas %d)", err, msg.GasLimit)
	}
	res := &CallResult{ExecutionResult: result}
	if result.Failed() {
		res.Failure = new(RuntimeError)
		res.Failure.Add(tx.Hash(), result.Err, tracker.pc, result.Revert())
	}
	return res, nil
}

// finalizeReceipts stamps the block hash onto receipts and their logs.
func finalizeReceipts(block *types.Block, receipts []*gethtypes.Receipt) {
	hash := block.Hash()
	for _, receipt := range receipts {
		receipt.BlockHash = hash
		for _, l := range receipt.Logs {
			l.BlockHash = hash
		}
	}
}
