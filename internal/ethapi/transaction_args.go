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

// Package ethapi turns the arguments of eth_sendTransaction, eth_call and
// eth_estimateGas into transactions.
package ethapi

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/probeum/devchain/core/types"
)

// DefaultGasTipCap is the priority fee of transactions that set none.
var DefaultGasTipCap = big.NewInt(params.GWei)

// Backend is the chain state argument defaulting needs.
type Backend interface {
	ChainConfig() *params.ChainConfig
	Head() (*types.Block, error)
	GetQueuedNonce(addr common.Address) (uint64, error)
}

// TransactionArgs represents the arguments to construct a new transaction
// or a message call.
type TransactionArgs struct {
	From                 *common.Address `json:"from"`
	To                   *common.Address `json:"to"`
	Gas                  *hexutil.Uint64 `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                *hexutil.Uint64 `json:"nonce"`

	// We accept "data" and "input" for backwards-compatibility reasons.
	// "input" is the newer name and should be preferred by clients.
	Data  *hexutil.Bytes `json:"data"`
	Input *hexutil.Bytes `json:"input"`

	// For non-legacy transactions
	AccessList *gethtypes.AccessList `json:"accessList,omitempty"`
	ChainID    *hexutil.Big          `json:"chainId,omitempty"`
}

// from retrieves the transaction sender address.
func (args *TransactionArgs) from() common.Address {
	if args.From == nil {
		return common.Address{}
	}
	return *args.From
}

// data retrieves the transaction calldata. Input field is preferred.
func (args *TransactionArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// SetDefaults fills in default values for unspecified tx fields. gas is the
// gas limit of transactions that set none.
func (args *TransactionArgs) SetDefaults(b Backend, gas uint64) error {
	if err := args.validate(); err != nil {
		return err
	}
	head, err := b.Head()
	if err != nil {
		return err
	}
	if err := args.setFeeDefaults(b.ChainConfig(), head); err != nil {
		return err
	}
	if args.Value == nil {
		args.Value = new(hexutil.Big)
	}
	if args.Nonce == nil {
		nonce, err := b.GetQueuedNonce(args.from())
		if err != nil {
			return err
		}
		args.Nonce = (*hexutil.Uint64)(&nonce)
	}
	if args.Gas == nil {
		args.Gas = (*hexutil.Uint64)(&gas)
	}
	id := (*hexutil.Big)(b.ChainConfig().ChainID)
	if args.ChainID == nil {
		args.ChainID = id
	} else if args.ChainID.ToInt().Cmp(id.ToInt()) != 0 {
		return fmt.Errorf("chainId does not match node's (have=%v, want=%v)", args.ChainID, id)
	}
	return nil
}

// setFeeDefaults fills in the pricing fields. After london, transactions
// default to 1559 unless gasPrice is set.
func (args *TransactionArgs) setFeeDefaults(config *params.ChainConfig, head *types.Block) error {
	baseFee := head.BaseFee()
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	if config.IsLondon(head.Number()) && args.GasPrice == nil {
		if args.MaxPriorityFeePerGas == nil {
			args.MaxPriorityFeePerGas = (*hexutil.Big)(new(big.Int).Set(DefaultGasTipCap))
		}
		if args.MaxFeePerGas == nil {
			gasFeeCap := new(big.Int).Add(
				(*big.Int)(args.MaxPriorityFeePerGas),
				new(big.Int).Mul(baseFee, big.NewInt(2)),
			)
			args.MaxFeePerGas = (*hexutil.Big)(gasFeeCap)
		}
		if args.MaxFeePerGas.ToInt().Cmp(args.MaxPriorityFeePerGas.ToInt()) < 0 {
			return fmt.Errorf("maxFeePerGas (%v) < maxPriorityFeePerGas (%v)", args.MaxFeePerGas, args.MaxPriorityFeePerGas)
		}
		return nil
	}
	if args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil {
		return errLondonInactive
	}
	if args.GasPrice == nil {
		price := new(big.Int).Set(DefaultGasTipCap)
		if config.IsLondon(head.Number()) {
			price.Add(price, baseFee)
		}
		args.GasPrice = (*hexutil.Big)(price)
	}
	return nil
}

// ToCallTransaction converts the arguments of a call or estimate into an
// unsigned transaction from the given sender. Missing fields take zero
// values and the gas limit is capped at gasCap, if non-zero.
func (args *TransactionArgs) ToCallTransaction(gasCap uint64) (*types.Transaction, error) {
	if err := args.validate(); err != nil {
		return nil, err
	}
	gas := gasCap
	if gas == 0 {
		gas = uint64(math.MaxUint64 / 2)
	}
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	if gasCap != 0 && gasCap < gas {
		log.Warn("Caller gas above allowance, capping", "requested", gas, "cap", gasCap)
		gas = gasCap
	}
	call := *args
	call.Gas = (*hexutil.Uint64)(&gas)
	if call.Nonce == nil {
		call.Nonce = new(hexutil.Uint64)
	}
	if call.Value == nil {
		call.Value = new(hexutil.Big)
	}
	if call.GasPrice == nil && call.MaxFeePerGas == nil {
		call.GasPrice = new(hexutil.Big)
	}
	if call.MaxFeePerGas != nil && call.MaxPriorityFeePerGas == nil {
		call.MaxPriorityFeePerGas = new(hexutil.Big)
	}
	return types.NewFakeTransaction(call.toTransaction(), args.from()), nil
}

// WithGas returns a copy of the call arguments with the given gas limit.
func (args *TransactionArgs) WithGas(gas uint64) *TransactionArgs {
	call := *args
	call.Gas = (*hexutil.Uint64)(&gas)
	return &call
}

// ToTransaction converts the arguments to an unsigned transaction.
// This assumes that SetDefaults has been called.
func (args *TransactionArgs) ToTransaction() *gethtypes.Transaction {
	return args.toTransaction()
}
