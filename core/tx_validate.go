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
	"math"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/holiman/uint256"
	"github.com/probeum/devchain/core/types"
)

var (
	// ErrNegativeValue is a sanity error to ensure no one is able to specify a
	// transaction with a negative value.
	ErrNegativeValue = errors.New("negative value")

	// ErrGasUintOverflow is returned when calculating gas usage.
	ErrGasUintOverflow = errors.New("gas uint64 overflow")

	// ErrIntrinsicGas is returned if the transaction is specified to use less
	// gas than required to start the invocation.
	ErrIntrinsicGas = errors.New("intrinsic gas too low")

	// ErrInsufficientFunds is returned if the total cost of executing a
	// transaction is higher than the balance of the user's account.
	ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

	// ErrTipAboveFeeCap is a sanity error to ensure no one is able to specify a
	// transaction with a tip higher than the total fee cap.
	ErrTipAboveFeeCap = errors.New("max priority fee per gas higher than max fee per gas")

	// ErrTxTypeNotSupported is returned if a transaction is not supported in the
	// current network configuration.
	ErrTxTypeNotSupported = errors.New("transaction type not supported")
)

// IntrinsicGas computes the 'intrinsic gas' for a message with the given data.
func IntrinsicGas(data []byte, accessList gethtypes.AccessList, isContractCreation, isEIP3860 bool) (uint64, error) {
	// Set the starting gas for the raw transaction
	var gas uint64
	if isContractCreation {
		gas = params.TxGasContractCreation
	} else {
		gas = params.TxGas
	}
	dataLen := uint64(len(data))
	// Bump the required gas by the amount of transactional data
	if dataLen > 0 {
		// Zero and non-zero bytes are priced differently
		var nz uint64
		for _, byt := range data {
			if byt != 0 {
				nz++
			}
		}
		// Make sure we don't exceed uint64 for all data combinations
		if (math.MaxUint64-gas)/params.TxDataNonZeroGasEIP2028 < nz {
			return 0, ErrGasUintOverflow
		}
		gas += nz * params.TxDataNonZeroGasEIP2028

		z := dataLen - nz
		if (math.MaxUint64-gas)/params.TxDataZeroGas < z {
			return 0, ErrGasUintOverflow
		}
		gas += z * params.TxDataZeroGas

		if isContractCreation && isEIP3860 {
			words := (dataLen + 31) / 32
			if (math.MaxUint64-gas)/params.InitCodeWordGas < words {
				return 0, ErrGasUintOverflow
			}
			gas += words * params.InitCodeWordGas
		}
	}
	if accessList != nil {
		gas += uint64(len(accessList)) * params.TxAccessListAddressGas
		gas += uint64(accessList.StorageKeys()) * params.TxAccessListStorageKeyGas
	}
	return gas, nil
}

// validateTx checks a transaction against the latest state before it is
// queued. queuedNonce is the nonce the sender's next transaction must carry.
func (bc *BlockChain) validateTx(tx *types.Transaction, statedb *gethstate.StateDB, queuedNonce uint64) error {
	if err := bc.validateGas(tx); err != nil {
		return reject(err)
	}
	if tx.Nonce() != queuedNonce {
		return reject(&NonceError{Expected: queuedNonce, Given: tx.Nonce()})
	}
	if err := bc.validateSender(tx, statedb); err != nil {
		return reject(err)
	}
	// Transactor should have enough funds to cover the costs
	// cost == V + GP * GL
	balance := statedb.GetBalance(tx.From())
	cost, overflow := uint256.FromBig(tx.Cost())
	if overflow || balance.Cmp(cost) < 0 {
		return reject(fmt.Errorf("%w: address %v have %v want %v", ErrInsufficientFunds, tx.From(), balance, tx.Cost()))
	}
	return nil
}

func (bc *BlockChain) validateGas(tx *types.Transaction) error {
	switch tx.Type() {
	case gethtypes.LegacyTxType, gethtypes.AccessListTxType, gethtypes.DynamicFeeTxType:
	default:
		return ErrTxTypeNotSupported
	}
	// Transactions can't be negative. This may never happen using RLP decoded
	// transactions but may occur if you create a transaction using the RPC.
	if tx.Value().Sign() < 0 {
		return ErrNegativeValue
	}
	// Ensure the transaction doesn't exceed the current block limit gas.
	if bc.config.BlockGasLimit < tx.Gas() {
		return ErrExceedsBlockGasLimit
	}
	// Ensure gasFeeCap is greater than or equal to gasTipCap.
	if tx.GasFeeCap().Cmp(tx.GasTipCap()) < 0 {
		return ErrTipAboveFeeCap
	}
	if baseFee := new(big.Int).SetUint64(bc.config.BaseFee); tx.GasFeeCap().Cmp(baseFee) < 0 {
		return fmt.Errorf("%w: have %v, want %v", gethcore.ErrFeeCapTooLow, tx.GasFeeCap(), baseFee)
	}
	// Ensure the transaction has more gas than the basic tx fee.
	intrGas, err := IntrinsicGas(tx.Data(), tx.AccessList(), tx.To() == nil, bc.chainConfig.IsShanghai(new(big.Int), 0))
	if err != nil {
		return err
	}
	if tx.Gas() < intrGas {
		return fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGas, tx.Gas(), intrGas)
	}
	return nil
}

func (bc *BlockChain) validateSender(tx *types.Transaction, statedb *gethstate.StateDB) error {
	if err := tx.VerifySender(bc.signer); err != nil {
		return err
	}
	// An impersonated sender is still subject to the EOA rule of the state
	// transition.
	if tx.IsFake() {
		code := statedb.GetCode(tx.From())
		if _, delegated := gethtypes.ParseDelegation(code); len(code) > 0 && !delegated {
			return fmt.Errorf("%w: address %v", gethcore.ErrSenderNoEOA, tx.From())
		}
	}
	return nil
}
