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
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	errBothFeeStyles    = errors.New("both gasPrice and (maxFeePerGas or maxPriorityFeePerGas) specified")
	errDataInputClash   = errors.New(`both "data" and "input" are set and not equal. Please use "input" to pass transaction call data`)
	errLondonInactive   = errors.New("maxFeePerGas or maxPriorityFeePerGas specified but london is not active yet")
	errNegativeValue    = errors.New("negative value")
	errEmptyCreation    = errors.New(`contract creation without any data provided`)
	errNegativeGasPrice = errors.New("negative gas price")
)

// validate rejects argument combinations no transaction can be built from.
func (args *TransactionArgs) validate() error {
	if args.GasPrice != nil && (args.MaxFeePerGas != nil || args.MaxPriorityFeePerGas != nil) {
		return errBothFeeStyles
	}
	if args.Data != nil && args.Input != nil && !bytes.Equal(*args.Data, *args.Input) {
		return errDataInputClash
	}
	if args.Value != nil && args.Value.ToInt().Sign() < 0 {
		return errNegativeValue
	}
	for _, price := range []*hexutil.Big{args.GasPrice, args.MaxFeePerGas, args.MaxPriorityFeePerGas} {
		if price != nil && price.ToInt().Sign() < 0 {
			return errNegativeGasPrice
		}
	}
	return nil
}

// ValidateSend additionally checks the arguments of a transaction that is
// going to be mined.
func (args *TransactionArgs) ValidateSend() error {
	if args.From == nil {
		return errors.New("from not specified")
	}
	if args.To == nil && len(args.data()) == 0 {
		return errEmptyCreation
	}
	return args.validate()
}
