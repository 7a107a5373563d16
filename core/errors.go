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

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrBlockNotFound is returned when a block cannot be resolved.
	ErrBlockNotFound = errors.New("block not found")

	// ErrTxNotFound is returned when a transaction cannot be resolved.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrClosed is returned for operations on a closed chain.
	ErrClosed = errors.New("blockchain is closed")

	// ErrNoPending is returned when a block is requested from an empty queue.
	ErrNoPending = errors.New("no pending transactions")

	// ErrGenesisPop is returned when reverting would remove the first block.
	ErrGenesisPop = errors.New("cannot pop the genesis block")

	// ErrExceedsBlockGasLimit is returned if a transaction asks for more gas
	// than a block can hold.
	ErrExceedsBlockGasLimit = errors.New("Exceeds block gas limit")

	// ErrUnknownSender is returned if the sender is neither unlocked nor
	// impersonated.
	ErrUnknownSender = errors.New("sender account not recognized")
)

// RejectionError is returned for transactions that never enter the queue.
type RejectionError struct {
	Err error
}

func (e *RejectionError) Error() string { return e.Err.Error() }
func (e *RejectionError) Unwrap() error { return e.Err }

func reject(err error) error {
	return &RejectionError{Err: err}
}

// NonceError is the rejection reason of a transaction whose nonce does not
// continue the sender's queue.
type NonceError struct {
	Expected uint64
	Given    uint64
}

func (e *NonceError) Error() string {
	return fmt.Sprintf("the tx doesn't have the correct nonce. account has nonce of: %d tx has nonce of: %d", e.Expected, e.Given)
}

// FatalError aborts block processing. The chain does not advance and the
// transactions of the block are dropped.
type FatalError struct {
	TxHash common.Hash
	Err    error
}

func (e *FatalError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return e.Err.Error()
	}
	return fmt.Sprintf("transaction %x: %v", e.TxHash, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// StoreConsistencyError reports persisted data that no longer matches the key
// it is stored under.
type StoreConsistencyError struct {
	Key  common.Hash
	Have common.Hash
}

func (e *StoreConsistencyError) Error() string {
	return fmt.Sprintf("database corrupted: entry %x decodes to %x", e.Key, e.Have)
}

// InitializationError is returned when the chain cannot be opened.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize blockchain: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }
