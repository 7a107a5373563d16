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

package sim

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/probeum/devchain/accounts"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/core/gasestimator"
	"github.com/probeum/devchain/core/types"
	"github.com/probeum/devchain/internal/ethapi"
	"github.com/probeum/devchain/tracers"
)

// SendTransaction fills in the missing fields of args and queues the
// transaction from args.From. Derived accounts sign it; other senders must
// be unlocked or impersonated and send it unsigned. The hash is returned
// even when the transaction failed in an instantly mined block.
func (s *Simulator) SendTransaction(args ethapi.TransactionArgs) (common.Hash, error) {
	if err := args.ValidateSend(); err != nil {
		return common.Hash{}, &core.RejectionError{Err: err}
	}
	from := *args.From
	if !s.accounts.CanSend(from) {
		return common.Hash{}, &core.RejectionError{Err: core.ErrUnknownSender}
	}
	var hash common.Hash
	err := s.queue.do(func() error {
		if err := args.SetDefaults(s.chain, s.config.Miner.TransactionGas); err != nil {
			return &core.RejectionError{Err: err}
		}
		tx, err := s.wrap(from, args.ToTransaction())
		if err != nil {
			return err
		}
		hash = tx.Hash()
		return s.submit(tx)
	})
	return hash, err
}

// wrap signs tx if the key of from is available and unlocked, or passes it
// on unsigned otherwise.
func (s *Simulator) wrap(from common.Address, tx *gethtypes.Transaction) (*types.Transaction, error) {
	signed, err := s.accounts.SignTx(from, tx, s.chain.Signer())
	switch {
	case err == nil:
		return types.NewSignedTransaction(signed, s.chain.Signer())
	case errors.Is(err, accounts.ErrUnknownAccount), errors.Is(err, accounts.ErrLocked):
		return types.NewFakeTransaction(tx, from), nil
	default:
		return nil, err
	}
}

// SendRawTransaction queues a signed transaction in its binary encoding.
func (s *Simulator) SendRawTransaction(raw []byte) (common.Hash, error) {
	inner := new(gethtypes.Transaction)
	if err := inner.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, &core.RejectionError{Err: err}
	}
	var hash common.Hash
	err := s.queue.do(func() error {
		tx, err := types.NewSignedTransaction(inner, s.chain.Signer())
		if err != nil {
			return &core.RejectionError{Err: err}
		}
		hash = tx.Hash()
		return s.submit(tx)
	})
	return hash, err
}

// submit queues tx and mines it right away if blocks are mined per
// transaction. It must run on the queue.
func (s *Simulator) submit(tx *types.Transaction) error {
	if err := s.chain.QueueTransaction(tx); err != nil {
		return err
	}
	res, err := s.mineInstant()
	if err != nil {
		return err
	}
	if res != nil && res.Err != nil && s.config.VMErrorsOnRPCResponse {
		return res.Err.Err()
	}
	return nil
}

// Call executes a message call at the given block without creating a
// transaction. A failed execution returns its revert data, or the runtime
// error if VM errors are reported.
func (s *Simulator) Call(args ethapi.TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash) ([]byte, error) {
	tx, err := args.ToCallTransaction(s.chain.Config().CallGasLimit)
	if err != nil {
		return nil, err
	}
	var ret []byte
	err = s.queue.do(func() error {
		res, err := s.chain.ProcessCall(tx, blockNrOrHash, nil)
		if err != nil {
			return err
		}
		if res.Failed() && s.config.VMErrorsOnRPCResponse {
			return res.Failure.Err()
		}
		ret = res.ReturnData
		return nil
	})
	return ret, err
}

// EstimateGas returns the lowest gas limit the transaction succeeds with at
// the given block. The limit in args, or the call gas limit, caps it.
func (s *Simulator) EstimateGas(args ethapi.TransactionArgs, blockNrOrHash rpc.BlockNumberOrHash) (uint64, error) {
	allowance := s.chain.Config().CallGasLimit
	if args.Gas != nil && uint64(*args.Gas) < allowance {
		allowance = uint64(*args.Gas)
	}
	if _, err := args.ToCallTransaction(allowance); err != nil {
		return 0, err
	}
	newTx := func(gas uint64) *types.Transaction {
		tx, _ := args.WithGas(gas).ToCallTransaction(allowance)
		return tx
	}
	var gas uint64
	err := s.queue.do(func() error {
		res, err := gasestimator.Estimate(s.chain, blockNrOrHash, allowance, newTx)
		if err != nil {
			return err
		}
		if err := res.Err(allowance); err != nil {
			return err
		}
		gas = res.Gas
		return nil
	})
	return gas, err
}

// TraceTransaction replays a mined transaction and logs every opcode it
// executed.
func (s *Simulator) TraceTransaction(hash common.Hash, cfg *tracers.Config) (*tracers.ExecutionResult, error) {
	if cfg == nil {
		cfg = new(tracers.Config)
	}
	var res *tracers.ExecutionResult
	err := s.queue.do(func() error {
		var err error
		res, err = tracers.TraceTransaction(s.chain, hash, cfg)
		return err
	})
	return res, err
}

// Sign signs text with the key of a derived account, as eth_sign does.
func (s *Simulator) Sign(addr common.Address, text []byte) ([]byte, error) {
	return s.accounts.SignText(addr, text)
}
