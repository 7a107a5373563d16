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

package tracers

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	gethcore "github.com/ethereum/go-ethereum/core"
	gethstate "github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/log"
)

// Replayer re-executes mined transactions.
type Replayer interface {
	ReplayTransaction(hash common.Hash, hooks func(*gethstate.StateDB) *tracing.Hooks) (*gethcore.ExecutionResult, error)
}

// ExecutionResult is the trace of a replayed transaction.
type ExecutionResult struct {
	Gas         uint64      `json:"gas"`
	Failed      bool        `json:"failed"`
	ReturnValue string      `json:"returnValue"`
	StructLogs  []StructLog `json:"structLogs"`
}

// TraceTransaction replays the block of a mined transaction up to and
// including it, logging the opcodes of that transaction only. Failures
// inside the VM are part of the trace; only a failed replay is an error.
func TraceTransaction(chain Replayer, hash common.Hash, cfg *Config) (*ExecutionResult, error) {
	var logger *StructLogger
	res, err := chain.ReplayTransaction(hash, func(statedb *gethstate.StateDB) *tracing.Hooks {
		logger = NewStructLogger(cfg, statedb)
		return logger.Hooks()
	})
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		log.Debug("Traced transaction failed", "hash", hash, "err", res.Err)
	}
	result := &ExecutionResult{
		Gas:         res.UsedGas,
		Failed:      res.Failed(),
		ReturnValue: hex.EncodeToString(res.Return()),
		StructLogs:  []StructLog{},
	}
	if res.Failed() {
		result.ReturnValue = hex.EncodeToString(res.Revert())
	}
	if logger != nil {
		result.StructLogs = logger.StructLogs()
	}
	return result, nil
}
