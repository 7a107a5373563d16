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

// Package tracers records structured opcode logs of replayed transactions.
package tracers

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// Config selects the parts of each step that are captured.
type Config struct {
	DisableStorage bool `json:"disableStorage"`
	DisableMemory  bool `json:"disableMemory"`
	DisableStack   bool `json:"disableStack"`
}

// StructLog is one executed opcode.
type StructLog struct {
	Depth   int               `json:"depth"`
	Error   string            `json:"error,omitempty"`
	Gas     uint64            `json:"gas"`
	GasCost uint64            `json:"gasCost"`
	Memory  []string          `json:"memory"`
	Op      string            `json:"op"`
	Pc      uint64            `json:"pc"`
	Stack   []string          `json:"stack"`
	Storage map[string]string `json:"storage"`
}

// StateReader reads storage while a transaction executes.
type StateReader interface {
	GetState(addr common.Address, key common.Hash) common.Hash
}

type pendingStore struct {
	depth      int
	key, value common.Hash
}

// StructLogger captures a StructLog for every opcode of the execution it is
// attached to. Storage is tracked per call depth: SLOAD results are visible
// in the same step, SSTORE writes from the following one.
type StructLogger struct {
	cfg   Config
	state StateReader

	logs    []StructLog
	storage map[int]map[common.Hash]common.Hash
	pending *pendingStore
}

// NewStructLogger creates a logger reading loaded storage from state.
func NewStructLogger(cfg *Config, state StateReader) *StructLogger {
	l := &StructLogger{
		state:   state,
		storage: make(map[int]map[common.Hash]common.Hash),
	}
	if cfg != nil {
		l.cfg = *cfg
	}
	return l
}

// Hooks returns the tracing hooks of the logger.
func (l *StructLogger) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  l.onEnter,
		OnOpcode: l.onOpcode,
		OnFault:  l.onFault,
	}
}

// StructLogs returns the captured steps.
func (l *StructLogger) StructLogs() []StructLog { return l.logs }

func (l *StructLogger) onEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	// Opcodes of the entered frame run at depth+1.
	delete(l.storage, depth+1)
}

func (l *StructLogger) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if n := len(l.logs); n > 0 {
		prev := &l.logs[n-1]
		if prev.Gas >= gas {
			prev.GasCost = prev.Gas - gas
		} else {
			prev.GasCost = 0
		}
	}
	if p := l.pending; p != nil {
		l.slots(p.depth)[p.key] = p.value
		l.pending = nil
	}
	opcode := vm.OpCode(op)
	entry := StructLog{
		Depth:   depth,
		Gas:     gas,
		GasCost: cost,
		Op:      opcode.String(),
		Pc:      pc,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	stack := scope.StackData()
	if !l.cfg.DisableStack {
		entry.Stack = make([]string, len(stack))
		for i := range stack {
			word := stack[i].Bytes32()
			entry.Stack[i] = hex.EncodeToString(word[:])
		}
	}
	if !l.cfg.DisableMemory {
		mem := scope.MemoryData()
		entry.Memory = make([]string, 0, len(mem)/32)
		for i := 0; i+32 <= len(mem); i += 32 {
			entry.Memory = append(entry.Memory, hex.EncodeToString(mem[i:i+32]))
		}
	}
	if !l.cfg.DisableStorage {
		switch {
		case opcode == vm.SLOAD && len(stack) >= 1:
			key := common.Hash(stack[len(stack)-1].Bytes32())
			l.slots(depth)[key] = l.state.GetState(scope.Address(), key)
		case opcode == vm.SSTORE && len(stack) >= 2 && err == nil:
			l.pending = &pendingStore{
				depth: depth,
				key:   common.Hash(stack[len(stack)-1].Bytes32()),
				value: common.Hash(stack[len(stack)-2].Bytes32()),
			}
		}
		entry.Storage = make(map[string]string, len(l.storage[depth]))
		for k, v := range l.storage[depth] {
			entry.Storage[hex.EncodeToString(k[:])] = hex.EncodeToString(v[:])
		}
	}
	l.logs = append(l.logs, entry)
}

// onFault drops the write of a faulted SSTORE and records the error on the
// faulted step.
func (l *StructLogger) onFault(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, depth int, err error) {
	if p := l.pending; p != nil && p.depth == depth {
		l.pending = nil
	}
	if n := len(l.logs); n > 0 && err != nil && l.logs[n-1].Error == "" {
		l.logs[n-1].Error = err.Error()
	}
}

func (l *StructLogger) slots(depth int) map[common.Hash]common.Hash {
	m, ok := l.storage[depth]
	if !ok {
		m = make(map[common.Hash]common.Hash)
		l.storage[depth] = m
	}
	return m
}
