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

package gasestimator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
)

// Category classifies a recorded opcode by its effect on call frames.
type Category uint8

const (
	Plain       Category = iota
	CallBegin            // CALL, CALLCODE, DELEGATECALL, STATICCALL
	CreateBegin          // CREATE, CREATE2
	FrameEnd             // STOP, RETURN, REVERT, SELFDESTRUCT
)

func (c Category) String() string {
	switch c {
	case Plain:
		return "plain"
	case CallBegin:
		return "call-begin"
	case CreateBegin:
		return "create-begin"
	case FrameEnd:
		return "frame-end"
	}
	return "unknown"
}

func categorize(op vm.OpCode) Category {
	switch op {
	case vm.CALL, vm.CALLCODE, vm.DELEGATECALL, vm.STATICCALL:
		return CallBegin
	case vm.CREATE, vm.CREATE2:
		return CreateBegin
	case vm.STOP, vm.RETURN, vm.REVERT, vm.SELFDESTRUCT:
		return FrameEnd
	}
	return Plain
}

type step struct {
	op       vm.OpCode
	category Category
	gas      uint64 // gas left before the opcode
	cost     uint64
	child    *frame // frame entered by a call or create
}

type frame struct {
	typ     vm.OpCode
	gas     uint64 // gas available on entry
	used    uint64
	stipend uint64
	steps   []*step
}

// need returns the least gas the frame must be entered with to complete.
// The requirement of a child frame is carried into its caller with the 1/64
// the caller keeps back when forwarding gas.
func (f *frame) need() uint64 {
	var peak uint64
	for _, s := range f.steps {
		spent := sub(f.gas, s.gas)

		var req uint64
		switch {
		case s.child != nil:
			n := sub(s.child.need(), s.child.stipend)
			overhead := s.cost
			if s.category == CallBegin {
				// The cost of a call includes the gas it forwards.
				overhead = sub(s.cost, sub(s.child.gas, s.child.stipend))
			}
			req = overhead + n + n/63
		case s.op == vm.SSTORE:
			req = max(s.cost, params.SstoreSentryGasEIP2200+1)
		default:
			req = s.cost
		}
		peak = max(peak, spent+req)
	}
	return max(peak, f.used)
}

func sub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// Recorder builds the call frame tree of one execution.
type Recorder struct {
	root  *frame
	stack []*frame

	steps    int
	lowest   uint64
	lowestAt int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{lowestAt: -1}
}

// Hooks returns the tracing hooks feeding the recorder.
func (r *Recorder) Hooks() *tracing.Hooks {
	return &tracing.Hooks{
		OnEnter:  r.onEnter,
		OnExit:   r.onExit,
		OnOpcode: r.onOpcode,
	}
}

func (r *Recorder) onEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	f := &frame{typ: vm.OpCode(typ), gas: gas}
	if (f.typ == vm.CALL || f.typ == vm.CALLCODE) && value != nil && value.Sign() > 0 {
		f.stipend = params.CallStipend
	}
	if len(r.stack) == 0 {
		r.root = f
	} else if parent := r.stack[len(r.stack)-1]; len(parent.steps) > 0 {
		parent.steps[len(parent.steps)-1].child = f
	}
	r.stack = append(r.stack, f)
}

func (r *Recorder) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if len(r.stack) == 0 {
		return
	}
	f := r.stack[len(r.stack)-1]
	f.used = gasUsed
	r.stack = r.stack[:len(r.stack)-1]
}

func (r *Recorder) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	if len(r.stack) == 0 {
		return
	}
	s := &step{op: vm.OpCode(op), category: categorize(vm.OpCode(op)), gas: gas, cost: cost}
	f := r.stack[len(r.stack)-1]
	f.steps = append(f.steps, s)

	if left := sub(gas, cost); r.lowestAt < 0 || left <= r.lowest {
		r.lowest, r.lowestAt = left, r.steps
	}
	r.steps++
}

// Steps returns the number of opcodes recorded.
func (r *Recorder) Steps() int { return r.steps }

// lowestAtEnd reports whether gas was lowest at the final opcode, in which
// case no forwarding rule can have cut the execution short.
func (r *Recorder) lowestAtEnd() bool {
	return r.steps > 0 && r.lowestAt == r.steps-1
}
