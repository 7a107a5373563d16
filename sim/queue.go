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
	"sync"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/probeum/devchain/core"
)

// ErrClosed is returned for actions submitted after the simulator was
// closed.
var ErrClosed = core.ErrClosed

var (
	queueActionMeter = metrics.NewRegisteredMeter("sim/queue/actions", nil)
	queueRunTimer    = metrics.NewRegisteredTimer("sim/queue/run", nil)
)

// action is a unit of work run by the queue.
type action struct {
	fn   func() error
	err  error
	done chan struct{}
}

// queue runs actions one at a time, in the order they were accepted. Actions
// must not submit into the queue they run on.
type queue struct {
	actions []*action
	closed  bool
	lock    sync.Mutex

	wake chan struct{}
	quit chan struct{}
	term chan struct{}
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		term: make(chan struct{}),
	}
	go q.loop()
	return q
}

// do runs fn on the queue and waits for it to finish.
func (q *queue) do(fn func() error) error {
	a := &action{fn: fn, done: make(chan struct{})}

	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return ErrClosed
	}
	q.actions = append(q.actions, a)
	q.lock.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-a.done
	return a.err
}

// next pops the oldest accepted action, or nil.
func (q *queue) next() *action {
	q.lock.Lock()
	defer q.lock.Unlock()

	if len(q.actions) == 0 {
		return nil
	}
	a := q.actions[0]
	q.actions[0] = nil
	q.actions = q.actions[1:]
	return a
}

func (q *queue) loop() {
	defer close(q.term)

	for {
		for a := q.next(); a != nil; a = q.next() {
			q.run(a)
		}
		select {
		case <-q.wake:
		case <-q.quit:
			// Everything accepted before closing still runs.
			for a := q.next(); a != nil; a = q.next() {
				q.run(a)
			}
			return
		}
	}
}

func (q *queue) run(a *action) {
	defer close(a.done)
	queueActionMeter.Mark(1)
	queueRunTimer.Time(func() { a.err = a.fn() })
}

// close rejects further actions and waits for the accepted ones to finish.
func (q *queue) close() {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return
	}
	q.closed = true
	q.lock.Unlock()

	close(q.quit)
	<-q.term
}
