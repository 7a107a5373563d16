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

// snapshot records the chain head and clock offset at the time it was
// taken.
type snapshot struct {
	id     int
	number uint64
	offset int64
}

// snapshots is the stack of live snapshots. It is only touched from queue
// actions.
type snapshots struct {
	list []snapshot
	next int
}

// Snapshot saves the current chain and returns its id. Ids start at one and
// are never reused.
func (s *Simulator) Snapshot() (int, error) {
	var id int
	err := s.queue.do(func() error {
		head, err := s.chain.Head()
		if err != nil {
			return err
		}
		s.snaps.next++
		id = s.snaps.next
		s.snaps.list = append(s.snaps.list, snapshot{
			id:     id,
			number: head.NumberU64(),
			offset: s.chain.TimeOffset(),
		})
		s.log.Debug("Took snapshot", "id", id, "number", head.NumberU64())
		return nil
	})
	return id, err
}

// Revert restores the chain saved by the snapshot with the given id. The
// snapshot and every later one are consumed. Reverting an unknown id
// reports false and changes nothing.
func (s *Simulator) Revert(id int) (bool, error) {
	var reverted bool
	err := s.queue.do(func() error {
		index := -1
		for i, snap := range s.snaps.list {
			if snap.id == id {
				index = i
				break
			}
		}
		if index < 0 {
			return nil
		}
		snap := s.snaps.list[index]
		s.snaps.list = s.snaps.list[:index]

		popped, err := s.popTo(snap.number)
		if err != nil {
			return err
		}
		s.chain.SetTimeOffset(snap.offset)
		dropped := s.chain.ClearPending()
		s.log.Debug("Reverted snapshot", "id", id, "number", snap.number, "blocks", popped, "dropped", dropped)
		reverted = true
		return nil
	})
	return reverted, err
}

// popTo removes blocks until the head has the given number.
func (s *Simulator) popTo(number uint64) (int, error) {
	var popped int
	for {
		head, err := s.chain.Head()
		if err != nil {
			return popped, err
		}
		if head.NumberU64() <= number {
			return popped, nil
		}
		if _, err := s.chain.PopBlock(); err != nil {
			return popped, err
		}
		popped++
	}
}
