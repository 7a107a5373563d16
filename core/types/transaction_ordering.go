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

package types

import (
	"container/heap"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// txWithSeq is the head transaction of one sender, tagged with the position at
// which that sender first appeared in the pending list.
type txWithSeq struct {
	tx  *Transaction
	seq int
}

// txByPrice implements heap.Interface, ordering by descending gas price and
// then by ascending sender sequence.
type txByPrice []*txWithSeq

func (s txByPrice) Len() int { return len(s) }
func (s txByPrice) Less(i, j int) bool {
	switch s[i].tx.GasPrice().Cmp(s[j].tx.GasPrice()) {
	case 1:
		return true
	case -1:
		return false
	}
	return s[i].seq < s[j].seq
}
func (s txByPrice) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *txByPrice) Push(x interface{}) {
	*s = append(*s, x.(*txWithSeq))
}

func (s *txByPrice) Pop() interface{} {
	old := *s
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*s = old[0 : n-1]
	return x
}

// TransactionsByPriceAndNonce represents a set of transactions that can return
// transactions in a profit-maximizing sorted order, while supporting removing
// entire batches of transactions for non-executable accounts.
type TransactionsByPriceAndNonce struct {
	txs   map[common.Address][]*Transaction // Per account nonce-sorted list of transactions
	seqs  map[common.Address]int            // First appearance of every account
	heads txByPrice                         // Next transaction for each unique account (price heap)
}

// NewTransactionsByPriceAndNonce creates a transaction set that can retrieve
// price sorted transactions in a nonce-honouring way.
//
// Note, the input list is not modified; per-sender nonce contiguity is the
// caller's responsibility.
func NewTransactionsByPriceAndNonce(pending []*Transaction) *TransactionsByPriceAndNonce {
	var (
		txs  = make(map[common.Address][]*Transaction)
		seqs = make(map[common.Address]int)
	)
	for _, tx := range pending {
		from := tx.From()
		if _, ok := seqs[from]; !ok {
			seqs[from] = len(seqs)
		}
		txs[from] = append(txs[from], tx)
	}
	heads := make(txByPrice, 0, len(txs))
	for from, list := range txs {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Nonce() < list[j].Nonce() })
		heads = append(heads, &txWithSeq{tx: list[0], seq: seqs[from]})
		txs[from] = list[1:]
	}
	heap.Init(&heads)

	return &TransactionsByPriceAndNonce{
		txs:   txs,
		seqs:  seqs,
		heads: heads,
	}
}

// Peek returns the next transaction by price.
func (t *TransactionsByPriceAndNonce) Peek() *Transaction {
	if len(t.heads) == 0 {
		return nil
	}
	return t.heads[0].tx
}

// Shift replaces the current best head with the next one from the same account.
func (t *TransactionsByPriceAndNonce) Shift() {
	from := t.heads[0].tx.From()
	if txs, ok := t.txs[from]; ok && len(txs) > 0 {
		t.heads[0], t.txs[from] = &txWithSeq{tx: txs[0], seq: t.seqs[from]}, txs[1:]
		heap.Fix(&t.heads, 0)
		return
	}
	heap.Pop(&t.heads)
}

// Pop removes the best transaction, *not* replacing it with the next one from
// the same account. This should be used when a transaction cannot be executed
// and hence all subsequent ones should be discarded from the same account.
func (t *TransactionsByPriceAndNonce) Pop() {
	heap.Pop(&t.heads)
}

// SortByPriceAndNonce orders pending transactions greedily by gas price while
// keeping every sender's own transactions in nonce order.
func SortByPriceAndNonce(pending []*Transaction) []*Transaction {
	set := NewTransactionsByPriceAndNonce(pending)
	ordered := make([]*Transaction, 0, len(pending))
	for tx := set.Peek(); tx != nil; tx = set.Peek() {
		ordered = append(ordered, tx)
		set.Shift()
	}
	return ordered
}
