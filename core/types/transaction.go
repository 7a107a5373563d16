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
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// TxKind tells how the sender of a transaction was established.
type TxKind uint8

const (
	// SignedTx derives its sender from the signature.
	SignedTx TxKind = iota

	// FakeTx carries a caller supplied sender and no valid signature. It is
	// used for simulated calls, estimates and impersonated accounts.
	FakeTx

	// RemoteTx was fetched from a forked chain; the sender is known and the
	// hash is the one the remote chain reported.
	RemoteTx
)

func (k TxKind) String() string {
	switch k {
	case SignedTx:
		return "signed"
	case FakeTx:
		return "fake"
	case RemoteTx:
		return "remote"
	default:
		return fmt.Sprintf("TxKind(%d)", uint8(k))
	}
}

var (
	ErrInvalidTxKind = errors.New("invalid transaction kind")
	errNoSender      = errors.New("fake transaction without sender")
)

// Transaction is a go-ethereum transaction together with the address that is
// considered its sender.
type Transaction struct {
	inner *gethtypes.Transaction
	from  common.Address
	kind  TxKind

	hash atomic.Pointer[common.Hash]
}

// NewSignedTransaction recovers the sender of tx with signer.
func NewSignedTransaction(tx *gethtypes.Transaction, signer gethtypes.Signer) (*Transaction, error) {
	from, err := gethtypes.Sender(signer, tx)
	if err != nil {
		return nil, err
	}
	return &Transaction{inner: tx, from: from, kind: SignedTx}, nil
}

// NewFakeTransaction wraps an unsigned transaction sent on behalf of from.
func NewFakeTransaction(tx *gethtypes.Transaction, from common.Address) *Transaction {
	return &Transaction{inner: tx, from: from, kind: FakeTx}
}

// NewRemoteTransaction wraps a transaction fetched from a forked chain whose
// sender was reported by that chain.
func NewRemoteTransaction(tx *gethtypes.Transaction, from common.Address) *Transaction {
	return &Transaction{inner: tx, from: from, kind: RemoteTx}
}

// Inner returns the wrapped go-ethereum transaction.
func (tx *Transaction) Inner() *gethtypes.Transaction { return tx.inner }

func (tx *Transaction) From() common.Address { return tx.from }
func (tx *Transaction) Kind() TxKind         { return tx.kind }
func (tx *Transaction) IsFake() bool         { return tx.kind == FakeTx }
func (tx *Transaction) Type() uint8          { return tx.inner.Type() }
func (tx *Transaction) Nonce() uint64        { return tx.inner.Nonce() }
func (tx *Transaction) Gas() uint64          { return tx.inner.Gas() }
func (tx *Transaction) GasPrice() *big.Int   { return tx.inner.GasPrice() }
func (tx *Transaction) GasFeeCap() *big.Int  { return tx.inner.GasFeeCap() }
func (tx *Transaction) GasTipCap() *big.Int  { return tx.inner.GasTipCap() }
func (tx *Transaction) Value() *big.Int      { return tx.inner.Value() }
func (tx *Transaction) Data() []byte         { return tx.inner.Data() }
func (tx *Transaction) To() *common.Address  { return tx.inner.To() }
func (tx *Transaction) Cost() *big.Int       { return tx.inner.Cost() }

func (tx *Transaction) AccessList() gethtypes.AccessList { return tx.inner.AccessList() }

// Hash returns the transaction hash. Fake transactions hash their content and
// sender but not the (empty) signature, so two fake transactions with equal
// fields from different senders never collide.
func (tx *Transaction) Hash() common.Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	var h common.Hash
	if tx.kind == FakeTx {
		h = rlpHash([]interface{}{
			tx.inner.Nonce(),
			tx.inner.GasPrice(),
			tx.inner.Gas(),
			tx.inner.To(),
			tx.inner.Value(),
			tx.inner.Data(),
			tx.from,
		})
	} else {
		h = tx.inner.Hash()
	}
	tx.hash.Store(&h)
	return h
}

// EffectiveGasPrice returns the price paid per unit of gas under baseFee.
func (tx *Transaction) EffectiveGasPrice(baseFee *big.Int) *big.Int {
	if baseFee == nil || tx.inner.Type() == gethtypes.LegacyTxType || tx.inner.Type() == gethtypes.AccessListTxType {
		return new(big.Int).Set(tx.inner.GasPrice())
	}
	tip := new(big.Int).Sub(tx.inner.GasFeeCap(), baseFee)
	if tip.Cmp(tx.inner.GasTipCap()) > 0 {
		tip.Set(tx.inner.GasTipCap())
	}
	return tip.Add(tip, baseFee)
}

// AsMessage converts the transaction into the message form the state
// transition consumes.
func (tx *Transaction) AsMessage(baseFee *big.Int) *core.Message {
	msg := &core.Message{
		From:       tx.from,
		To:         tx.inner.To(),
		Nonce:      tx.inner.Nonce(),
		Value:      new(big.Int).Set(tx.inner.Value()),
		GasLimit:   tx.inner.Gas(),
		GasPrice:   new(big.Int).Set(tx.inner.GasPrice()),
		GasFeeCap:  new(big.Int).Set(tx.inner.GasFeeCap()),
		GasTipCap:  new(big.Int).Set(tx.inner.GasTipCap()),
		Data:       tx.inner.Data(),
		AccessList: tx.inner.AccessList(),
	}
	if baseFee != nil {
		msg.GasPrice = tx.EffectiveGasPrice(baseFee)
	}
	return msg
}

// storedTx is the persisted form of a Transaction.
type storedTx struct {
	Raw  []byte
	From common.Address
	Kind uint8
}

// EncodeRLP implements rlp.Encoder.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	raw, err := tx.inner.MarshalBinary()
	if err != nil {
		return err
	}
	return rlp.Encode(w, &storedTx{Raw: raw, From: tx.from, Kind: uint8(tx.kind)})
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	var dec storedTx
	if err := s.Decode(&dec); err != nil {
		return err
	}
	if TxKind(dec.Kind) > RemoteTx {
		return ErrInvalidTxKind
	}
	inner := new(gethtypes.Transaction)
	if err := inner.UnmarshalBinary(dec.Raw); err != nil {
		return err
	}
	if TxKind(dec.Kind) == FakeTx && dec.From == (common.Address{}) {
		return errNoSender
	}
	tx.inner, tx.from, tx.kind = inner, dec.From, TxKind(dec.Kind)
	tx.hash.Store(nil)
	return nil
}

// VerifySender checks that the stored sender of a signed transaction is the
// one its signature recovers to.
func (tx *Transaction) VerifySender(signer gethtypes.Signer) error {
	if tx.kind != SignedTx {
		return nil
	}
	from, err := gethtypes.Sender(signer, tx.inner)
	if err != nil {
		return err
	}
	if from != tx.from {
		return fmt.Errorf("sender mismatch: have %x, want %x", from, tx.from)
	}
	return nil
}

// Transactions implements gethtypes.DerivableList for the transactions root.
type Transactions []*Transaction

// Len returns the length of s.
func (s Transactions) Len() int { return len(s) }

// EncodeIndex encodes the i'th transaction to w. Fake transactions encode
// their storage form so that the root commits to their sender.
func (s Transactions) EncodeIndex(i int, w *bytes.Buffer) {
	tx := s[i]
	if tx.kind == FakeTx {
		rlp.Encode(w, tx)
		return
	}
	raw, _ := tx.inner.MarshalBinary()
	w.Write(raw)
}

// Hashes returns the hashes of all transactions in s.
func (s Transactions) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(s))
	for i, tx := range s {
		hashes[i] = tx.Hash()
	}
	return hashes
}

func rlpHash(x interface{}) (h common.Hash) {
	sha := crypto.NewKeccakState()
	rlp.Encode(sha, x)
	sha.Read(h[:])
	return h
}
