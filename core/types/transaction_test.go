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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKey, _  = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	testAddr    = crypto.PubkeyToAddress(testKey.PublicKey)
	testSigner  = gethtypes.LatestSignerForChainID(big.NewInt(1337))
	testRecvr   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	otherSender = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func newLegacy(nonce uint64, price int64) *gethtypes.Transaction {
	return gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: big.NewInt(price),
		Gas:      21000,
		To:       &testRecvr,
		Value:    big.NewInt(1),
	})
}

func TestSignedTransactionSender(t *testing.T) {
	signed, err := gethtypes.SignTx(newLegacy(0, 1), testSigner, testKey)
	require.NoError(t, err)

	tx, err := NewSignedTransaction(signed, testSigner)
	require.NoError(t, err)
	assert.Equal(t, testAddr, tx.From())
	assert.Equal(t, signed.Hash(), tx.Hash())
	assert.NoError(t, tx.VerifySender(testSigner))
}

func TestFakeTransactionHash(t *testing.T) {
	a := NewFakeTransaction(newLegacy(0, 1), testAddr)
	b := NewFakeTransaction(newLegacy(0, 1), otherSender)
	assert.NotEqual(t, a.Hash(), b.Hash(), "sender must be part of a fake hash")

	// Signatures do not contribute to the hash of a fake transaction.
	signed, err := gethtypes.SignTx(newLegacy(0, 1), testSigner, testKey)
	require.NoError(t, err)
	c := NewFakeTransaction(signed, testAddr)
	assert.Equal(t, a.Hash(), c.Hash())
	assert.NotEqual(t, signed.Hash(), c.Hash())
}

func TestTransactionStorageRoundTrip(t *testing.T) {
	signed, err := gethtypes.SignTx(newLegacy(3, 7), testSigner, testKey)
	require.NoError(t, err)
	stx, err := NewSignedTransaction(signed, testSigner)
	require.NoError(t, err)

	for _, tx := range []*Transaction{
		stx,
		NewFakeTransaction(newLegacy(1, 2), otherSender),
		NewRemoteTransaction(signed, testAddr),
	} {
		enc, err := rlp.EncodeToBytes(tx)
		require.NoError(t, err)

		dec := new(Transaction)
		require.NoError(t, rlp.DecodeBytes(enc, dec))
		assert.Equal(t, tx.Hash(), dec.Hash(), "kind %v", tx.Kind())
		assert.Equal(t, tx.From(), dec.From())
		assert.Equal(t, tx.Kind(), dec.Kind())
	}
}

func TestFakeTransactionWithoutSender(t *testing.T) {
	enc, err := rlp.EncodeToBytes(NewFakeTransaction(newLegacy(0, 1), common.Address{}))
	require.NoError(t, err)
	assert.Error(t, rlp.DecodeBytes(enc, new(Transaction)))
}

func TestAsMessage(t *testing.T) {
	tx := NewFakeTransaction(gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		Nonce:     4,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(10),
		Gas:       50000,
		To:        &testRecvr,
		Value:     big.NewInt(9),
	}), testAddr)

	msg := tx.AsMessage(big.NewInt(5))
	assert.Equal(t, testAddr, msg.From)
	assert.Equal(t, uint64(4), msg.Nonce)
	assert.Equal(t, uint64(50000), msg.GasLimit)
	assert.Equal(t, big.NewInt(7), msg.GasPrice, "base fee plus capped tip")

	msg = tx.AsMessage(big.NewInt(9))
	assert.Equal(t, big.NewInt(10), msg.GasPrice, "price is capped at the fee cap")
}

func TestBlockHashAndRoots(t *testing.T) {
	header := &gethtypes.Header{
		Number:     big.NewInt(1),
		GasLimit:   6721975,
		Difficulty: big.NewInt(0),
		Time:       1000,
	}
	txs := []*Transaction{NewFakeTransaction(newLegacy(0, 1), testAddr)}
	receipts := []*gethtypes.Receipt{{
		Status:            gethtypes.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21000,
		Logs: []*gethtypes.Log{{
			Address: testRecvr,
			Topics:  []common.Hash{common.HexToHash("0x01")},
		}},
	}}
	receipts[0].Bloom = LogsBloom(receipts[0].Logs)

	block := NewBlock(header, txs, receipts)
	assert.NotEqual(t, gethtypes.EmptyTxsHash, block.Header().TxHash)
	assert.NotEqual(t, gethtypes.EmptyReceiptsHash, block.Header().ReceiptHash)
	assert.True(t, block.Header().Bloom.Test(testRecvr.Bytes()))

	enc, err := rlp.EncodeToBytes(block)
	require.NoError(t, err)
	dec := new(Block)
	require.NoError(t, rlp.DecodeBytes(enc, dec))
	assert.Equal(t, block.Hash(), dec.Hash())
	require.Len(t, dec.Transactions(), 1)
	assert.Equal(t, txs[0].Hash(), dec.Transactions()[0].Hash())

	empty := NewBlock(header, nil, nil)
	assert.Equal(t, gethtypes.EmptyTxsHash, empty.Header().TxHash)

	fixed := common.HexToHash("0xfeed")
	assert.Equal(t, fixed, NewBlockWithHash(header, nil, fixed).Hash())
}
