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

package rawdb

import (
	"math/big"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	gethrawdb "github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/go-cmp/cmp"
	"github.com/probeum/devchain/core/types"
)

func TestBlockStorage(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()

	if _, ok := ReadLastIndex(db); ok {
		t.Fatal("empty database reports a chain tip")
	}
	block := types.NewBlock(&gethtypes.Header{
		Number:     big.NewInt(7),
		GasLimit:   6721975,
		Difficulty: new(big.Int),
		Time:       42,
	}, nil, nil)

	if err := WriteBlock(db, 0, block); err != nil {
		t.Fatalf("failed to write block: %v", err)
	}
	if err := WriteBlockIndex(db, block.Hash(), 0); err != nil {
		t.Fatalf("failed to write block index: %v", err)
	}
	if err := WriteLastIndex(db, 0); err != nil {
		t.Fatalf("failed to write last index: %v", err)
	}
	data := ReadBlockRLP(db, 0)
	if len(data) == 0 {
		t.Fatal("stored block not found")
	}
	dec := new(types.Block)
	if err := rlp.DecodeBytes(data, dec); err != nil {
		t.Fatalf("failed to decode block: %v", err)
	}
	if dec.Hash() != block.Hash() {
		t.Fatalf("block hash mismatch: have %x, want %x", dec.Hash(), block.Hash())
	}
	if index, ok := ReadBlockIndex(db, block.Hash()); !ok || index != 0 {
		t.Fatalf("block index mismatch: have %d/%v", index, ok)
	}
	if tip, ok := ReadLastIndex(db); !ok || tip != 0 {
		t.Fatalf("tip mismatch: have %d/%v", tip, ok)
	}

	DeleteBlock(db, 0)
	DeleteBlockIndex(db, block.Hash())
	DeleteLastIndex(db)
	if len(ReadBlockRLP(db, 0)) != 0 {
		t.Fatal("deleted block still present")
	}
	if _, ok := ReadBlockIndex(db, block.Hash()); ok {
		t.Fatal("deleted block index still present")
	}
}

func TestReceiptStorage(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()

	txHash := common.HexToHash("0x11")
	blockHash := common.HexToHash("0x22")
	receipt := &gethtypes.Receipt{
		Type:              gethtypes.DynamicFeeTxType,
		Status:            gethtypes.ReceiptStatusSuccessful,
		CumulativeGasUsed: 50000,
		GasUsed:           29000,
		EffectiveGasPrice: big.NewInt(3),
		ContractAddress:   common.HexToAddress("0x33"),
		TxHash:            txHash,
		BlockHash:         blockHash,
		BlockNumber:       big.NewInt(5),
		TransactionIndex:  1,
		Logs: []*gethtypes.Log{{
			Address:     common.HexToAddress("0x33"),
			Topics:      []common.Hash{common.HexToHash("0x44")},
			Data:        []byte{1, 2, 3},
			BlockNumber: 5,
			TxHash:      txHash,
			TxIndex:     1,
			BlockHash:   blockHash,
			Index:       2,
		}},
	}
	receipt.Bloom = types.LogsBloom(receipt.Logs)

	if have, err := ReadReceipt(db, txHash); have != nil || err != nil {
		t.Fatalf("missing receipt: have %v, %v", have, err)
	}
	if err := WriteReceipt(db, receipt); err != nil {
		t.Fatalf("failed to write receipt: %v", err)
	}
	have, err := ReadReceipt(db, txHash)
	if err != nil {
		t.Fatalf("failed to read receipt: %v", err)
	}
	if diff := cmp.Diff(receipt, have, cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })); diff != "" {
		t.Fatalf("receipt mismatch (-want +have):\n%s\n%s", diff, spew.Sdump(have))
	}
	DeleteReceipt(db, txHash)
	if have, _ := ReadReceipt(db, txHash); have != nil {
		t.Fatal("deleted receipt still present")
	}
}

func TestBlockLogsStorage(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()

	logs := []*gethtypes.Log{
		{Address: common.HexToAddress("0x1"), BlockNumber: 3, Index: 0},
		{Address: common.HexToAddress("0x2"), BlockNumber: 3, Index: 1, Topics: []common.Hash{{0xff}}},
	}
	if err := WriteBlockLogs(db, 3, logs); err != nil {
		t.Fatalf("failed to write logs: %v", err)
	}
	have, err := ReadBlockLogs(db, 3)
	if err != nil {
		t.Fatalf("failed to read logs: %v", err)
	}
	if len(have) != len(logs) {
		t.Fatalf("log count mismatch: have %d, want %d", len(have), len(logs))
	}
	for i := range logs {
		if have[i].Address != logs[i].Address || have[i].Index != logs[i].Index {
			t.Errorf("log %d mismatch: have %v, want %v", i, have[i], logs[i])
		}
	}
	if none, err := ReadBlockLogs(db, 4); none != nil || err != nil {
		t.Fatalf("unexpected logs for unknown block: %v, %v", none, err)
	}
}

func TestTransactionIteration(t *testing.T) {
	db := gethrawdb.NewMemoryDatabase()

	to := common.HexToAddress("0x01")
	want := make(map[common.Hash]bool)
	for i := 0; i < 4; i++ {
		tx := types.NewFakeTransaction(gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    uint64(i),
			GasPrice: new(big.Int),
			Gas:      21000,
			To:       &to,
			Value:    new(big.Int),
		}), common.HexToAddress("0xaa"))
		if err := WriteTransaction(db, tx); err != nil {
			t.Fatalf("failed to write transaction: %v", err)
		}
		want[tx.Hash()] = true
	}
	err := IterateTransactions(db, func(hash common.Hash, data []byte) error {
		tx := new(types.Transaction)
		if err := rlp.DecodeBytes(data, tx); err != nil {
			return err
		}
		if tx.Hash() != hash {
			t.Errorf("hash mismatch: key %x, content %x", hash, tx.Hash())
		}
		delete(want, hash)
		return nil
	})
	if err != nil {
		t.Fatalf("iteration failed: %v", err)
	}
	if len(want) != 0 {
		t.Fatalf("%d transactions not visited", len(want))
	}
}
