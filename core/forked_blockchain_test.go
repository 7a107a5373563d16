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

package core

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/probeum/devchain/fork"
	"github.com/probeum/devchain/fork/forktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	remoteChainID   = 1
	remoteNetworkID = 7
	remoteHead      = 20
	testForkNumber  = 10
)

var (
	remoteContract = common.HexToAddress("0xc0ffee")
	remoteFunds    = new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))
)

func newRemoteChain() *forktest.Chain {
	chain := forktest.NewChain(remoteChainID, remoteNetworkID, remoteHead)
	chain.SetAccount(5, testAddr, forktest.Account{Balance: remoteFunds, Nonce: 3})
	chain.SetAccount(15, testAddr, forktest.Account{Balance: big.NewInt(params.Ether), Nonce: 9})
	chain.SetAccount(0, remoteContract, forktest.Account{
		Nonce:   1,
		Code:    common.FromHex("0x600035600055" + "00"),
		Storage: map[common.Hash]common.Hash{{}: common.BigToHash(big.NewInt(5))},
	})
	return chain
}

func newForkedTestChain(t *testing.T, db ethdb.Database, chain *forktest.Chain, number *uint64) *ForkedBlockChain {
	t.Helper()

	cfg := testConfig()
	cfg.ChainID, cfg.NetworkID = 0, 0
	client := fork.NewClient(chain.Client(), &fork.DefaultConfig)
	t.Cleanup(client.Close)

	bc, err := NewForkedBlockChain(db, cfg, client, number)
	require.NoError(t, err)
	require.NoError(t, bc.Initialize(nil))
	t.Cleanup(func() { bc.Close() })
	return bc
}

func signRemoteTx(t *testing.T, nonce uint64) *gethtypes.Transaction {
	t.Helper()

	to := common.HexToAddress("0x1234")
	signer := gethtypes.LatestSignerForChainID(big.NewInt(remoteChainID))
	tx, err := gethtypes.SignNewTx(testKey2, signer, &gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    common.Big1,
		Gas:      21000,
		GasPrice: common.Big1,
	})
	require.NoError(t, err)
	return tx
}

func TestForkedChainSetup(t *testing.T) {
	chain := newRemoteChain()
	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	assert.Equal(t, uint64(testForkNumber), bc.ForkBlockNumber())
	assert.Equal(t, uint64(remoteChainID), bc.Config().ChainID)
	assert.Equal(t, uint64(remoteNetworkID), bc.Config().NetworkID)

	head, err := bc.Head()
	require.NoError(t, err)
	assert.Equal(t, uint64(testForkNumber+1), head.NumberU64())

	forkBlock, err := bc.GetBlockByNumber(testForkNumber)
	require.NoError(t, err)
	require.NotNil(t, forkBlock)
	assert.Equal(t, forkBlock.Hash(), head.ParentHash())

	byHash, err := bc.GetBlockByHash(forkBlock.Hash())
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, uint64(testForkNumber), byHash.NumberU64())

	// Remote blocks past the fork do not belong to the local chain.
	_, err = bc.GetBlock(rpc.BlockNumberOrHashWithNumber(15))
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestForkedChainHeadPin(t *testing.T) {
	chain := newRemoteChain()
	db := rawdb.NewMemoryDatabase()
	bc := newForkedTestChain(t, db, chain, nil)
	assert.Equal(t, uint64(remoteHead), bc.ForkBlockNumber())
	require.NoError(t, bc.Close())

	// The pinned block survives restarts and cannot be moved.
	other := uint64(testForkNumber)
	cfg := testConfig()
	_, err := NewForkedBlockChain(db, cfg, fork.NewClient(chain.Client(), &fork.DefaultConfig), &other)
	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)

	chain.SetHead(remoteHead + 5)
	bc = newForkedTestChain(t, db, chain, nil)
	assert.Equal(t, uint64(remoteHead), bc.ForkBlockNumber())
}

func TestForkedStateReads(t *testing.T) {
	chain := newRemoteChain()
	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	// State changes after the fork block are invisible.
	balance, err := bc.GetBalance(testAddr, latest)
	require.NoError(t, err)
	assert.Equal(t, remoteFunds, balance.ToBig())

	nonce, err := bc.GetNonce(testAddr, latest)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), nonce)

	// Historical remote blocks read the remote chain at their height.
	balance, err = bc.GetBalance(testAddr, rpc.BlockNumberOrHashWithNumber(3))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	val, err := bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(5)), val)

	code, err := bc.GetCode(remoteContract, latest)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x600035600055"+"00"), code)

	assert.NotZero(t, chain.Calls("eth_getBalance"))
}

func TestForkedTransactions(t *testing.T) {
	chain := newRemoteChain()
	before, after := signRemoteTx(t, 0), signRemoteTx(t, 1)
	chain.AddTransaction(8, before, testAddr2)
	chain.AddTransaction(12, after, testAddr2)

	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	tx, loc, err := bc.GetTransaction(before.Hash())
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, testAddr2, tx.From())
	assert.Equal(t, uint64(8), loc.BlockNumber)

	receipt, err := bc.GetTransactionReceipt(before.Hash())
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, loc.BlockHash, receipt.BlockHash)

	tx, _, err = bc.GetTransaction(after.Hash())
	require.NoError(t, err)
	assert.Nil(t, tx)
	receipt, err = bc.GetTransactionReceipt(after.Hash())
	require.NoError(t, err)
	assert.Nil(t, receipt)

	block, err := bc.GetBlockByNumber(8)
	require.NoError(t, err)
	require.Len(t, block.Transactions(), 1)
	assert.Equal(t, before.Hash(), block.Transactions()[0].Hash())
}

func TestForkedMining(t *testing.T) {
	chain := newRemoteChain()
	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	// The remote nonce carries over.
	to := common.HexToAddress("0x1234")
	err := bc.QueueTransaction(signTx(t, bc.BlockChain, testKey, 0, &to, common.Big1, 21000, 1, nil))
	var nonceErr *NonceError
	require.ErrorAs(t, err, &nonceErr)
	assert.Equal(t, uint64(3), nonceErr.Expected)

	res := mineTx(t, bc.BlockChain, signTx(t, bc.BlockChain, testKey, 3, &to, big.NewInt(100), 21000, 1, nil))
	require.Nil(t, res.Err)
	assert.Equal(t, uint64(testForkNumber+2), res.Block.NumberU64())

	balance, err := bc.GetBalance(testAddr, latest)
	require.NoError(t, err)
	want := new(big.Int).Sub(remoteFunds, big.NewInt(100+21000))
	assert.Equal(t, want, balance.ToBig())

	balance, err = bc.GetBalance(to, latest)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), balance.Uint64())

	receipt, err := bc.GetTransactionReceipt(res.Receipts[0].TxHash)
	require.NoError(t, err)
	assert.Equal(t, res.Block.Hash(), receipt.BlockHash)
}

func TestForkedTombstones(t *testing.T) {
	chain := newRemoteChain()
	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	// Storing a zero word clears the remote slot.
	res := mineTx(t, bc.BlockChain, signTx(t, bc.BlockChain, testKey, 3, &remoteContract, new(big.Int), 100000, 1, nil))
	require.Nil(t, res.Err)
	assert.Equal(t, 1, bc.Tombstones().Len())

	val, err := bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, val)

	val, err = bc.GetStorage(remoteContract, common.Hash{}, rpc.BlockNumberOrHashWithNumber(testForkNumber+1))
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(5)), val)

	_, err = bc.PopBlock()
	require.NoError(t, err)
	assert.Equal(t, 0, bc.Tombstones().Len())

	val, err = bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, common.BigToHash(big.NewInt(5)), val)
}

func TestForkedTombstoneAfterLocalWrite(t *testing.T) {
	chain := newRemoteChain()
	number := uint64(testForkNumber)
	bc := newForkedTestChain(t, rawdb.NewMemoryDatabase(), chain, &number)

	nine := common.BigToHash(big.NewInt(9))
	res := mineTx(t, bc.BlockChain, signTx(t, bc.BlockChain, testKey, 3, &remoteContract, new(big.Int), 100000, 1, nine.Bytes()))
	require.Nil(t, res.Err)
	assert.Zero(t, bc.Tombstones().Len())

	val, err := bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, nine, val)

	// Clearing a slot the local chain wrote before still hides the remote value.
	res = mineTx(t, bc.BlockChain, signTx(t, bc.BlockChain, testKey, 4, &remoteContract, new(big.Int), 100000, 1, nil))
	require.Nil(t, res.Err)
	height, ok := bc.Tombstones().Slot(remoteContract, common.Hash{})
	require.True(t, ok)
	assert.Equal(t, res.Block.NumberU64(), height)

	val, err = bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}, val)

	val, err = bc.GetStorage(remoteContract, common.Hash{}, rpc.BlockNumberOrHashWithNumber(rpc.BlockNumber(res.Block.NumberU64()-1)))
	require.NoError(t, err)
	assert.Equal(t, nine, val)

	// Writing again after the clear wins over the tombstone.
	res = mineTx(t, bc.BlockChain, signTx(t, bc.BlockChain, testKey, 5, &remoteContract, new(big.Int), 100000, 1, nine.Bytes()))
	require.Nil(t, res.Err)
	val, err = bc.GetStorage(remoteContract, common.Hash{}, latest)
	require.NoError(t, err)
	assert.Equal(t, nine, val)
}
