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

package fork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/probeum/devchain/core/state"
	"github.com/probeum/devchain/core/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	remoteFetchMeter = metrics.NewRegisteredMeter("fork/remote/fetch", nil)
	remoteErrorMeter = metrics.NewRegisteredMeter("fork/remote/error", nil)
)

// Client reads state, blocks and transactions of the remote chain. Account
// and storage reads are cached, deduplicated and rate limited.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client

	cache   *Cache
	flight  singleflight.Group
	limiter *rate.Limiter
	timeout time.Duration
}

// Dial connects to the remote chain described by config.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	c, err := rpc.DialContext(ctx, config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial fork url: %w", err)
	}
	return NewClient(c, config), nil
}

// NewClient wraps an established RPC connection.
func NewClient(c *rpc.Client, config *Config) *Client {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	return &Client{
		rpc:     c,
		eth:     ethclient.NewClient(c),
		cache:   NewCache(config.CacheSize),
		limiter: rate.NewLimiter(limit, 1),
		timeout: config.Timeout,
	}
}

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// request prepares ctx for one remote call, waiting for the rate limiter and
// applying the request timeout.
func (c *Client) request(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	remoteFetchMeter.Mark(1)
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel, err := c.request(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if err := fn(ctx); err != nil {
		remoteErrorMeter.Mark(1)
		return err
	}
	return nil
}

// Account fetches balance, nonce and code of addr at the given block.
func (c *Client) Account(ctx context.Context, addr common.Address, number uint64) (*state.RemoteAccount, error) {
	key := cacheKey{kind: accountValue, addr: addr, number: number}
	if val, ok := c.cache.Get(key); ok {
		return val.(*state.RemoteAccount), nil
	}
	val, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		var (
			block   = new(big.Int).SetUint64(number)
			balance *big.Int
			nonce   uint64
			code    []byte
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return c.call(gctx, func(ctx context.Context) (err error) {
				balance, err = c.eth.BalanceAt(ctx, addr, block)
				return err
			})
		})
		g.Go(func() error {
			return c.call(gctx, func(ctx context.Context) (err error) {
				nonce, err = c.eth.NonceAt(ctx, addr, block)
				return err
			})
		})
		g.Go(func() error {
			return c.call(gctx, func(ctx context.Context) (err error) {
				code, err = c.eth.CodeAt(ctx, addr, block)
				return err
			})
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("failed to fetch remote account %x: %w", addr, err)
		}
		bal, overflow := uint256.FromBig(balance)
		if overflow {
			return nil, fmt.Errorf("remote balance of %x overflows", addr)
		}
		acct := &state.RemoteAccount{Nonce: nonce, Balance: bal, Code: code}
		c.cache.Add(key, acct)
		log.Trace("Fetched remote account", "address", addr, "number", number, "nonce", nonce, "code", len(code))
		return acct, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*state.RemoteAccount), nil
}

// Storage fetches a storage slot of addr at the given block.
func (c *Client) Storage(ctx context.Context, addr common.Address, slot common.Hash, number uint64) (common.Hash, error) {
	key := cacheKey{kind: storageValue, addr: addr, slot: slot, number: number}
	if val, ok := c.cache.Get(key); ok {
		return val.(common.Hash), nil
	}
	val, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		var data []byte
		err := c.call(ctx, func(ctx context.Context) (err error) {
			data, err = c.eth.StorageAt(ctx, addr, slot, new(big.Int).SetUint64(number))
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch remote storage %x/%x: %w", addr, slot, err)
		}
		val := common.BytesToHash(data)
		c.cache.Add(key, val)
		return val, nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	return val.(common.Hash), nil
}

// BlockNumber returns the current head of the remote chain.
func (c *Client) BlockNumber(ctx context.Context) (number uint64, err error) {
	err = c.call(ctx, func(ctx context.Context) error {
		number, err = c.eth.BlockNumber(ctx)
		return err
	})
	return number, err
}

// ChainID returns the chain id of the remote chain.
func (c *Client) ChainID(ctx context.Context) (id *big.Int, err error) {
	err = c.call(ctx, func(ctx context.Context) error {
		id, err = c.eth.ChainID(ctx)
		return err
	})
	return id, err
}

// NetworkID returns the network id of the remote chain.
func (c *Client) NetworkID(ctx context.Context) (id *big.Int, err error) {
	err = c.call(ctx, func(ctx context.Context) error {
		id, err = c.eth.NetworkID(ctx)
		return err
	})
	return id, err
}

// BlockByNumber fetches a remote block. Its hash is the one the remote chain
// reported. Unknown blocks yield nil without error.
func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*types.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
}

// BlockByHash fetches a remote block by hash. Unknown blocks yield nil
// without error.
func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error) {
	return c.getBlock(ctx, "eth_getBlockByHash", hash, true)
}

type rpcBlock struct {
	Hash         common.Hash      `json:"hash"`
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	tx *gethtypes.Transaction
	txExtraInfo
}

type txExtraInfo struct {
	BlockNumber      *hexutil.Big    `json:"blockNumber,omitempty"`
	BlockHash        *common.Hash    `json:"blockHash,omitempty"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex,omitempty"`
	From             *common.Address `json:"from,omitempty"`
}

func (tx *rpcTransaction) UnmarshalJSON(msg []byte) error {
	if err := json.Unmarshal(msg, &tx.tx); err != nil {
		return err
	}
	return json.Unmarshal(msg, &tx.txExtraInfo)
}

func (tx *rpcTransaction) transaction() (*types.Transaction, error) {
	if tx.From == nil {
		return nil, errors.New("remote transaction without sender")
	}
	return types.NewRemoteTransaction(tx.tx, *tx.From), nil
}

func (c *Client) getBlock(ctx context.Context, method string, args ...interface{}) (*types.Block, error) {
	var raw json.RawMessage
	err := c.call(ctx, func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, method, args...)
	})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var (
		head *gethtypes.Header
		body rpcBlock
	)
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	txs := make([]*types.Transaction, len(body.Transactions))
	for i := range body.Transactions {
		if txs[i], err = body.Transactions[i].transaction(); err != nil {
			return nil, err
		}
	}
	return types.NewBlockWithHash(head, txs, body.Hash), nil
}

// TxLocation is the position of a remote transaction in its block.
type TxLocation struct {
	BlockHash   common.Hash
	BlockNumber uint64
	Index       uint64
}

// TransactionByHash fetches a mined remote transaction. Unknown or pending
// transactions yield nil without error.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, *TxLocation, error) {
	var tx *rpcTransaction
	err := c.call(ctx, func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &tx, "eth_getTransactionByHash", hash)
	})
	if err != nil {
		return nil, nil, err
	}
	if tx == nil || tx.BlockHash == nil || tx.BlockNumber == nil {
		return nil, nil, nil
	}
	rtx, err := tx.transaction()
	if err != nil {
		return nil, nil, err
	}
	loc := &TxLocation{BlockHash: *tx.BlockHash, BlockNumber: tx.BlockNumber.ToInt().Uint64()}
	if tx.TransactionIndex != nil {
		loc.Index = uint64(*tx.TransactionIndex)
	}
	return rtx, loc, nil
}

// TransactionReceipt fetches the receipt of a remote transaction. Unknown
// transactions yield nil without error.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (receipt *gethtypes.Receipt, err error) {
	err = c.call(ctx, func(ctx context.Context) error {
		receipt, err = c.eth.TransactionReceipt(ctx, hash)
		return err
	})
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	return receipt, err
}
