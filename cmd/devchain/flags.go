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

package main

import (
	"github.com/probeum/devchain/sim"
	"gopkg.in/urfave/cli.v1"
)

var (
	chainIDFlag = cli.Uint64Flag{
		Name:  "chain.id",
		Usage: "Chain id transactions are signed for (default = 1337, or the forked chain's)",
	}
	networkIDFlag = cli.Uint64Flag{
		Name:  "chain.networkid",
		Usage: "Network id (default = 5777, or the forked chain's)",
	}
	hardforkFlag = cli.StringFlag{
		Name:  "chain.hardfork",
		Usage: "Latest active fork: london, shanghai or cancun",
	}
	gasLimitFlag = cli.Uint64Flag{
		Name:  "chain.gaslimit",
		Usage: "Block gas limit",
	}
	callGasLimitFlag = cli.Uint64Flag{
		Name:  "chain.callgaslimit",
		Usage: "Gas limit of calls and estimates that set none",
	}
	baseFeeFlag = cli.Uint64Flag{
		Name:  "chain.basefee",
		Usage: "Base fee of every block, in wei",
	}
	genesisTimeFlag = cli.Uint64Flag{
		Name:  "chain.time",
		Usage: "Unix timestamp of the genesis block (default = now)",
	}
	chainFlags = []cli.Flag{
		chainIDFlag,
		networkIDFlag,
		hardforkFlag,
		gasLimitFlag,
		callGasLimitFlag,
		baseFeeFlag,
		genesisTimeFlag,
	}

	blockTimeFlag = cli.DurationFlag{
		Name:  "miner.blocktime",
		Usage: "Interval between blocks (0 = mine each transaction as it arrives)",
	}
	txGasFlag = cli.Uint64Flag{
		Name:  "miner.txgas",
		Usage: "Gas limit of sent transactions that set none",
	}
	noMiningFlag = cli.BoolFlag{
		Name:  "miner.stopped",
		Usage: "Start with mining stopped",
	}
	minerFlags = []cli.Flag{
		blockTimeFlag,
		txGasFlag,
		noMiningFlag,
	}

	mnemonicFlag = cli.StringFlag{
		Name:  "wallet.mnemonic",
		Usage: "BIP-39 mnemonic the accounts are derived from (default = random)",
	}
	deterministicFlag = cli.BoolFlag{
		Name:  "wallet.deterministic",
		Usage: "Derive the accounts from a fixed mnemonic",
	}
	accountsFlag = cli.IntFlag{
		Name:  "wallet.accounts",
		Usage: "Number of accounts to derive",
	}
	balanceFlag = cli.Uint64Flag{
		Name:  "wallet.balance",
		Usage: "Initial balance of each account, in ether",
	}
	unlockFlag = cli.StringFlag{
		Name:  "wallet.unlock",
		Usage: "Comma separated list of addresses to accept unsigned transactions from",
	}
	impersonateFlag = cli.BoolFlag{
		Name:  "wallet.impersonate",
		Usage: "Accept unsigned transactions from any address",
	}
	walletFlags = []cli.Flag{
		mnemonicFlag,
		deterministicFlag,
		accountsFlag,
		balanceFlag,
		unlockFlag,
		impersonateFlag,
	}

	forkURLFlag = cli.StringFlag{
		Name:  "fork",
		Usage: "JSON-RPC endpoint of the chain to fork from",
	}
	forkBlockFlag = cli.Uint64Flag{
		Name:  "fork.block",
		Usage: "Block number to fork at (default = latest)",
	}
	forkCacheFlag = cli.IntFlag{
		Name:  "fork.cache",
		Usage: "Number of remote values kept in memory (0 = no caching, negative = unbounded)",
	}
	forkRateFlag = cli.Float64Flag{
		Name:  "fork.rps",
		Usage: "Maximum remote requests per second (0 = unlimited)",
	}
	forkTimeoutFlag = cli.DurationFlag{
		Name:  "fork.timeout",
		Usage: "Timeout of remote requests",
	}
	forkFlags = []cli.Flag{
		forkURLFlag,
		forkBlockFlag,
		forkCacheFlag,
		forkRateFlag,
		forkTimeoutFlag,
	}
)

func setChainConfig(ctx *cli.Context, cfg *sim.Config) {
	if ctx.GlobalIsSet(chainIDFlag.Name) {
		cfg.Chain.ChainID = ctx.GlobalUint64(chainIDFlag.Name)
	}
	if ctx.GlobalIsSet(networkIDFlag.Name) {
		cfg.Chain.NetworkID = ctx.GlobalUint64(networkIDFlag.Name)
	}
	if ctx.GlobalIsSet(hardforkFlag.Name) {
		cfg.Chain.Hardfork = ctx.GlobalString(hardforkFlag.Name)
	}
	if ctx.GlobalIsSet(gasLimitFlag.Name) {
		cfg.Chain.BlockGasLimit = ctx.GlobalUint64(gasLimitFlag.Name)
	}
	if ctx.GlobalIsSet(callGasLimitFlag.Name) {
		cfg.Chain.CallGasLimit = ctx.GlobalUint64(callGasLimitFlag.Name)
	}
	if ctx.GlobalIsSet(baseFeeFlag.Name) {
		cfg.Chain.BaseFee = ctx.GlobalUint64(baseFeeFlag.Name)
	}
	if ctx.GlobalIsSet(genesisTimeFlag.Name) {
		cfg.Chain.Time = ctx.GlobalUint64(genesisTimeFlag.Name)
	}
}

func setMinerConfig(ctx *cli.Context, cfg *sim.Config) {
	if ctx.GlobalIsSet(blockTimeFlag.Name) {
		cfg.Miner.BlockTime = ctx.GlobalDuration(blockTimeFlag.Name)
	}
	if ctx.GlobalIsSet(txGasFlag.Name) {
		cfg.Miner.TransactionGas = ctx.GlobalUint64(txGasFlag.Name)
	}
	if ctx.GlobalIsSet(noMiningFlag.Name) {
		cfg.Miner.Stopped = ctx.GlobalBool(noMiningFlag.Name)
	}
}

func setWalletConfig(ctx *cli.Context, cfg *sim.Config) error {
	if ctx.GlobalBool(deterministicFlag.Name) {
		cfg.Accounts.Mnemonic = deterministicMnemonic
	}
	if ctx.GlobalIsSet(mnemonicFlag.Name) {
		cfg.Accounts.Mnemonic = ctx.GlobalString(mnemonicFlag.Name)
	}
	if ctx.GlobalIsSet(accountsFlag.Name) {
		cfg.Accounts.Count = ctx.GlobalInt(accountsFlag.Name)
	}
	if ctx.GlobalIsSet(balanceFlag.Name) {
		cfg.Accounts.Balance = ctx.GlobalUint64(balanceFlag.Name)
	}
	if ctx.GlobalIsSet(unlockFlag.Name) {
		addrs, err := splitAddresses(ctx.GlobalString(unlockFlag.Name))
		if err != nil {
			return err
		}
		cfg.Accounts.Unlocked = append(cfg.Accounts.Unlocked, addrs...)
	}
	if ctx.GlobalIsSet(impersonateFlag.Name) {
		cfg.Accounts.Impersonate = ctx.GlobalBool(impersonateFlag.Name)
	}
	return nil
}

// setForkConfig applies the fork flags. Forking from the command line
// adopts the ids of the remote chain unless they are given explicitly.
func setForkConfig(ctx *cli.Context, cfg *sim.Config) {
	if ctx.GlobalIsSet(forkURLFlag.Name) {
		cfg.Fork.URL = ctx.GlobalString(forkURLFlag.Name)
		if !ctx.GlobalIsSet(chainIDFlag.Name) {
			cfg.Chain.ChainID = 0
		}
		if !ctx.GlobalIsSet(networkIDFlag.Name) {
			cfg.Chain.NetworkID = 0
		}
	}
	if ctx.GlobalIsSet(forkBlockFlag.Name) {
		number := ctx.GlobalUint64(forkBlockFlag.Name)
		cfg.Fork.BlockNumber = &number
	}
	if ctx.GlobalIsSet(forkCacheFlag.Name) {
		cfg.Fork.CacheSize = ctx.GlobalInt(forkCacheFlag.Name)
	}
	if ctx.GlobalIsSet(forkRateFlag.Name) {
		cfg.Fork.RequestsPerSecond = ctx.GlobalFloat64(forkRateFlag.Name)
	}
	if ctx.GlobalIsSet(forkTimeoutFlag.Name) {
		cfg.Fork.Timeout = ctx.GlobalDuration(forkTimeoutFlag.Name)
	}
}
