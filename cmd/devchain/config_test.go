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
	"flag"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/probeum/devchain/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

func newContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range app.Flags {
		f.Apply(set)
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestMakeConfigDefaults(t *testing.T) {
	cfg, err := makeConfig(newContext(t))
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig.Chain.ChainID, cfg.Sim.Chain.ChainID)
	assert.Equal(t, sim.DefaultConfig.Miner, cfg.Sim.Miner)
	assert.Empty(t, cfg.Sim.Accounts.Mnemonic)
	assert.Equal(t, 3, cfg.Log.Verbosity)
	assert.False(t, cfg.Sim.Fork.Enabled())
}

func TestMakeConfigFlags(t *testing.T) {
	cfg, err := makeConfig(newContext(t,
		"--verbosity", "5",
		"--chain.id", "31337",
		"--chain.basefee", "7",
		"--miner.blocktime", "2s",
		"--miner.stopped",
		"--wallet.deterministic",
		"--wallet.accounts", "3",
		"--wallet.unlock", "0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002",
		"--vmerrors",
	))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Log.Verbosity)
	assert.Equal(t, uint64(31337), cfg.Sim.Chain.ChainID)
	assert.Equal(t, uint64(7), cfg.Sim.Chain.BaseFee)
	assert.Equal(t, 2*time.Second, cfg.Sim.Miner.BlockTime)
	assert.True(t, cfg.Sim.Miner.Stopped)
	assert.Equal(t, deterministicMnemonic, cfg.Sim.Accounts.Mnemonic)
	assert.Equal(t, 3, cfg.Sim.Accounts.Count)
	assert.Equal(t, []common.Address{common.HexToAddress("0x1"), common.HexToAddress("0x2")}, cfg.Sim.Accounts.Unlocked)
	assert.True(t, cfg.Sim.VMErrorsOnRPCResponse)

	_, err = makeConfig(newContext(t, "--wallet.unlock", "0xnothex"))
	assert.Error(t, err)
}

func TestMakeConfigFork(t *testing.T) {
	cfg, err := makeConfig(newContext(t, "--fork", "http://127.0.0.1:8545", "--fork.block", "100"))
	require.NoError(t, err)
	assert.True(t, cfg.Sim.Fork.Enabled())
	require.NotNil(t, cfg.Sim.Fork.BlockNumber)
	assert.Equal(t, uint64(100), *cfg.Sim.Fork.BlockNumber)
	// The remote ids are adopted.
	assert.Zero(t, cfg.Sim.Chain.ChainID)
	assert.Zero(t, cfg.Sim.Chain.NetworkID)

	cfg, err = makeConfig(newContext(t, "--fork", "http://127.0.0.1:8545", "--chain.id", "5"))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.Sim.Chain.ChainID)
	assert.Zero(t, cfg.Sim.Chain.NetworkID)
}

func TestLoadConfig(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte(`
[Sim]
VMErrorsOnRPCResponse = true

[Sim.Chain]
ChainID = 99
Hardfork = "shanghai"

[Sim.Miner]
BlockTime = 2000000000

[Sim.Accounts]
Count = 2

[Log]
Verbosity = 4
`), 0644))

	cfg, err := makeConfig(newContext(t, "--config", file, "--wallet.accounts", "4"))
	require.NoError(t, err)
	assert.True(t, cfg.Sim.VMErrorsOnRPCResponse)
	assert.Equal(t, uint64(99), cfg.Sim.Chain.ChainID)
	assert.Equal(t, "shanghai", cfg.Sim.Chain.Hardfork)
	assert.Equal(t, 2*time.Second, cfg.Sim.Miner.BlockTime)
	assert.Equal(t, 4, cfg.Log.Verbosity)
	// Flags override the file, untouched settings keep their defaults.
	assert.Equal(t, 4, cfg.Sim.Accounts.Count)
	assert.Equal(t, sim.DefaultConfig.Accounts.HDPath, cfg.Sim.Accounts.HDPath)
}

func TestLoadConfigUnknownField(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(file, []byte("[Sim.Chain]\nChainId = 1\n"), 0644))

	var cfg devchainConfig
	err := loadConfig(file, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), file)
	assert.Contains(t, err.Error(), "ChainId")
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1000.0000", formatEther(new(big.Int).Mul(big.NewInt(1000), big.NewInt(params.Ether))))
	assert.Equal(t, "0.5000", formatEther(big.NewInt(params.Ether/2)))
	assert.Equal(t, "0.0000", formatEther(new(big.Int)))
}
