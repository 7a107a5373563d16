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
	"github.com/probeum/devchain/accounts"
	"github.com/probeum/devchain/core"
	"github.com/probeum/devchain/fork"
	"github.com/probeum/devchain/miner"
)

// DatabaseConfig contains the settings of the key-value store.
type DatabaseConfig struct {
	// Path of the leveldb directory. Empty keeps the chain in memory.
	Path    string `toml:",omitempty"`
	Cache   int    // Megabytes of leveldb cache
	Handles int    // Open file handles of leveldb
}

// Config contains all settings of a simulator.
type Config struct {
	Chain    core.Config
	Fork     fork.Config
	Miner    miner.Config
	Accounts accounts.Config
	Database DatabaseConfig

	// VMErrorsOnRPCResponse reports failed executions of sent transactions
	// and calls as errors. Otherwise they only show as a status 0 receipt
	// or as the returned revert data.
	VMErrorsOnRPCResponse bool
}

// DefaultConfig contains the default simulator settings.
var DefaultConfig = Config{
	Chain:    core.DefaultConfig,
	Fork:     fork.DefaultConfig,
	Miner:    miner.DefaultConfig,
	Accounts: accounts.DefaultConfig,
	Database: DatabaseConfig{
		Cache:   16,
		Handles: 16,
	},
}
