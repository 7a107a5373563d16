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
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// Hardfork names accepted in the configuration.
const (
	London   = "london"
	Shanghai = "shanghai"
	Cancun   = "cancun"
)

// Config contains the chain settings.
type Config struct {
	ChainID   uint64
	NetworkID uint64

	// Hardfork is the latest active fork: london, shanghai or cancun.
	Hardfork string

	BlockGasLimit uint64
	CallGasLimit  uint64 // Gas limit of calls and estimates without an explicit one
	BaseFee       uint64 // Base fee of every block, in wei
	Coinbase      common.Address

	// Time is the unix timestamp of the genesis block. Zero uses the clock.
	Time uint64 `toml:",omitempty"`

	// DatabaseCache is the size of the encoded block cache in bytes.
	DatabaseCache int

	// Clock is the wall clock block times are derived from. Nil uses the
	// system clock.
	Clock func() time.Time `toml:"-"`
}

// DefaultConfig contains the default chain settings.
var DefaultConfig = Config{
	ChainID:       1337,
	NetworkID:     5777,
	Hardfork:      Cancun,
	BlockGasLimit: 6_721_975,
	CallGasLimit:  50_000_000,
	BaseFee:       0,
	DatabaseCache: 32 * 1024 * 1024,
}

// sanitize checks the configuration and fills in defaults.
func (c *Config) sanitize() error {
	switch c.Hardfork {
	case "":
		c.Hardfork = DefaultConfig.Hardfork
	case London, Shanghai, Cancun:
	default:
		return fmt.Errorf("unsupported hardfork %q", c.Hardfork)
	}
	if c.ChainID == 0 {
		c.ChainID = DefaultConfig.ChainID
	}
	if c.NetworkID == 0 {
		c.NetworkID = c.ChainID
	}
	if c.BlockGasLimit == 0 {
		c.BlockGasLimit = DefaultConfig.BlockGasLimit
	}
	if c.CallGasLimit == 0 {
		c.CallGasLimit = DefaultConfig.CallGasLimit
	}
	if c.DatabaseCache <= 0 {
		c.DatabaseCache = DefaultConfig.DatabaseCache
	}
	return nil
}

// ChainConfig builds the go-ethereum chain rules. Every block-numbered fork is
// active from genesis and the time-based ones follow Hardfork.
func (c *Config) ChainConfig() *params.ChainConfig {
	zero := uint64(0)
	config := &params.ChainConfig{
		ChainID:                 new(big.Int).SetUint64(c.ChainID),
		HomesteadBlock:          big.NewInt(0),
		EIP150Block:             big.NewInt(0),
		EIP155Block:             big.NewInt(0),
		EIP158Block:             big.NewInt(0),
		ByzantiumBlock:          big.NewInt(0),
		ConstantinopleBlock:     big.NewInt(0),
		PetersburgBlock:         big.NewInt(0),
		IstanbulBlock:           big.NewInt(0),
		MuirGlacierBlock:        big.NewInt(0),
		BerlinBlock:             big.NewInt(0),
		LondonBlock:             big.NewInt(0),
		ArrowGlacierBlock:       big.NewInt(0),
		GrayGlacierBlock:        big.NewInt(0),
		MergeNetsplitBlock:      big.NewInt(0),
		TerminalTotalDifficulty: big.NewInt(0),
	}
	switch c.Hardfork {
	case Cancun:
		config.CancunTime = &zero
		config.BlobScheduleConfig = params.DefaultBlobSchedule
		fallthrough
	case Shanghai:
		config.ShanghaiTime = &zero
	}
	return config
}
