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
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/naoina/toml"
	"github.com/probeum/devchain/sim"
	"gopkg.in/urfave/cli.v1"
)

// deterministicMnemonic seeds the same accounts on every start.
const deterministicMnemonic = "myth like bonus scare over problem client lizard pioneer submit female collect"

var (
	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "[file]",
		Category:    "MISCELLANEOUS COMMANDS",
		Description: `The dumpconfig command shows configuration values.`,
	}

	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	dbPathFlag = cli.StringFlag{
		Name:  "db",
		Usage: "Directory of the chain database (default = in memory)",
	}
	vmErrorsFlag = cli.BoolFlag{
		Name:  "vmerrors",
		Usage: "Report failed transactions and calls as errors",
	}
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type logConfig struct {
	Verbosity int
}

type devchainConfig struct {
	Sim sim.Config
	Log logConfig
}

func defaultConfig() devchainConfig {
	return devchainConfig{
		Sim: sim.DefaultConfig,
		Log: logConfig{Verbosity: verbosityFlag.Value},
	}
}

func loadConfig(file string, cfg *devchainConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig loads the configuration file, if any, and applies the flags on
// top of it.
func makeConfig(ctx *cli.Context) (devchainConfig, error) {
	cfg := defaultConfig()
	if file := ctx.GlobalString(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if ctx.GlobalIsSet(verbosityFlag.Name) {
		cfg.Log.Verbosity = ctx.GlobalInt(verbosityFlag.Name)
	}
	if ctx.GlobalIsSet(dbPathFlag.Name) {
		cfg.Sim.Database.Path = ctx.GlobalString(dbPathFlag.Name)
	}
	if ctx.GlobalIsSet(vmErrorsFlag.Name) {
		cfg.Sim.VMErrorsOnRPCResponse = ctx.GlobalBool(vmErrorsFlag.Name)
	}
	setChainConfig(ctx, &cfg.Sim)
	setMinerConfig(ctx, &cfg.Sim)
	if err := setWalletConfig(ctx, &cfg.Sim); err != nil {
		return cfg, err
	}
	setForkConfig(ctx, &cfg.Sim)
	return cfg, nil
}

// splitAddresses parses a comma separated list of addresses.
func splitAddresses(list string) ([]common.Address, error) {
	var addrs []common.Address
	for _, s := range strings.Split(list, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	comment := ""
	if cfg.Sim.Accounts.Mnemonic == "" {
		comment += "# Note: no mnemonic is set, every start derives new accounts.\n\n"
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString(comment)
	dump.Write(out)
	log.Debug("Dumped configuration", "bytes", len(out))

	return nil
}
