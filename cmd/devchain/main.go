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

// devchain runs a local development chain.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/probeum/devchain/sim"
	"gopkg.in/urfave/cli.v1"
)

var (
	gitCommit = ""
	gitDate   = ""
)

var app = cli.NewApp()

func init() {
	app.Name = "devchain"
	app.Usage = "a local development chain"
	app.Version = version()
	app.Action = devchain
	app.HideVersion = true
	app.Flags = append([]cli.Flag{configFileFlag, verbosityFlag, dbPathFlag, vmErrorsFlag}, chainFlags...)
	app.Flags = append(app.Flags, minerFlags...)
	app.Flags = append(app.Flags, walletFlags...)
	app.Flags = append(app.Flags, forkFlags...)
	app.Commands = []cli.Command{
		dumpConfigCommand,
		{
			Action:    printVersion,
			Name:      "version",
			Usage:     "Print version numbers",
			ArgsUsage: " ",
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func version() string {
	v := "0.1.0-unstable"
	if len(gitCommit) >= 8 {
		v += "-" + gitCommit[:8]
	}
	if gitDate != "" {
		v += "-" + gitDate
	}
	return v
}

func printVersion(ctx *cli.Context) error {
	fmt.Println("devchain", version())
	return nil
}

// setupLogger installs the terminal log handler on stderr, colouring the
// output when it is a terminal.
func setupLogger(verbosity int) {
	usecolor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
	output := io.Writer(os.Stderr)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	handler := log.NewTerminalHandlerWithLevel(output, log.FromLegacyLevel(verbosity), usecolor)
	log.SetDefault(log.NewLogger(handler))
}

// devchain is the main entry point. It runs the chain until interrupted.
func devchain(ctx *cli.Context) error {
	if args := ctx.Args(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log.Verbosity)

	s, err := sim.New(&cfg.Sim)
	if err != nil {
		return err
	}
	if err := printBanner(os.Stdout, s); err != nil {
		s.Close()
		return err
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	log.Info("Got interrupt, shutting down...")

	return s.Close()
}
