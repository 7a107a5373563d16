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
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/probeum/devchain/sim"
)

var heading = color.New(color.FgHiGreen, color.Bold)

// printBanner writes the development accounts, their keys and the chain
// settings to w.
func printBanner(w io.Writer, s *sim.Simulator) error {
	latest := rpc.BlockNumberOrHashWithNumber(rpc.LatestBlockNumber)

	heading.Fprintln(w, "Available Accounts")
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Address", "Balance (ETH)", "Private Key"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, acct := range s.AccountManager().Accounts() {
		balance, err := s.GetBalance(acct.Address, latest)
		if err != nil {
			return err
		}
		table.Append([]string{
			strconv.Itoa(i),
			acct.Address.Hex(),
			formatEther(balance),
			hexutil.Encode(crypto.FromECDSA(acct.Key)),
		})
	}
	table.Render()

	heading.Fprintln(w, "\nHD Wallet")
	fmt.Fprintf(w, "Mnemonic:      %s\n", s.AccountManager().Mnemonic())
	fmt.Fprintf(w, "Chain Id:      %d\n", s.ChainID())
	fmt.Fprintf(w, "Network Id:    %d\n", s.NetworkID())

	number, err := s.BlockNumber()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Head Block:    %d\n", number)
	return nil
}

// formatEther renders a wei amount in ether with up to four decimals.
func formatEther(wei *big.Int) string {
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 4)
}
