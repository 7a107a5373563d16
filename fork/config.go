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

// Package fork implements the client side of a forked remote chain.
package fork

import "time"

// Config contains the settings of the remote chain to fork from.
type Config struct {
	URL string `toml:",omitempty"`

	// BlockNumber pins the fork. Nil forks at the remote head at startup.
	BlockNumber *uint64 `toml:",omitempty"`

	// CacheSize bounds the number of remote values kept in memory. Zero
	// disables caching and a negative value removes the bound.
	CacheSize int

	RequestsPerSecond float64 // Zero means unlimited
	Timeout           time.Duration
}

// DefaultConfig contains the default settings for forking.
var DefaultConfig = Config{
	CacheSize:         1 << 16,
	RequestsPerSecond: 0,
	Timeout:           30 * time.Second,
}

// Enabled reports whether a remote chain is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.URL != ""
}
