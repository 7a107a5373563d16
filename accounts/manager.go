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

// Package accounts manages the funded development accounts and the senders
// the chain accepts transactions from.
package accounts

import (
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"

	mapset "github.com/deckarep/golang-set"
	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
)

var (
	// ErrUnknownAccount is returned for addresses the manager holds no key
	// for.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrLocked is returned when a known account is asked to sign while it
	// is locked.
	ErrLocked = errors.New("authentication needed: password or unlock")
)

// Config contains the settings of the development accounts.
type Config struct {
	// Mnemonic seeds the accounts. An empty mnemonic generates a random one.
	Mnemonic string `toml:",omitempty"`
	HDPath   string
	Count    int
	Balance  uint64 // Initial balance of every account, in ether

	// Unlocked are extra senders accepted without a key.
	Unlocked []common.Address `toml:",omitempty"`

	// Impersonate accepts unsigned transactions from any sender.
	Impersonate bool
}

// DefaultConfig contains the default account settings.
var DefaultConfig = Config{
	HDPath:  "m/44'/60'/0'/0",
	Count:   10,
	Balance: 1000,
}

// Account is a development account with its key.
type Account struct {
	Address common.Address
	Key     *ecdsa.PrivateKey
}

// Manager holds the development accounts.
type Manager struct {
	mnemonic string
	accounts []*Account
	keys     map[common.Address]*ecdsa.PrivateKey
	balance  *big.Int

	unlocked    mapset.Set
	impersonate bool
	lock        sync.RWMutex
}

// NewManager derives the accounts described by config.
func NewManager(config *Config) (*Manager, error) {
	mnemonic := config.Mnemonic
	if mnemonic == "" {
		var err error
		if mnemonic, err = NewMnemonic(); err != nil {
			return nil, err
		}
	}
	keys, err := DeriveKeys(mnemonic, config.HDPath, config.Count)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		mnemonic:    mnemonic,
		keys:        make(map[common.Address]*ecdsa.PrivateKey, len(keys)),
		balance:     new(big.Int).Mul(new(big.Int).SetUint64(config.Balance), big.NewInt(params.Ether)),
		unlocked:    mapset.NewSet(),
		impersonate: config.Impersonate,
	}
	for _, key := range keys {
		addr := crypto.PubkeyToAddress(key.PublicKey)
		m.accounts = append(m.accounts, &Account{Address: addr, Key: key})
		m.keys[addr] = key
		m.unlocked.Add(addr)
	}
	for _, addr := range config.Unlocked {
		m.unlocked.Add(addr)
	}
	log.Debug("Derived development accounts", "count", len(keys), "path", config.HDPath)
	return m, nil
}

// Mnemonic returns the mnemonic the accounts were derived from.
func (m *Manager) Mnemonic() string { return m.mnemonic }

// Accounts returns the derived accounts in derivation order.
func (m *Manager) Accounts() []*Account { return m.accounts }

// Addresses returns the addresses of the derived accounts.
func (m *Manager) Addresses() []common.Address {
	addrs := make([]common.Address, len(m.accounts))
	for i, acct := range m.accounts {
		addrs[i] = acct.Address
	}
	return addrs
}

// Alloc returns the genesis allocation funding every derived account.
func (m *Manager) Alloc() gethtypes.GenesisAlloc {
	alloc := make(gethtypes.GenesisAlloc, len(m.accounts))
	for _, acct := range m.accounts {
		alloc[acct.Address] = gethtypes.Account{Balance: new(big.Int).Set(m.balance)}
	}
	return alloc
}

// Key returns the private key of addr, if it is a derived account.
func (m *Manager) Key(addr common.Address) (*ecdsa.PrivateKey, bool) {
	key, ok := m.keys[addr]
	return key, ok
}

// CanSend reports whether transactions from addr are accepted without a
// signature.
func (m *Manager) CanSend(addr common.Address) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.impersonate || m.unlocked.Contains(addr)
}

// Unlock accepts transactions from addr.
func (m *Manager) Unlock(addr common.Address) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.unlocked.Add(addr)
}

// Lock stops accepting unsigned transactions from addr.
func (m *Manager) Lock(addr common.Address) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.unlocked.Remove(addr)
}

// SignTx signs tx with the key of addr.
func (m *Manager) SignTx(addr common.Address, tx *gethtypes.Transaction, signer gethtypes.Signer) (*gethtypes.Transaction, error) {
	key, err := m.signingKey(addr)
	if err != nil {
		return nil, err
	}
	return gethtypes.SignTx(tx, signer, key)
}

// SignText signs the keccak256 of the prefixed message, as eth_sign does.
func (m *Manager) SignText(addr common.Address, text []byte) ([]byte, error) {
	key, err := m.signingKey(addr)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(gethaccounts.TextHash(text), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (m *Manager) signingKey(addr common.Address) (*ecdsa.PrivateKey, error) {
	key, ok := m.keys[addr]
	if !ok {
		return nil, ErrUnknownAccount
	}
	m.lock.RLock()
	defer m.lock.RUnlock()

	if !m.unlocked.Contains(addr) {
		return nil, ErrLocked
	}
	return key, nil
}
