package bank

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Transferor is the external token transfer primitive consumed by the ledger.
// TransferIn moves amount of asset from the account into the pool's custody;
// TransferOut releases custody back to the account. Both are atomic and are
// invoked only after every risk and liquidity check has passed.
type Transferor interface {
	TransferIn(asset, from string, amount *big.Int) error
	TransferOut(asset, to string, amount *big.Int) error
}

// Vault is an in-memory Transferor. It backs tests and the practice-mode
// deployment, where token custody is an internal counter rather than an
// on-chain transfer. The ledger logic is identical in both modes; only this
// capability is swapped.
type Vault struct {
	mu sync.Mutex
	// balances maps asset -> account -> free balance.
	balances map[string]map[string]*big.Int
	// custody maps asset -> amount held by the pool.
	custody map[string]*big.Int
}

// NewVault constructs an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[string]map[string]*big.Int),
		custody:  make(map[string]*big.Int),
	}
}

func vaultKey(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }

func (v *Vault) accountBalance(asset, account string) *big.Int {
	perAsset, ok := v.balances[asset]
	if !ok {
		perAsset = make(map[string]*big.Int)
		v.balances[asset] = perAsset
	}
	balance, ok := perAsset[account]
	if !ok {
		balance = big.NewInt(0)
		perAsset[account] = balance
	}
	return balance
}

func (v *Vault) custodyBalance(asset string) *big.Int {
	held, ok := v.custody[asset]
	if !ok {
		held = big.NewInt(0)
		v.custody[asset] = held
	}
	return held
}

// Credit adds amount of asset to the account's free balance. Used to seed
// test fixtures and the practice-mode faucet.
func (v *Vault) Credit(asset, account string, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("bank: vault not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: credit amount must be positive")
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return fmt.Errorf("bank: account required")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.accountBalance(vaultKey(asset), account)
	balance.Add(balance, amount)
	return nil
}

// Balance reports the account's free balance in asset.
func (v *Vault) Balance(asset, account string) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.accountBalance(vaultKey(asset), strings.TrimSpace(account)))
}

// Custody reports the amount of asset currently held by the pool.
func (v *Vault) Custody(asset string) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.custodyBalance(vaultKey(asset)))
}

// TransferIn implements the Transferor interface.
func (v *Vault) TransferIn(asset, from string, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("bank: vault not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultKey(asset)
	balance := v.accountBalance(key, strings.TrimSpace(from))
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("bank: insufficient funds for %s", from)
	}
	balance.Sub(balance, amount)
	held := v.custodyBalance(key)
	held.Add(held, amount)
	return nil
}

// TransferOut implements the Transferor interface.
func (v *Vault) TransferOut(asset, to string, amount *big.Int) error {
	if v == nil {
		return fmt.Errorf("bank: vault not configured")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: transfer amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	key := vaultKey(asset)
	held := v.custodyBalance(key)
	if held.Cmp(amount) < 0 {
		return fmt.Errorf("bank: custody underfunded for %s", key)
	}
	held.Sub(held, amount)
	balance := v.accountBalance(key, strings.TrimSpace(to))
	balance.Add(balance, amount)
	return nil
}
