package lending

import (
	"math/big"
	"sync"
)

// RewardMinter is the mint authority for the protocol reward token. The
// engine calls it before committing any ledger state so a mint failure aborts
// the whole operation.
type RewardMinter interface {
	Mint(recipient string, amount *big.Int) error
}

// MemoryMinter accumulates reward balances in process memory. It backs tests
// and practice deployments that have no on-chain token module.
type MemoryMinter struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	total    *big.Int
}

func NewMemoryMinter() *MemoryMinter {
	return &MemoryMinter{balances: make(map[string]*big.Int), total: big.NewInt(0)}
}

func (m *MemoryMinter) Mint(recipient string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[recipient]
	if !ok {
		balance = big.NewInt(0)
		m.balances[recipient] = balance
	}
	balance.Add(balance, amount)
	m.total.Add(m.total, amount)
	return nil
}

// BalanceOf returns the rewards minted to the recipient so far.
func (m *MemoryMinter) BalanceOf(recipient string) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[recipient]
	if !ok {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// TotalMinted returns the aggregate supply minted across all recipients.
func (m *MemoryMinter) TotalMinted() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.total)
}
