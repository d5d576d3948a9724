package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Quote captures a USD exchange rate for a single asset along with the
// timestamp reported by the upstream source and the source identifier.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.Rate != nil {
		clone.Rate = new(big.Rat).Set(q.Rate)
	}
	return clone
}

// PriceOracle resolves a USD rate for the supplied asset symbol.
type PriceOracle interface {
	Price(symbol string) (Quote, error)
}

// ErrNoFreshQuote indicates that no quote within the configured freshness
// window could be retrieved.
var ErrNoFreshQuote = errors.New("oracle: no fresh quote available")

// Aggregator consults a list of registered oracles in priority order until a
// fresh quote is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	oracles  map[string]PriceOracle
	maxAge   time.Duration
}

// NewAggregator constructs an aggregator with the provided priority and
// freshness window.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		oracles:  make(map[string]PriceOracle),
		maxAge:   maxAge,
	}
}

// SetMaxAge updates the freshness window used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// Register adds or replaces an oracle under the supplied identifier.
// Identifiers are stored in lowercase so lookups remain consistent regardless
// of configuration casing.
func (a *Aggregator) Register(name string, oracle PriceOracle) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.oracles[trimmed] = oracle
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// Price fetches a rate from the configured oracles respecting the priority
// ordering. The aggregator enforces the freshness window and returns a
// defensive copy of the upstream quote.
func (a *Aggregator) Price(symbol string) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle: aggregator not configured")
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("oracle: symbol required")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	a.mu.RUnlock()

	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.oracles[strings.ToLower(name)]
		a.mu.RUnlock()
		if source == nil {
			continue
		}
		quote, err := source.Price(sym)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: %s returned invalid rate", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// ManualOracle provides an in-memory oracle implementation used for tests and
// manual overrides during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewManualOracle constructs an empty manual oracle instance.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]Quote)}
}

// SetDecimal records the supplied decimal rate for the symbol using the
// provided timestamp.
func (m *ManualOracle) SetDecimal(symbol, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle: manual oracle not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("oracle: rate must be positive")
	}
	m.Set(symbol, rat, ts)
	return nil
}

// Set stores the provided rational rate for the symbol.
func (m *ManualOracle) Set(symbol string, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil {
		return
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return
	}
	m.mu.Lock()
	m.quotes[sym] = Quote{Rate: new(big.Rat).Set(rate), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// Price retrieves the stored rate for the symbol.
func (m *ManualOracle) Price(symbol string) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("oracle: manual oracle not configured")
	}
	sym := normaliseSymbol(symbol)
	m.mu.RLock()
	stored, ok := m.quotes[sym]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("oracle: quote for %s not found", sym)
	}
	return stored.Clone(), nil
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
