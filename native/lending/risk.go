package lending

import (
	"fmt"
	"math/big"
)

var ratOne = big.NewRat(1, 1)

// RiskView is a USD-denominated snapshot of an account's solvency. All
// aggregates carry 18 decimals. HealthFactor is nil when the account has no
// debt, which the protocol treats as infinitely healthy.
type RiskView struct {
	CollateralUSD         *big.Int
	WeightedCollateralUSD *big.Int
	DebtUSD               *big.Int
	BorrowCapacityUSD     *big.Int
	HealthFactor          *big.Rat
}

// Liquidatable reports whether the position can be liquidated. Only a health
// factor strictly below 1 qualifies.
func (v RiskView) Liquidatable() bool {
	return v.HealthFactor != nil && v.HealthFactor.Cmp(ratOne) < 0
}

// effOverride substitutes in-flight effective balances for one asset when an
// operation evaluates risk against a pool it has already accrued in memory.
type effOverride struct {
	deposit *big.Int
	debt    *big.Int
}

// AccountRisk computes the account's current risk view over every registered
// asset using the latest committed state.
func (e *Engine) AccountRisk(account string) (RiskView, error) {
	if e == nil || e.state == nil {
		return RiskView{}, errNilState
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return RiskView{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.riskLocked(account, nil)
}

// riskLocked walks the registry and aggregates the account's deposits and
// debts into USD. Assets with no exposure are skipped so an unused asset with
// a stale feed cannot block the account. Callers must hold at least the read
// lock.
func (e *Engine) riskLocked(account string, overrides map[string]effOverride) (RiskView, error) {
	view := RiskView{
		CollateralUSD:         big.NewInt(0),
		WeightedCollateralUSD: big.NewInt(0),
		DebtUSD:               big.NewInt(0),
		BorrowCapacityUSD:     big.NewInt(0),
	}
	capacity := big.NewInt(0)
	for _, symbol := range e.registry.Symbols() {
		asset, ok := e.registry.Get(symbol)
		if !ok {
			continue
		}
		pool, err := e.loadPool(symbol)
		if err != nil {
			return RiskView{}, err
		}
		position, err := e.loadPosition(account, symbol)
		if err != nil {
			return RiskView{}, err
		}
		deposit := amountFromShares(position.SupplyShares, pool.SupplyIndex)
		debt := amountFromShares(position.ScaledDebt, pool.BorrowIndex)
		if override, ok := overrides[symbol]; ok {
			if override.deposit != nil {
				deposit = override.deposit
			}
			if override.debt != nil {
				debt = override.debt
			}
		}
		if deposit.Sign() == 0 && debt.Sign() == 0 {
			continue
		}
		rate, err := e.quote(symbol)
		if err != nil {
			return RiskView{}, err
		}
		if deposit.Sign() > 0 {
			depositUSD := usdValue(deposit, asset.Decimals, rate)
			view.CollateralUSD.Add(view.CollateralUSD, depositUSD)
			view.WeightedCollateralUSD.Add(view.WeightedCollateralUSD, bpsShare(depositUSD, asset.LiquidationThresholdBps))
			capacity.Add(capacity, bpsShare(depositUSD, asset.CollateralFactorBps))
		}
		if debt.Sign() > 0 {
			view.DebtUSD.Add(view.DebtUSD, usdValue(debt, asset.Decimals, rate))
		}
	}
	capacity.Sub(capacity, view.DebtUSD)
	if capacity.Sign() > 0 {
		view.BorrowCapacityUSD = capacity
	}
	if view.DebtUSD.Sign() > 0 {
		view.HealthFactor = new(big.Rat).SetFrac(view.WeightedCollateralUSD, view.DebtUSD)
	}
	return view, nil
}

// quote fetches a fresh oracle rate for the symbol. A missing feed, a
// non-positive rate or a quote older than the configured maximum age all
// surface as ErrStalePrice.
func (e *Engine) quote(symbol string) (*big.Rat, error) {
	if e.prices == nil {
		return nil, fmt.Errorf("%w: %s: no oracle configured", ErrStalePrice, symbol)
	}
	q, err := e.prices.Price(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStalePrice, symbol, err)
	}
	if q.Rate == nil || q.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s: non-positive rate", ErrStalePrice, symbol)
	}
	if e.params.MaxQuoteAge > 0 && e.now().Sub(q.Timestamp) > e.params.MaxQuoteAge {
		return nil, fmt.Errorf("%w: %s: quote from %s", ErrStalePrice, symbol, q.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	return q.Rate, nil
}
