package lending

import "math/big"

// PoolView is a read-only snapshot of one money market, including the rates
// implied by its current utilisation.
type PoolView struct {
	Asset          string
	TotalDeposited *big.Int
	TotalBorrowed  *big.Int
	AvailableLiq   *big.Int
	UtilisationBps uint64
	BorrowRateBps  uint64
	SupplyRateBps  uint64
	SupplyIndex    *big.Int
	BorrowIndex    *big.Int
	ReserveFees    *big.Int
	LastAccrual    uint64
}

// PositionView is a read-only snapshot of one account's exposure in one
// asset, with shares resolved into effective base-unit amounts.
type PositionView struct {
	Account  string
	Asset    string
	Deposit  *big.Int
	Debt     *big.Int
	Interest *big.Int
}

// PoolView returns a snapshot of the asset's pool from committed state. The
// snapshot does not accrue pending interest.
func (e *Engine) PoolView(symbol string) (PoolView, error) {
	if e == nil || e.state == nil {
		return PoolView{}, errNilState
	}
	asset, err := e.lookupAsset(symbol, false)
	if err != nil {
		return PoolView{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, err := e.loadPool(asset.Symbol)
	if err != nil {
		return PoolView{}, err
	}
	fees, err := e.loadFees(asset.Symbol)
	if err != nil {
		return PoolView{}, err
	}
	return PoolView{
		Asset:          asset.Symbol,
		TotalDeposited: pool.TotalDeposited,
		TotalBorrowed:  pool.TotalBorrowed,
		AvailableLiq:   availableLiquidity(pool),
		UtilisationBps: UtilisationBps(pool.TotalBorrowed, pool.TotalDeposited),
		BorrowRateBps:  e.model.BorrowRateBps(pool.TotalBorrowed, pool.TotalDeposited),
		SupplyRateBps:  e.model.SupplyRateBps(pool.TotalBorrowed, pool.TotalDeposited, asset.ReserveFactorBps),
		SupplyIndex:    pool.SupplyIndex,
		BorrowIndex:    pool.BorrowIndex,
		ReserveFees:    fees.ReserveFees,
		LastAccrual:    pool.LastAccrual,
	}, nil
}

// PositionView returns the account's effective deposit and debt in the asset
// at the committed indexes.
func (e *Engine) PositionView(account, symbol string) (PositionView, error) {
	if e == nil || e.state == nil {
		return PositionView{}, errNilState
	}
	account, err := normaliseAccount(account)
	if err != nil {
		return PositionView{}, err
	}
	asset, err := e.lookupAsset(symbol, false)
	if err != nil {
		return PositionView{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool, err := e.loadPool(asset.Symbol)
	if err != nil {
		return PositionView{}, err
	}
	position, err := e.loadPosition(account, asset.Symbol)
	if err != nil {
		return PositionView{}, err
	}
	debt := amountFromShares(position.ScaledDebt, pool.BorrowIndex)
	interest := new(big.Int).Sub(debt, position.Principal)
	if interest.Sign() < 0 {
		interest = big.NewInt(0)
	}
	return PositionView{
		Account:  account,
		Asset:    asset.Symbol,
		Deposit:  amountFromShares(position.SupplyShares, pool.SupplyIndex),
		Debt:     debt,
		Interest: interest,
	}, nil
}
