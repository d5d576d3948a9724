package lending

import "math/big"

// Asset describes a supported market asset together with its governance
// controlled risk parameters. An asset is registered once and is immutable
// afterwards except for the Active flag.
type Asset struct {
	// Symbol is the canonical identifier of the asset within the protocol.
	Symbol string
	// Decimals is the native fixed-point precision of the asset; one whole
	// unit equals 10^Decimals base units.
	Decimals uint8
	// CollateralFactorBps is the maximum loan-to-value permitted when this
	// asset backs a borrow, expressed in basis points.
	CollateralFactorBps uint64
	// LiquidationThresholdBps is the LTV at which a position backed by this
	// asset becomes eligible for liquidation. Always >= CollateralFactorBps.
	LiquidationThresholdBps uint64
	// ReserveFactorBps is the share of accrued interest routed to the
	// protocol reserve, expressed in basis points.
	ReserveFactorBps uint64
	// Active signals whether the asset accepts new deposits and borrows.
	// Existing balances may always be withdrawn or repaid.
	Active bool
}

// PoolState captures the global accounting state of one asset pool. Amounts
// are denominated in the asset's base units and expressed as big integers.
type PoolState struct {
	// TotalDeposited is the aggregate liquidity supplied by depositors,
	// accrued interest included.
	TotalDeposited *big.Int
	// TotalBorrowed tracks the outstanding borrowed amount across all
	// accounts, accrued interest included.
	TotalBorrowed *big.Int
	// SupplyIndex is the cumulative interest index applied to supplier
	// balances, ray scaled.
	SupplyIndex *big.Int
	// BorrowIndex is the cumulative interest index applied to borrower debt,
	// ray scaled.
	BorrowIndex *big.Int
	// LastAccrual records the unix timestamp when the indexes were last
	// refreshed.
	LastAccrual uint64
}

// Clone returns a deep copy of the pool state.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := &PoolState{LastAccrual: p.LastAccrual}
	if p.TotalDeposited != nil {
		clone.TotalDeposited = new(big.Int).Set(p.TotalDeposited)
	}
	if p.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(p.TotalBorrowed)
	}
	if p.SupplyIndex != nil {
		clone.SupplyIndex = new(big.Int).Set(p.SupplyIndex)
	}
	if p.BorrowIndex != nil {
		clone.BorrowIndex = new(big.Int).Set(p.BorrowIndex)
	}
	return clone
}

// AssetPosition maintains one account's balances in a single asset. Effective
// balances are derived from the ray-scaled shares and the pool indexes so that
// interest accrues without per-account iteration.
type AssetPosition struct {
	// SupplyShares is the ray-scaled deposit balance; the effective deposit
	// equals SupplyShares * SupplyIndex / ray.
	SupplyShares *big.Int
	// ScaledDebt is the ray-scaled debt balance; the effective debt equals
	// ScaledDebt * BorrowIndex / ray.
	ScaledDebt *big.Int
	// Principal tracks the raw borrowed amount net of principal repayments.
	// The spread between effective debt and Principal is accrued interest.
	Principal *big.Int
}

// Clone returns a deep copy of the position.
func (p *AssetPosition) Clone() *AssetPosition {
	if p == nil {
		return nil
	}
	clone := &AssetPosition{}
	if p.SupplyShares != nil {
		clone.SupplyShares = new(big.Int).Set(p.SupplyShares)
	}
	if p.ScaledDebt != nil {
		clone.ScaledDebt = new(big.Int).Set(p.ScaledDebt)
	}
	if p.Principal != nil {
		clone.Principal = new(big.Int).Set(p.Principal)
	}
	return clone
}

// FeeAccrual captures the in-flight protocol reserve totals for one asset.
type FeeAccrual struct {
	ReserveFees *big.Int
}

// Clone returns a deep copy of the fee accrual structure.
func (f *FeeAccrual) Clone() *FeeAccrual {
	if f == nil {
		return nil
	}
	clone := &FeeAccrual{}
	if f.ReserveFees != nil {
		clone.ReserveFees = new(big.Int).Set(f.ReserveFees)
	}
	return clone
}

// LiquidationRecord is the immutable log entry appended for every successful
// liquidation.
type LiquidationRecord struct {
	ID               string
	Liquidator       string
	Borrower         string
	DebtAsset        string
	CollateralAsset  string
	DebtRepaid       *big.Int
	CollateralSeized *big.Int
	Timestamp        int64
}

// State is the persistence boundary the engine operates against. Getters must
// return independent copies so staged mutations never leak into committed
// state before the corresponding Put.
type State interface {
	Pool(asset string) (*PoolState, error)
	PutPool(asset string, pool *PoolState) error
	Position(account, asset string) (*AssetPosition, error)
	PutPosition(account, asset string, position *AssetPosition) error
	Fees(asset string) (*FeeAccrual, error)
	PutFees(asset string, fees *FeeAccrual) error
	AppendLiquidation(record LiquidationRecord) error
}
