package lending

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
)

// LiquidationResult reports the outcome of a completed liquidation: the
// persisted record and the borrower's health factor after the seizure (nil
// when the remaining debt is zero).
type LiquidationResult struct {
	Record       LiquidationRecord
	HealthFactor *big.Rat
}

// Liquidate lets the liquidator repay part of an undercollateralized
// borrower's debt in exchange for a bonus-priced slice of the borrower's
// collateral. The repayment is clamped to the close factor share of the
// outstanding debt.
func (e *Engine) Liquidate(liquidator, borrower, debtSymbol, collateralSymbol string, repayAmount *big.Int) (*LiquidationResult, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	liquidator, err := normaliseAccount(liquidator)
	if err != nil {
		return nil, err
	}
	borrower, err = normaliseAccount(borrower)
	if err != nil {
		return nil, err
	}
	debtAsset, err := e.lookupAsset(debtSymbol, false)
	if err != nil {
		return nil, err
	}
	collateralAsset, err := e.lookupAsset(collateralSymbol, false)
	if err != nil {
		return nil, err
	}
	if repayAmount == nil || repayAmount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	debtPool, debtFees, debtInterest, err := e.accruedPool(debtAsset)
	if err != nil {
		return nil, err
	}
	collateralPool, collateralFees := debtPool, debtFees
	sameAsset := debtAsset.Symbol == collateralAsset.Symbol
	var collateralInterest *big.Int
	if !sameAsset {
		collateralPool, collateralFees, collateralInterest, err = e.accruedPool(collateralAsset)
		if err != nil {
			return nil, err
		}
	}

	debtPosition, err := e.loadPosition(borrower, debtAsset.Symbol)
	if err != nil {
		return nil, err
	}
	collateralPosition := debtPosition
	if !sameAsset {
		collateralPosition, err = e.loadPosition(borrower, collateralAsset.Symbol)
		if err != nil {
			return nil, err
		}
	}

	debt := amountFromShares(debtPosition.ScaledDebt, debtPool.BorrowIndex)
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	deposit := amountFromShares(collateralPosition.SupplyShares, collateralPool.SupplyIndex)

	overrides := map[string]effOverride{
		debtAsset.Symbol: {debt: debt},
	}
	if sameAsset {
		overrides[debtAsset.Symbol] = effOverride{debt: debt, deposit: deposit}
	} else {
		overrides[collateralAsset.Symbol] = effOverride{deposit: deposit}
	}
	view, err := e.riskLocked(borrower, overrides)
	if err != nil {
		return nil, err
	}
	if !view.Liquidatable() {
		return nil, ErrPositionHealthy
	}

	maxRepay := bpsShare(debt, e.params.CloseFactorBps)
	repay := new(big.Int).Set(repayAmount)
	if repay.Cmp(maxRepay) > 0 {
		repay.Set(maxRepay)
	}
	if repay.Sign() == 0 {
		return nil, ErrZeroAmount
	}

	debtRate, err := e.quote(debtAsset.Symbol)
	if err != nil {
		return nil, err
	}
	collateralRate, err := e.quote(collateralAsset.Symbol)
	if err != nil {
		return nil, err
	}
	repayUSD := usdValue(repay, debtAsset.Decimals, debtRate)
	seizeUSD := new(big.Int).Mul(repayUSD, new(big.Int).SetUint64(basisPoints.Uint64()+e.params.LiquidationBonusBps))
	seizeUSD.Quo(seizeUSD, basisPoints)
	seize := amountFromUSD(seizeUSD, collateralAsset.Decimals, collateralRate)

	// A dust repayment can floor the seizure to zero once converted into
	// collateral units.
	if seize.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if seize.Cmp(deposit) > 0 {
		return nil, ErrInsufficientCollateral
	}
	if seize.Cmp(availableLiquidity(collateralPool)) > 0 {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.bank.TransferIn(debtAsset.Symbol, liquidator, repay); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.bank.TransferOut(collateralAsset.Symbol, liquidator, seize); err != nil {
		// Best-effort refund of the repayment already collected.
		_ = e.bank.TransferOut(debtAsset.Symbol, liquidator, repay)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	mintErr := e.mintRewards("", nil, debtInterest)
	if mintErr == nil && !sameAsset {
		mintErr = e.mintRewards("", nil, collateralInterest)
	}
	if mintErr != nil {
		// Best-effort unwind of both transfer legs.
		_ = e.bank.TransferIn(collateralAsset.Symbol, liquidator, seize)
		_ = e.bank.TransferOut(debtAsset.Symbol, liquidator, repay)
		return nil, mintErr
	}

	settleDebt(debtPosition, debtPool.BorrowIndex, debt, repay)
	burned := sharesFromAmountCeil(seize, collateralPool.SupplyIndex)
	if burned.Cmp(collateralPosition.SupplyShares) > 0 {
		burned = new(big.Int).Set(collateralPosition.SupplyShares)
	}
	collateralPosition.SupplyShares = new(big.Int).Sub(collateralPosition.SupplyShares, burned)

	debtPool.TotalBorrowed = new(big.Int).Sub(debtPool.TotalBorrowed, repay)
	if debtPool.TotalBorrowed.Sign() < 0 {
		debtPool.TotalBorrowed = big.NewInt(0)
	}
	collateralPool.TotalDeposited = new(big.Int).Sub(collateralPool.TotalDeposited, seize)

	if err := e.persist(debtAsset.Symbol, debtPool, debtFees, borrower, debtPosition); err != nil {
		return nil, err
	}
	if !sameAsset {
		if err := e.persist(collateralAsset.Symbol, collateralPool, collateralFees, borrower, collateralPosition); err != nil {
			return nil, err
		}
	}

	record := LiquidationRecord{
		ID:               uuid.NewString(),
		Liquidator:       liquidator,
		Borrower:         borrower,
		DebtAsset:        debtAsset.Symbol,
		CollateralAsset:  collateralAsset.Symbol,
		DebtRepaid:       new(big.Int).Set(repay),
		CollateralSeized: new(big.Int).Set(seize),
		Timestamp:        e.now().Unix(),
	}
	if err := e.state.AppendLiquidation(record); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LendingLiquidated{
		Liquidator:       liquidator,
		Borrower:         borrower,
		DebtAsset:        debtAsset.Symbol,
		CollateralAsset:  collateralAsset.Symbol,
		DebtRepaid:       new(big.Int).Set(repay),
		CollateralSeized: new(big.Int).Set(seize),
		RecordID:         record.ID,
	})

	after, err := e.riskLocked(borrower, nil)
	if err != nil {
		return &LiquidationResult{Record: record}, nil
	}
	return &LiquidationResult{Record: record, HealthFactor: after.HealthFactor}, nil
}
