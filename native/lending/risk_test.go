package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestAccountRiskNoDebt(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "ETH", eth(2)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	view, err := fx.engine.AccountRisk("alice")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if view.HealthFactor != nil {
		t.Fatalf("expected nil health factor, got %v", view.HealthFactor)
	}
	if view.Liquidatable() {
		t.Fatal("debt-free account flagged liquidatable")
	}

	// 2 ETH at 2000 USD: 4000 USD of collateral, 3000 of capacity at the
	// 75% collateral factor.
	wantCollateral := new(big.Int).Mul(big.NewInt(4000), usdScale)
	if view.CollateralUSD.Cmp(wantCollateral) != 0 {
		t.Fatalf("collateral = %s, want %s", view.CollateralUSD, wantCollateral)
	}
	wantCapacity := new(big.Int).Mul(big.NewInt(3000), usdScale)
	if view.BorrowCapacityUSD.Cmp(wantCapacity) != 0 {
		t.Fatalf("capacity = %s, want %s", view.BorrowCapacityUSD, wantCapacity)
	}
}

func TestHealthFactorBoundary(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(20_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := fx.engine.Deposit("bob", "ETH", eth(5)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := fx.engine.Borrow("bob", "USDU", usdu(7500)); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// At 1875 USD the weighted collateral is 5 * 1875 * 0.80 = 7500 USD,
	// exactly matching the debt.
	fx.setPrice("ETH", "1875")

	view, err := fx.engine.AccountRisk("bob")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if view.HealthFactor == nil || view.HealthFactor.Cmp(ratOne) != 0 {
		t.Fatalf("health factor = %v, want exactly 1", view.HealthFactor)
	}
	if view.Liquidatable() {
		t.Fatal("health factor of exactly 1 must not be liquidatable")
	}
	if _, err := fx.engine.Liquidate("carol", "bob", "USDU", "ETH", usdu(100)); !errors.Is(err, ErrPositionHealthy) {
		t.Fatalf("expected healthy position error, got %v", err)
	}

	// Capacity is already exhausted and floors at zero instead of going
	// negative.
	if view.BorrowCapacityUSD.Sign() != 0 {
		t.Fatalf("capacity = %s, want 0", view.BorrowCapacityUSD)
	}

	// One cent below the boundary flips the position to liquidatable.
	fx.setPrice("ETH", "1874.99")
	view, err = fx.engine.AccountRisk("bob")
	if err != nil {
		t.Fatalf("risk: %v", err)
	}
	if !view.Liquidatable() {
		t.Fatalf("expected liquidatable below boundary, hf=%v", view.HealthFactor)
	}
}

func TestAccountRiskSkipsUntouchedAssets(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.engine.Deposit("alice", "USDU", usdu(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// No ETH exposure, so a dead ETH feed must not block the account.
	fx.now = fx.now.Add(10 * time.Minute)
	fx.prices.Set("USDU", fx.rates["USDU"], fx.now)

	if _, err := fx.engine.AccountRisk("alice"); err != nil {
		t.Fatalf("risk with dead unrelated feed: %v", err)
	}
}
