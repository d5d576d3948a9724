package events

import "math/big"

const (
	// TypeLendingDeposited is emitted when collateral is supplied to a pool.
	TypeLendingDeposited = "lending.deposited"
	// TypeLendingWithdrawn is emitted when a deposit is redeemed.
	TypeLendingWithdrawn = "lending.withdrawn"
	// TypeLendingBorrowed is emitted when liquidity is borrowed from a pool.
	TypeLendingBorrowed = "lending.borrowed"
	// TypeLendingRepaid is emitted when outstanding debt is repaid.
	TypeLendingRepaid = "lending.repaid"
	// TypeLendingLiquidated is emitted when an undercollateralized position
	// is forcibly closed.
	TypeLendingLiquidated = "lending.liquidated"
	// TypeLendingRewardMinted is emitted when protocol reward tokens are
	// minted against deposits or accrued interest.
	TypeLendingRewardMinted = "lending.reward.minted"
	// TypeLendingFeesWithdrawn is emitted when accrued reserve fees are paid
	// out to an operator recipient.
	TypeLendingFeesWithdrawn = "lending.fees.withdrawn"
)

// LendingDeposited captures a successful deposit together with the reward
// minted for it.
type LendingDeposited struct {
	Account      string
	Asset        string
	Amount       *big.Int
	RewardMinted *big.Int
}

// EventType implements the events.Event interface.
func (LendingDeposited) EventType() string { return TypeLendingDeposited }

// LendingWithdrawn captures a successful withdrawal.
type LendingWithdrawn struct {
	Account string
	Asset   string
	Amount  *big.Int
}

// EventType implements the events.Event interface.
func (LendingWithdrawn) EventType() string { return TypeLendingWithdrawn }

// LendingBorrowed captures a successful borrow and the borrow rate in force
// immediately after it.
type LendingBorrowed struct {
	Account string
	Asset   string
	Amount  *big.Int
	RateBps uint64
}

// EventType implements the events.Event interface.
func (LendingBorrowed) EventType() string { return TypeLendingBorrowed }

// LendingRepaid captures a repayment split into its interest and principal
// portions.
type LendingRepaid struct {
	Account  string
	Asset    string
	Amount   *big.Int
	Interest *big.Int
}

// EventType implements the events.Event interface.
func (LendingRepaid) EventType() string { return TypeLendingRepaid }

// LendingLiquidated captures a forced close of an unhealthy position.
type LendingLiquidated struct {
	Liquidator       string
	Borrower         string
	DebtAsset        string
	CollateralAsset  string
	DebtRepaid       *big.Int
	CollateralSeized *big.Int
	RecordID         string
}

// EventType implements the events.Event interface.
func (LendingLiquidated) EventType() string { return TypeLendingLiquidated }

// LendingRewardMinted captures a reward-token mint.
type LendingRewardMinted struct {
	Recipient string
	Amount    *big.Int
}

// EventType implements the events.Event interface.
func (LendingRewardMinted) EventType() string { return TypeLendingRewardMinted }

// LendingFeesWithdrawn captures a reserve-fee payout.
type LendingFeesWithdrawn struct {
	Recipient string
	Asset     string
	Amount    *big.Int
}

// EventType implements the events.Event interface.
func (LendingFeesWithdrawn) EventType() string { return TypeLendingFeesWithdrawn }
