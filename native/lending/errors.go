package lending

import "errors"

var (
	// ErrUnsupportedAsset is returned when an operation references an asset
	// that was never registered.
	ErrUnsupportedAsset = errors.New("lending: unsupported asset")
	// ErrAssetInactive is returned when a deposit or borrow targets a
	// deactivated asset.
	ErrAssetInactive = errors.New("lending: asset inactive")
	// ErrZeroAmount is returned when the requested amount is not positive.
	ErrZeroAmount = errors.New("lending: amount must be positive")
	// ErrInsufficientBalance is returned when a withdrawal exceeds the
	// account's effective deposit.
	ErrInsufficientBalance = errors.New("lending: insufficient balance")
	// ErrInsufficientLiquidity is returned when a withdrawal or borrow would
	// exceed the pool's unborrowed liquidity.
	ErrInsufficientLiquidity = errors.New("lending: insufficient pool liquidity")
	// ErrExceedsBorrowCapacity is returned when a borrow would exceed the
	// account's remaining borrowing capacity.
	ErrExceedsBorrowCapacity = errors.New("lending: exceeds borrowing capacity")
	// ErrUndercollateralized is returned when a withdrawal would drop the
	// account's health factor below 1.
	ErrUndercollateralized = errors.New("lending: withdrawal would undercollateralize position")
	// ErrPositionHealthy is returned when a liquidation targets a position
	// whose health factor is at or above 1.
	ErrPositionHealthy = errors.New("lending: position not eligible for liquidation")
	// ErrInsufficientCollateral is returned when a liquidation's seizure
	// exceeds the borrower's deposit in the chosen collateral asset.
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral for seizure")
	// ErrStalePrice is returned when an oracle price needed by the operation
	// is missing or older than the configured maximum age.
	ErrStalePrice = errors.New("lending: stale oracle price")
	// ErrTransferFailed is returned when the external token transfer
	// primitive reports a failure.
	ErrTransferFailed = errors.New("lending: token transfer failed")
	// ErrNoDebt is returned when a repayment or liquidation targets an
	// account with no outstanding debt in the asset.
	ErrNoDebt = errors.New("lending: no outstanding debt")

	errNilState        = errors.New("lending: state not configured")
	errAssetExists     = errors.New("lending: asset already registered")
	errInvalidAsset    = errors.New("lending: invalid asset parameters")
	errRewardMint      = errors.New("lending: reward mint failed")
	errAccountRequired = errors.New("lending: account required")
)
