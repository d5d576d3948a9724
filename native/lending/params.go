package lending

import "time"

// Params groups the protocol-wide safety limits applied by the engine.
type Params struct {
	// CloseFactorBps bounds the share of a borrower's debt a single
	// liquidation call may repay, expressed in basis points.
	CloseFactorBps uint64
	// LiquidationBonusBps is the extra collateral percentage awarded to a
	// liquidator above the value repaid, expressed in basis points.
	LiquidationBonusBps uint64
	// MaxQuoteAge is the oracle freshness window; older quotes abort the
	// operation rather than feed the risk engine.
	MaxQuoteAge time.Duration
	// RewardRateBps is the reward-token conversion ratio applied to new
	// deposit principal, expressed in basis points (10000 = 1:1).
	RewardRateBps uint64
	// RewardTreasury receives the reward minted against accrued interest.
	RewardTreasury string
}

// DefaultParams returns the protocol defaults: 50% close factor, 5%
// liquidation bonus, a two minute quote window and a 1:1 reward ratio.
func DefaultParams() Params {
	return Params{
		CloseFactorBps:      5000,
		LiquidationBonusBps: 500,
		MaxQuoteAge:         2 * time.Minute,
		RewardRateBps:       10_000,
	}
}

// Normalise clamps out-of-range basis points and fills zero values with the
// defaults.
func (p Params) Normalise() Params {
	out := p
	def := DefaultParams()
	if out.CloseFactorBps == 0 || out.CloseFactorBps > 10_000 {
		out.CloseFactorBps = def.CloseFactorBps
	}
	if out.LiquidationBonusBps > 10_000 {
		out.LiquidationBonusBps = def.LiquidationBonusBps
	}
	if out.MaxQuoteAge <= 0 {
		out.MaxQuoteAge = def.MaxQuoteAge
	}
	if out.RewardRateBps > 10_000 {
		out.RewardRateBps = def.RewardRateBps
	}
	return out
}
