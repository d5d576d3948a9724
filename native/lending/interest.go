package lending

import "math/big"

// InterestModel encapsulates the two-segment kink curve that shapes how
// borrow rates react to pool utilisation. All parameters and results are
// expressed in basis points so rate arithmetic stays in integers.
type InterestModel struct {
	// BaseRateBps is the borrow rate applied at zero utilisation.
	BaseRateBps uint64
	// Slope1Bps is the borrow rate reached at the kink, on top of the base.
	Slope1Bps uint64
	// Slope2Bps is the additional rate applied across the segment between
	// the kink and full utilisation.
	Slope2Bps uint64
	// KinkBps is the utilisation at which the curve steepens.
	KinkBps uint64
}

// NewInterestModel constructs an interest model from basis-point parameters.
func NewInterestModel(baseRateBps, slope1Bps, slope2Bps, kinkBps uint64) *InterestModel {
	return &InterestModel{
		BaseRateBps: baseRateBps,
		Slope1Bps:   slope1Bps,
		Slope2Bps:   slope2Bps,
		KinkBps:     kinkBps,
	}
}

// Clone returns a copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// UtilisationBps computes the pool utilisation U = totalBorrowed /
// totalDeposited in basis points. Zero liquidity is defined as zero
// utilisation, and a pool borrowed beyond its deposits is clamped to 100%.
func UtilisationBps(totalBorrowed, totalDeposited *big.Int) uint64 {
	if totalBorrowed == nil || totalBorrowed.Sign() <= 0 {
		return 0
	}
	if totalDeposited == nil || totalDeposited.Sign() <= 0 {
		return 0
	}
	ratio := new(big.Int).Mul(totalBorrowed, basisPoints)
	ratio.Quo(ratio, totalDeposited)
	if !ratio.IsUint64() || ratio.Uint64() > 10_000 {
		return 10_000
	}
	return ratio.Uint64()
}

// BorrowRateBps derives the dynamic borrow rate for the supplied pool totals.
func (m *InterestModel) BorrowRateBps(totalBorrowed, totalDeposited *big.Int) uint64 {
	if m == nil {
		return 0
	}
	return m.borrowRateAt(UtilisationBps(totalBorrowed, totalDeposited))
}

func (m *InterestModel) borrowRateAt(utilisationBps uint64) uint64 {
	if utilisationBps > 10_000 {
		utilisationBps = 10_000
	}
	rate := m.BaseRateBps
	kink := m.KinkBps
	if kink == 0 || utilisationBps <= kink {
		if kink == 0 {
			return rate + m.Slope1Bps
		}
		// Intermediate products stay far below 64 bits: bps values are
		// bounded by 10000.
		return rate + utilisationBps*m.Slope1Bps/kink
	}
	rate += m.Slope1Bps
	span := uint64(10_000) - kink
	if span == 0 {
		return rate + m.Slope2Bps
	}
	return rate + (utilisationBps-kink)*m.Slope2Bps/span
}

// SupplyRateBps derives the supplier rate: the borrow rate apportioned by
// utilisation, minus the protocol reserve cut.
func (m *InterestModel) SupplyRateBps(totalBorrowed, totalDeposited *big.Int, reserveFactorBps uint64) uint64 {
	if m == nil {
		return 0
	}
	if reserveFactorBps > 10_000 {
		reserveFactorBps = 10_000
	}
	utilisation := UtilisationBps(totalBorrowed, totalDeposited)
	borrowRate := m.borrowRateAt(utilisation)
	return borrowRate * utilisation * (10_000 - reserveFactorBps) / 10_000 / 10_000
}

// DefaultInterestModel is the protocol's canonical kinked curve: zero base
// rate, 4% at the 80% kink and a 60% slope beyond it.
var DefaultInterestModel = NewInterestModel(0, 400, 6000, 8000)
