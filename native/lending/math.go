package lending

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 index precision
	usdScale    = mustBigInt("1000000000000000000")          // USD aggregates use 18 decimals
)

const secondsPerYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// rayMul multiplies two ray-scaled values, rounding down. Amounts derived from
// indexes always round in the pool's favour.
func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	return product.Quo(product, ray)
}

// sharesFromAmount converts a base-unit amount into ray-scaled shares at the
// supplied index, rounding down with a one-share floor so that dust deposits
// are never silently discarded.
func sharesFromAmount(amount, index *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, ray)
	scaled.Quo(scaled, index)
	if scaled.Sign() == 0 {
		return big.NewInt(1)
	}
	return scaled
}

// sharesFromAmountCeil converts a base-unit amount into shares rounding up.
// Used when burning shares for a withdrawal so the pool never releases more
// value than was burned.
func sharesFromAmountCeil(amount, index *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(amount, ray)
	scaled.Add(scaled, new(big.Int).Sub(index, big.NewInt(1)))
	return scaled.Quo(scaled, index)
}

// amountFromShares converts ray-scaled shares back into a base-unit amount at
// the supplied index, rounding down.
func amountFromShares(shares, index *big.Int) *big.Int {
	if shares == nil || shares.Sign() <= 0 || index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	amount := new(big.Int).Mul(shares, index)
	return amount.Quo(amount, ray)
}

// usdValue converts a base-unit amount into an 18-decimal USD value using the
// oracle rate (USD per whole unit), rounding down.
func usdValue(amount *big.Int, decimals uint8, rate *big.Rat) *big.Int {
	if amount == nil || amount.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	value := new(big.Rat).SetInt(amount)
	value.Mul(value, rate)
	value.Mul(value, new(big.Rat).SetInt(usdScale))
	value.Quo(value, new(big.Rat).SetInt(pow10(decimals)))
	return new(big.Int).Quo(value.Num(), value.Denom())
}

// amountFromUSD converts an 18-decimal USD value into a base-unit amount of
// the asset priced at rate, rounding down.
func amountFromUSD(usd *big.Int, decimals uint8, rate *big.Rat) *big.Int {
	if usd == nil || usd.Sign() <= 0 || rate == nil || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	amount := new(big.Rat).SetInt(usd)
	amount.Mul(amount, new(big.Rat).SetInt(pow10(decimals)))
	amount.Quo(amount, rate)
	amount.Quo(amount, new(big.Rat).SetInt(usdScale))
	return new(big.Int).Quo(amount.Num(), amount.Denom())
}

// bpsShare returns amount * bps / 10000, rounding down.
func bpsShare(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}
