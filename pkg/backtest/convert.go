package backtest

import (
	"math/big"

	"github.com/holiman/uint256"
)

// usdToBaseUnits and baseUnitsToUSD duplicate pkg/scanner's private
// helpers of the same name: each package that needs this conversion
// keeps its own copy rather than importing another component's
// internals, the same narrow-collaborator discipline the rest of the
// engine follows.
func usdToBaseUnits(sizeUSD, priceUSD float64, decimals uint8) *uint256.Int {
	if priceUSD <= 0 {
		return uint256.NewInt(0)
	}
	whole := new(big.Float).Quo(big.NewFloat(sizeUSD), big.NewFloat(priceUSD))
	scale := new(big.Float).SetInt(pow10Big(decimals))
	whole.Mul(whole, scale)
	out, _ := whole.Int(nil)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	u, overflow := uint256.FromBig(out)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return u
}

func baseUnitsToUSD(amount *uint256.Int, priceUSD float64, decimals uint8) float64 {
	amountF := new(big.Float).SetInt(amount.ToBig())
	scale := new(big.Float).SetInt(pow10Big(decimals))
	whole := new(big.Float).Quo(amountF, scale)
	usd := new(big.Float).Mul(whole, big.NewFloat(priceUSD))
	f, _ := usd.Float64()
	return f
}

// uint256ToFloatScaled converts a raw base-unit magnitude to a whole-
// token float, used only for the trigger pool's own USD-volume
// estimate, never for the replayed arbitrage legs themselves.
func uint256ToFloatScaled(amount *uint256.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount.ToBig())
	f.Quo(f, new(big.Float).SetInt(pow10Big(decimals)))
	v, _ := f.Float64()
	return v
}

func pow10Big(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
