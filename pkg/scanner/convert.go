package scanner

import (
	"math/big"

	"github.com/holiman/uint256"
)

// usdToBaseUnits converts a USD trade size into token base units at
// priceUSD per whole token, scaled by the token's decimals.
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

// baseUnitsToUSD converts a token base-unit amount back to USD at
// priceUSD per whole token.
func baseUnitsToUSD(amount *uint256.Int, priceUSD float64, decimals uint8) float64 {
	amountF := new(big.Float).SetInt(amount.ToBig())
	scale := new(big.Float).SetInt(pow10Big(decimals))
	whole := new(big.Float).Quo(amountF, scale)
	usd := new(big.Float).Mul(whole, big.NewFloat(priceUSD))
	f, _ := usd.Float64()
	return f
}

func pow10Big(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
