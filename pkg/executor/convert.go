package executor

import (
	"math/big"

	"github.com/holiman/uint256"
)

// baseUnitsToUSD mirrors pkg/scanner/convert.go's conversion: the
// Executor re-derives a realised profit in USD from a base-unit
// uint256 amount using math/big.Float for the same precision-headroom
// reason (a float64 multiply against a ToBig()-converted 1e18-scaled
// amount rounds wrong for large snapshots).
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
