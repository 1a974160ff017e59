package kernel

import (
	"math/big"

	"github.com/holiman/uint256"
)

// q96 is 2^96, the fixed-point scale of sqrtPriceX96.
var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// priceScale is the fixed-point scale the returned price is expressed
// in: 1e18, matching the precision the rest of the engine (USD
// accounting, decimal conversion) uses. A 192-bit intermediate
// (sqrtPriceX96 squared) is used before dividing down, so stable pairs
// within a few basis points of 1.0 don't lose precision to premature
// truncation.
var priceScale = new(big.Int).SetUint64(1_000_000_000_000_000_000)

// PriceX18 computes price_token1_per_token0 = (sqrtPriceX96/2^96)^2 *
// 10^(d0-d1), returned as a fixed-point integer scaled by 1e18.
// Total: FaultDegeneratePool if sqrtPriceX96 is zero; never overflows
// because the computation runs in math/big, then is range-checked
// back into a uint256 equivalent at the call site if needed.
func PriceX18(sqrtPriceX96 *uint256.Int, d0, d1 uint8) (*big.Int, Fault) {
	if isZero(sqrtPriceX96) {
		return nil, FaultDegeneratePool
	}

	sp := sqrtPriceX96.ToBig()
	// price = sp^2 / 2^192 * 10^(d0-d1), done as one division at the end
	// to preserve precision: (sp^2 * priceScale * 10^decimalShift) / 2^192
	num := new(big.Int).Mul(sp, sp)
	num.Mul(num, priceScale)

	decimalShift := int(d0) - int(d1)
	if decimalShift > 0 {
		num.Mul(num, pow10(decimalShift))
	}

	denom := new(big.Int).Lsh(big.NewInt(1), 192)
	if decimalShift < 0 {
		denom.Mul(denom, pow10(-decimalShift))
	}

	result := new(big.Int).Quo(num, denom)
	return result, FaultNone
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// tickRatios are the per-bit magic constants from Uniswap V3's
// TickMath.getSqrtRatioAtTick: ratio for bit i of |tick| is
// 1.0001^(-2^(i-1)) scaled by 2^128. Bit-exact fixed-point
// exponentiation-by-squaring, matching the on-chain contract, is the
// only way to reproduce real pool sqrtPriceX96 values exactly — a
// float64 power series diverges from the contract in the low bits.
var tickRatios = [20]string{
	"0xfffcb933bd6fad37aa2d162d1a594001",
	"0xfff97272373d413259a46990580e213a",
	"0xfff2e50f5f656932ef12357cf3c7fdcc",
	"0xffe5caca7e10e4e61c3624eaa0941cd0",
	"0xffcb9843d60f6159c9db58835c926644",
	"0xff973b41fa98c081472e6896dfb254c0",
	"0xff2ea16466c96a3843ec78b326b52861",
	"0xfe5dee046a99a2a811c461f1969c3053",
	"0xfcbe86c7900a88aedcffc83b479aa3a4",
	"0xf987a7253ac413176f2b074cf7815e54",
	"0xf3392b0822b70005940c7a398e4b70f3",
	"0xe7159475a2c29b7443b29c7fa6e889d9",
	"0xd097f3bdfd2022b8845ad8f792aa5825",
	"0xa9f746462d870fdf8a65dc1f90e061e5",
	"0x70d869a156d2a1b890bb3df62baf32f7",
	"0x31be135f97d08fd981231505542fcfa6",
	"0x9aa508b5b7a84e1c677de54f3e99bc9",
	"0x5d6af8dedb81196699c329225ee604",
	"0x2216e584f5fa1ea926041bedfe98",
	"0x48a170391f7dc42444e8fa2",
}

var tickRatioInts = parseTickRatios()

func parseTickRatios() [20]*big.Int {
	var out [20]*big.Int
	for i, s := range tickRatios {
		v, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			panic("kernel: malformed tick ratio constant")
		}
		out[i] = v
	}
	return out
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TickToSqrtPriceX96 converts a tick index to its sqrtPriceX96
// fixed-point representation via the exact bit-shifting algorithm used
// on-chain (Uniswap V3's TickMath.getSqrtRatioAtTick), so decoded
// ticks and decoded sqrtPriceX96 values agree to the unit. Valid for
// |tick| <= 887272; callers outside that range get an unclamped
// (likely useless but non-panicking) result.
func TickToSqrtPriceX96(tick int32) *big.Int {
	absTick := int64(tick)
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(big.Int)
	if absTick&0x1 != 0 {
		ratio.SetString("fffcb933bd6fad37aa2d162d1a594001", 16)
	} else {
		ratio.Lsh(big.NewInt(1), 128)
	}

	for i, mask := range []int64{0x2, 0x4, 0x8, 0x10, 0x20, 0x40, 0x80, 0x100, 0x200, 0x400,
		0x800, 0x1000, 0x2000, 0x4000, 0x8000, 0x10000, 0x20000, 0x40000, 0x80000} {
		if absTick&mask != 0 {
			ratio.Mul(ratio, tickRatioInts[i+1])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256, ratio)
	}

	// ratio is Q128.128; shift down to Q64.96, rounding up on a
	// non-zero remainder exactly as the Solidity implementation does.
	shifted := new(big.Int).Rsh(ratio, 32)
	remainder := new(big.Int).And(ratio, big.NewInt((1<<32)-1))
	if remainder.Sign() != 0 {
		shifted.Add(shifted, big.NewInt(1))
	}
	return shifted
}
