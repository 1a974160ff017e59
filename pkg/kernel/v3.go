package kernel

import "github.com/holiman/uint256"

// feeComplement computes (1e6 - fee) as a uint256, used to fee-adjust
// an input amount before it is run through the price curve.
func feeComplement(fee uint32) *uint256.Int {
	return new(uint256.Int).Sub(uint256.NewInt(1_000_000), uint256.NewInt(uint64(fee)))
}

// applyFee returns amountIn * (1e6-fee) / 1e6, truncating, matching
// the on-chain contract's fee deduction before the swap curve runs.
func applyFee(amountIn *uint256.Int, fee uint32) (*uint256.Int, Fault) {
	comp := feeComplement(fee)
	num, overflow := new(uint256.Int).MulOverflow(amountIn, comp)
	if overflow {
		return nil, FaultOverflow
	}
	return new(uint256.Int).Div(num, uint256.NewInt(1_000_000)), FaultNone
}

// V3OutApprox is the Scanner's inner-loop swap estimate: treat the
// current price as constant across the trade (valid for sizes small
// relative to active liquidity), subtract the fee, and scale the
// fee-adjusted input by the spot price. Returns the output amount and
// the (unchanged) sqrtPriceX96, since this mode does not move the
// price. zeroForOne selects direction: true = token0 in, token1 out.
func V3OutApprox(sqrtPriceX96 *uint256.Int, fee uint32, d0, d1 uint8, zeroForOne bool, amountIn *uint256.Int) (amountOut, newSqrtPriceX96 *uint256.Int, fault Fault) {
	if isZero(sqrtPriceX96) || isZero(amountIn) {
		return nil, nil, FaultDegeneratePool
	}

	priceX18, f := PriceX18(sqrtPriceX96, d0, d1)
	if f.IsFault() {
		return nil, nil, f
	}
	if priceX18.Sign() == 0 {
		return nil, nil, FaultDegeneratePool
	}

	afterFee, f := applyFee(amountIn, fee)
	if f.IsFault() {
		return nil, nil, f
	}

	priceU, overflow := uint256.FromBig(priceX18)
	if overflow {
		return nil, nil, FaultOverflow
	}
	scale := uint256.NewInt(1_000_000_000_000_000_000) // 1e18

	var out *uint256.Int
	if zeroForOne {
		// out(token1) = in(token0) * price_token1_per_token0
		num, ovf := new(uint256.Int).MulOverflow(afterFee, priceU)
		if ovf {
			return nil, nil, FaultOverflow
		}
		out = new(uint256.Int).Div(num, scale)
	} else {
		// out(token0) = in(token1) / price_token1_per_token0
		num, ovf := new(uint256.Int).MulOverflow(afterFee, scale)
		if ovf {
			return nil, nil, FaultOverflow
		}
		out = new(uint256.Int).Div(num, priceU)
	}

	return out, new(uint256.Int).Set(sqrtPriceX96), FaultNone
}

// V3OutExact is the back-tester's precision mode: integration of
// SqrtPriceMath's getNextSqrtPriceFromInput against the pool's current
// active liquidity, the same formula the on-chain contract uses while
// a swap stays within one tick range. The Pool-State Store only
// carries a single active-liquidity value (not the full tick-indexed
// liquidity curve), so a trade large enough to cross into an adjacent
// tick range is still computed against the current tick's liquidity
// rather than walking the curve tick by tick — a documented
// simplification of "step-by-tick exact" mode, acceptable
// for the back-tester's profitability estimate but not bit-identical
// to an on-chain multi-tick-crossing swap.
func V3OutExact(sqrtPriceX96 *uint256.Int, liquidity *uint256.Int, fee uint32, zeroForOne bool, amountIn *uint256.Int) (amountOut, newSqrtPriceX96 *uint256.Int, fault Fault) {
	if isZero(sqrtPriceX96) || isZero(liquidity) || isZero(amountIn) {
		return nil, nil, FaultDegeneratePool
	}

	afterFee, f := applyFee(amountIn, fee)
	if f.IsFault() {
		return nil, nil, f
	}

	q96Int, _ := uint256.FromBig(q96)

	var newSqrtP *uint256.Int
	if zeroForOne {
		// newSqrtP = L*sqrtP / (L + amountIn*sqrtP/Q96)
		amtSqrtP, overflow := new(uint256.Int).MulOverflow(afterFee, sqrtPriceX96)
		if overflow {
			return nil, nil, FaultOverflow
		}
		term := new(uint256.Int).Div(amtSqrtP, q96Int)
		denom, overflow := new(uint256.Int).AddOverflow(liquidity, term)
		if overflow {
			return nil, nil, FaultOverflow
		}
		if denom.IsZero() {
			return nil, nil, FaultDegeneratePool
		}
		lSqrtP, overflow := new(uint256.Int).MulOverflow(liquidity, sqrtPriceX96)
		if overflow {
			return nil, nil, FaultOverflow
		}
		newSqrtP = new(uint256.Int).Div(lSqrtP, denom)
		if newSqrtP.IsZero() {
			return nil, nil, FaultDegeneratePool
		}
	} else {
		// newSqrtP = sqrtP + amountIn*Q96/L
		amtQ96, overflow := new(uint256.Int).MulOverflow(afterFee, q96Int)
		if overflow {
			return nil, nil, FaultOverflow
		}
		delta := new(uint256.Int).Div(amtQ96, liquidity)
		newSqrtP, overflow = new(uint256.Int).AddOverflow(sqrtPriceX96, delta)
		if overflow {
			return nil, nil, FaultOverflow
		}
	}

	if zeroForOne {
		// amountOut(token1) = L*(sqrtP - newSqrtP)/Q96
		diff := new(uint256.Int).Sub(sqrtPriceX96, newSqrtP)
		num, overflow := new(uint256.Int).MulOverflow(liquidity, diff)
		if overflow {
			return nil, nil, FaultOverflow
		}
		amountOut = new(uint256.Int).Div(num, q96Int)
	} else {
		// amountOut(token0) = L*Q96*(newSqrtP-sqrtP) / (newSqrtP*sqrtP)
		diff := new(uint256.Int).Sub(newSqrtP, sqrtPriceX96)
		lDiff, overflow := new(uint256.Int).MulOverflow(liquidity, diff)
		if overflow {
			return nil, nil, FaultOverflow
		}
		num, overflow := new(uint256.Int).MulOverflow(lDiff, q96Int)
		if overflow {
			return nil, nil, FaultOverflow
		}
		denom, overflow := new(uint256.Int).MulOverflow(newSqrtP, sqrtPriceX96)
		if overflow {
			return nil, nil, FaultOverflow
		}
		if denom.IsZero() {
			return nil, nil, FaultDegeneratePool
		}
		amountOut = new(uint256.Int).Div(num, denom)
	}

	return amountOut, newSqrtP, FaultNone
}
