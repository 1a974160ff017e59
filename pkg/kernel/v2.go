package kernel

import "github.com/holiman/uint256"

// V2Fee is expressed as a (numerator, denominator) pair rather than
// a single basis-point value because V2-family forks vary the fee
// inside the same formula shape: (997,1000) at 0.30%, (9975,10000) at
// 0.25%, etc. Both fields are plain uint64 — fee numerators never
// approach 256-bit range.
type V2Fee struct {
	Num, Den uint64
}

// V2Out computes the constant-product output amount for input x into
// reserves (rIn, rOut) under fee (f,F), matching the on-chain formula
// exactly:
//
//	out = (x * f * rOut) / (rIn * F + x * f)
//
// truncating integer division. Total: returns (nil, FaultDegeneratePool)
// if any of x, rIn, rOut is zero, and (nil, FaultOverflow) if the
// 256-bit intermediate products overflow.
func V2Out(x, rIn, rOut *uint256.Int, fee V2Fee) (*uint256.Int, Fault) {
	if isZero(x) || isZero(rIn) || isZero(rOut) {
		return nil, FaultDegeneratePool
	}

	f := uint256.NewInt(fee.Num)
	xf, overflow := new(uint256.Int).MulOverflow(x, f)
	if overflow {
		return nil, FaultOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(xf, rOut)
	if overflow {
		return nil, FaultOverflow
	}

	bigF := uint256.NewInt(fee.Den)
	rInF, overflow := new(uint256.Int).MulOverflow(rIn, bigF)
	if overflow {
		return nil, FaultOverflow
	}
	denominator, overflow := new(uint256.Int).AddOverflow(rInF, xf)
	if overflow {
		return nil, FaultOverflow
	}
	if denominator.IsZero() {
		return nil, FaultDegeneratePool
	}

	out := new(uint256.Int).Div(numerator, denominator)
	return out, FaultNone
}

// V2InFor computes the minimum input required to receive desired
// output y < rOut, matching the on-chain formula:
//
//	in = floor(rIn * y * F / ((rOut - y) * f)) + 1
//
// Total: FaultDegeneratePool if any reserve or y is zero or y >= rOut;
// FaultOverflow on 256-bit overflow.
func V2InFor(y, rIn, rOut *uint256.Int, fee V2Fee) (*uint256.Int, Fault) {
	if isZero(y) || isZero(rIn) || isZero(rOut) {
		return nil, FaultDegeneratePool
	}
	if y.Cmp(rOut) >= 0 {
		return nil, FaultDegeneratePool
	}

	bigF := uint256.NewInt(fee.Den)
	f := uint256.NewInt(fee.Num)

	rInY, overflow := new(uint256.Int).MulOverflow(rIn, y)
	if overflow {
		return nil, FaultOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(rInY, bigF)
	if overflow {
		return nil, FaultOverflow
	}

	diff := new(uint256.Int).Sub(rOut, y)
	denominator, overflow := new(uint256.Int).MulOverflow(diff, f)
	if overflow {
		return nil, FaultOverflow
	}
	if denominator.IsZero() {
		return nil, FaultDegeneratePool
	}

	in := new(uint256.Int).Div(numerator, denominator)
	one := uint256.NewInt(1)
	result, overflow := new(uint256.Int).AddOverflow(in, one)
	if overflow {
		return nil, FaultOverflow
	}
	return result, FaultNone
}
