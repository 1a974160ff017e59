// Package kernel is the Math Kernel: pure, total, deterministic
// fixed-point functions for V2/V3 AMM swap math and price conversion.
// Nothing here touches the network or a mutex; every fallible function
// returns a value paired with a Fault instead of panicking or erroring
// (TickToSqrtPriceX96 cannot fail and returns its value alone), so the
// Scanner's hot loop can call it millions of times without defensive
// recover() calls.
package kernel

import "github.com/holiman/uint256"

// Fault tags why a kernel function could not produce a usable value.
// Total functions return (zero-value, Fault) instead of an error or a
// panic — callers treat every non-zero Fault the same way: skip this
// evaluation, bump a counter.
type Fault int

const (
	FaultNone Fault = iota
	FaultDegeneratePool
	FaultOverflow
	FaultMalformed
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultDegeneratePool:
		return "degenerate-pool"
	case FaultOverflow:
		return "overflow"
	case FaultMalformed:
		return "malformed"
	default:
		return "unknown-fault"
	}
}

func (f Fault) IsFault() bool { return f != FaultNone }

func isZero(x *uint256.Int) bool { return x == nil || x.IsZero() }
