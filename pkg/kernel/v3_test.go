package kernel

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestV3OutApprox_StablePairNearParity(t *testing.T) {
	sp := mustU256FromBig(q96) // price = 1.0
	out, newSp, fault := V3OutApprox(sp, 500, 6, 6, true, u256("1000000")) // 1 USDC in, 0.05% fee
	require.Equal(t, FaultNone, fault)
	assert.Equal(t, sp.String(), newSp.String(), "approx mode holds price constant")
	// fee-adjusted: 1,000,000 * 0.9995 = 999,500
	assert.Equal(t, "999500", out.String())
}

func TestV3OutApprox_DegeneratePool(t *testing.T) {
	_, _, fault := V3OutApprox(uint256.NewInt(0), 500, 6, 6, true, u256("1"))
	assert.Equal(t, FaultDegeneratePool, fault)
}

func TestV3OutExact_MovesPriceDownOnZeroForOne(t *testing.T) {
	sp := mustU256FromBig(q96)
	liquidity := u256("1000000000000000000000") // generous liquidity, small trade
	out, newSp, fault := V3OutExact(sp, liquidity, 3000, true, u256("1000000"))
	require.Equal(t, FaultNone, fault)
	assert.True(t, newSp.Cmp(sp) <= 0, "price must not rise on a zeroForOne swap")
	assert.True(t, out.Sign() > 0)
}

func TestV3OutExact_MovesPriceUpOnOneForZero(t *testing.T) {
	sp := mustU256FromBig(q96)
	liquidity := u256("1000000000000000000000")
	out, newSp, fault := V3OutExact(sp, liquidity, 3000, false, u256("1000000"))
	require.Equal(t, FaultNone, fault)
	assert.True(t, newSp.Cmp(sp) >= 0, "price must not fall on a oneForZero swap")
	assert.True(t, out.Sign() > 0)
}

func TestV3OutExact_LargeTradeAgainstThinLiquidityMovesPriceSharply(t *testing.T) {
	sp := mustU256FromBig(q96)
	thinLiquidity := u256("1000") // trivially thin relative to the trade
	out, newSp, fault := V3OutExact(sp, thinLiquidity, 3000, true, u256("100000000000000"))
	require.Equal(t, FaultNone, fault)
	assert.True(t, newSp.Cmp(sp) < 0)
	assert.True(t, out.Sign() > 0)
}
