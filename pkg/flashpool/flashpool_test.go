package flashpool

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

func addr(n byte) types.Address {
	var a common.Address
	a[19] = n
	return a
}

func pool(n byte) types.PoolIdentity {
	return types.PoolIdentity{Chain: 1, Address: addr(n), Family: types.DEXV3}
}

func TestRepayAmount_CeilsOnRemainder(t *testing.T) {
	// borrow 1,000,000 at 0.05% (fee=500): repay = ceil(1000000*1000500/1000000) = 1000500
	got := RepayAmount(uint256.NewInt(1_000_000), 500)
	assert.Equal(t, "1000500", got.String())
}

func TestRepayAmount_CeilsFractional(t *testing.T) {
	// 7 at fee 1 (1e6 units): numerator = 7*1000001 = 7000007, /1e6 = 7 rem 7 -> ceil to 8
	got := RepayAmount(uint256.NewInt(7), 1)
	assert.Equal(t, "8", got.String())
}

func TestSelect_ExcludesSwapPools(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}

	candidates := map[types.Address][]Candidate{
		tokenA: {
			{Pool: pool(10), FeeTier: types.FeeTier01, Liquidity: uint256.NewInt(1_000_000)}, // excluded: swap pool
			{Pool: pool(20), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)},
		},
	}

	sel := New(store.New(), candidates, 10)
	got, fee, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(500_000), 100)
	require.True(t, ok)
	assert.Equal(t, pool(20), got)
	assert.Equal(t, types.FeeTier05, fee)
}

func TestSelect_PrefersLowestFeeTierWithSufficientLiquidity(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}

	candidates := map[types.Address][]Candidate{
		tokenA: {
			{Pool: pool(20), FeeTier: types.FeeTier100, Liquidity: uint256.NewInt(10_000_000)},
			{Pool: pool(21), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)},
			{Pool: pool(22), FeeTier: types.FeeTier01, Liquidity: uint256.NewInt(100)}, // too thin
		},
	}

	sel := New(store.New(), candidates, 10)
	got, fee, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(500_000), 100)
	require.True(t, ok)
	assert.Equal(t, pool(21), got)
	assert.Equal(t, types.FeeTier05, fee)
}

func TestSelect_RequiresLiquidityForRepayNotBareAmount(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}

	// FeeTier100 = 1%: borrowing 1,000,000 needs repay 1,010,000. A
	// candidate holding exactly 1,000,000 covers the bare amount but
	// not the fee-inclusive obligation, so it must be rejected.
	candidates := map[types.Address][]Candidate{
		tokenA: {{Pool: pool(20), FeeTier: types.FeeTier100, Liquidity: uint256.NewInt(1_000_000)}},
	}

	sel := New(store.New(), candidates, 10)
	_, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(1_000_000), 100)
	assert.False(t, ok)
}

func TestSelect_NoCandidateSatisfiesLiquidity(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}
	candidates := map[types.Address][]Candidate{
		tokenA: {{Pool: pool(20), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(10)}},
	}

	sel := New(store.New(), candidates, 10)
	_, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(500_000), 100)
	assert.False(t, ok)
}

func TestSelect_CachesUntilAgedOut(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}
	candidates := map[types.Address][]Candidate{
		tokenA: {{Pool: pool(20), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)}},
	}

	sel := New(store.New(), candidates, 5)
	first, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(1), 100)
	require.True(t, ok)

	// mutate the candidate list; a cached hit should not see it within the age bound
	candidates[tokenA][0] = Candidate{Pool: pool(30), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)}
	cached, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(1), 103)
	require.True(t, ok)
	assert.Equal(t, first, cached)

	// past the age bound, recompute picks up the new candidate
	recomputed, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(1), 200)
	require.True(t, ok)
	assert.Equal(t, pool(30), recomputed)
}

func TestInvalidateOnRevert_ForcesRecompute(t *testing.T) {
	tokenA := addr(1)
	swapPools := [3]types.PoolIdentity{pool(10), pool(11), pool(12)}
	candidates := map[types.Address][]Candidate{
		tokenA: {{Pool: pool(20), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)}},
	}

	sel := New(store.New(), candidates, 1000)
	sel.Select(tokenA, swapPools, 1, uint256.NewInt(1), 100)
	sel.InvalidateOnRevert(tokenA, swapPools, 1)

	candidates[tokenA][0] = Candidate{Pool: pool(30), FeeTier: types.FeeTier05, Liquidity: uint256.NewInt(1_000_000)}
	got, _, ok := sel.Select(tokenA, swapPools, 1, uint256.NewInt(1), 101)
	require.True(t, ok)
	assert.Equal(t, pool(30), got)
}
