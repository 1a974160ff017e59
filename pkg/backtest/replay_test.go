package backtest

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/scanner"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

type fakePriceFeed map[types.Address]float64

func (f fakePriceFeed) USD(token types.Address) (float64, bool) {
	p, ok := f[token]
	return p, ok
}

type fakeGasEstimator float64

func (g fakeGasEstimator) EstimateGasCostUSD(types.ChainID) float64 { return float64(g) }

func replayTokenAddr(n byte) types.Address {
	var a common.Address
	a[19] = n
	return a
}

func replayPoolID(n byte) types.PoolIdentity {
	return types.PoolIdentity{Chain: 1, Address: replayTokenAddr(n), Family: types.DEXV3}
}

func replaySqrtPriceForRatio1() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 96)
}

// newTriangleFixture wires three pools into an A->B->C->A triangle
// whose third hop (C->A) has its sqrt price biased 6.25% above parity
// (price ~12.9% above), the same construction pkg/scanner's end-to-end
// test uses, comfortably clearing three 0.05% swap fees.
func newTriangleFixture() (*types.Triangle, []PoolMeta) {
	tokenA, tokenB, tokenC := replayTokenAddr(1), replayTokenAddr(2), replayTokenAddr(3)
	poolAB, poolBC, poolCA := replayPoolID(10), replayPoolID(11), replayPoolID(12)

	tri := &types.Triangle{
		ID:          1,
		TokenA:      tokenA,
		TokenB:      tokenB,
		TokenC:      tokenC,
		Hop1:        types.Hop{Pool: poolAB, TokenIn: tokenA, TokenOut: tokenB},
		Hop2:        types.Hop{Pool: poolBC, TokenIn: tokenB, TokenOut: tokenC},
		Hop3:        types.Hop{Pool: poolCA, TokenIn: tokenC, TokenOut: tokenA},
		TriggerPool: poolAB,
		Priority:    0,
		Enabled:     true,
	}

	metas := []PoolMeta{
		{Identity: poolAB, Token0: tokenA, Token1: tokenB, Decimals0: 18, Decimals1: 18, Stable0: true, Fee: types.FeeTier05},
		{Identity: poolBC, Token0: tokenB, Token1: tokenC, Decimals0: 18, Decimals1: 18, Fee: types.FeeTier05},
		{Identity: poolCA, Token0: tokenC, Token1: tokenA, Decimals0: 18, Decimals1: 18, Stable1: true, Fee: types.FeeTier05},
	}
	return tri, metas
}

// maxLiquidity is the largest active liquidity a V3 pool can report
// (uint128 max); V3OutExact's 256-bit intermediates have room for it.
func maxLiquidity() *uint256.Int {
	return new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))
}

func newTestReplayer(tri *types.Triangle, metas []PoolMeta, borrowPoolAddr types.Address) *Replayer {
	idx := scanner.BuildTriggerIndex([]*types.Triangle{tri})

	candidates := map[types.Address][]flashpool.Candidate{
		tri.TokenA: {{
			Pool:      types.PoolIdentity{Chain: 1, Address: borrowPoolAddr, Family: types.DEXV3},
			FeeTier:   types.FeeTier05,
			Liquidity: maxLiquidity(),
		}},
	}
	flash := flashpool.New(nil, candidates, 0)

	prices := fakePriceFeed{tri.TokenA: 1.0, tri.TokenB: 1.0, tri.TokenC: 1.0}
	return NewReplayer(idx, flash, prices, fakeGasEstimator(0), metas, nil, zap.NewNop())
}

func swapRecord(pool types.Address, block uint64, sqrtPrice, liquidity *uint256.Int, usdVolume float64) SwapRecord {
	return SwapRecord{
		Pool:            pool,
		Block:           block,
		BlockTimestamp:  1_700_000_000,
		SqrtPriceX96:    sqrtPrice,
		Liquidity:       liquidity,
		Amount0:         uint256.NewInt(0),
		Amount1:         uint256.NewInt(0),
		USDVolume:       usdVolume,
	}
}

func TestReplayer_ProfitableOpportunityRecordedAtEveryCaptureRatio(t *testing.T) {
	tri, metas := newTriangleFixture()
	borrowAddr := replayTokenAddr(99)
	r := newTestReplayer(tri, metas, borrowAddr)

	biased := new(uint256.Int).Add(replaySqrtPriceForRatio1(), new(uint256.Int).Rsh(replaySqrtPriceForRatio1(), 4))

	records := []SwapRecord{
		swapRecord(tri.Hop2.Pool.Address, 99, replaySqrtPriceForRatio1(), maxLiquidity(), 0),
		swapRecord(tri.Hop3.Pool.Address, 99, biased, maxLiquidity(), 0),
		swapRecord(tri.Hop1.Pool.Address, 100, replaySqrtPriceForRatio1(), maxLiquidity(), 10_000),
	}

	stats := r.Replay(records)

	require.Len(t, stats.PathStats, 1)
	ps := stats.PathStats[0]
	assert.Equal(t, uint64(len(CaptureRatios)), ps.AnalysisCount)
	assert.Equal(t, uint64(len(CaptureRatios)), ps.ProfitableCount)
	assert.Greater(t, ps.MaxProfitUSD, 0.0)

	require.Len(t, stats.ProfitableOpportunities, len(CaptureRatios))
	for _, opp := range stats.ProfitableOpportunities {
		assert.Greater(t, opp.RealNetProfitUSD, 0.0)
		assert.Equal(t, uint64(100), opp.Block)
		require.NotNil(t, opp.Trigger)
		assert.Equal(t, tri.TokenA, opp.Trigger.SellToken)
	}

	assert.InDelta(t, 10_000, stats.TotalVolumeUSD, 0.0001)
	assert.Equal(t, uint64(99), stats.StartBlock)
	assert.Equal(t, uint64(100), stats.EndBlock)
}

func TestReplayer_ZeroVolumeRecordNeverEvaluated(t *testing.T) {
	tri, metas := newTriangleFixture()
	r := newTestReplayer(tri, metas, replayTokenAddr(99))

	records := []SwapRecord{
		swapRecord(tri.Hop1.Pool.Address, 100, replaySqrtPriceForRatio1(), maxLiquidity(), 0),
	}

	stats := r.Replay(records)
	assert.Empty(t, stats.PathStats)
	assert.Empty(t, stats.ProfitableOpportunities)
}
