package scanner

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

type fixedPrices map[types.Address]float64

func (f fixedPrices) USD(token types.Address) (float64, bool) {
	p, ok := f[token]
	return p, ok
}

type fixedGas float64

func (g fixedGas) EstimateGasCostUSD(types.ChainID) float64 { return float64(g) }

func tokenAddr(n byte) types.Address {
	var a common.Address
	a[19] = n
	return a
}

func poolID(n byte) types.PoolIdentity {
	return types.PoolIdentity{Chain: 1, Address: tokenAddr(n), Family: types.DEXV3}
}

// sqrtPriceForRatio1 is the Q64.96 sqrtPriceX96 for a pool quoting
// token1 at 1:1 against token0 when both have the same decimals
// (sqrt(1) * 2^96).
func sqrtPriceForRatio1() *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), 96)
}

func roundTripTriangle(poolAB, poolBC, poolCA types.PoolIdentity, tokenA, tokenB, tokenC types.Address) *types.Triangle {
	return &types.Triangle{
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
}

func seedV3(t *testing.T, st *store.Store, id types.PoolIdentity, token0, token1 types.Address, sqrtP *uint256.Int, liquidity *uint256.Int, block uint64) {
	t.Helper()
	ok := st.Update(id, types.PoolSnapshot{
		Identity: id,
		V3: &types.V3Snapshot{
			Identity: id, Token0: token0, Token1: token1,
			Fee: types.FeeTier05, SqrtPriceX96: sqrtP, Liquidity: liquidity,
			LastUpdateBlock: block,
		},
	}, block)
	require.True(t, ok)
}

func testDecimals(tokenA, tokenB, tokenC types.Address) map[types.Address]uint8 {
	return map[types.Address]uint8{tokenA: 18, tokenB: 18, tokenC: 18}
}

func newTestScanner(t *testing.T, st *store.Store, tri *types.Triangle, prices fixedPrices, borrowPool types.Address, minProfit float64) *Scanner {
	t.Helper()
	idx := BuildTriggerIndex([]*types.Triangle{tri})

	candidates := map[types.Address][]flashpool.Candidate{
		tri.TokenA: {{
			Pool:      types.PoolIdentity{Chain: 1, Address: borrowPool, Family: types.DEXV3},
			FeeTier:   types.FeeTier05,
			Liquidity: uint256.NewInt(0).SetAllOne(),
		}},
	}
	flash := flashpool.New(st, candidates, 0)

	cfg := Config{
		Grid:           SizeGrid{FloorUSD: 1000, CeilingUSD: 1000, Multiplier: 2},
		MinProfitUSD:   minProfit,
		StaleThreshold: 5,
		MicroBudget:    16,
		Decimals:       testDecimals(tri.TokenA, tri.TokenB, tri.TokenC),
	}

	return New(st, idx, flash, prices, fixedGas(0), nil, NewMetrics(nil), cfg, 8)
}

// TestScanner_EndToEndOpportunityEmitted covers end-to-end
// opportunity scenario: two fairly priced hops and a third hop biased
// enough to clear both swap fees and the flash-loan fee, ending with a
// profitable opportunity pushed onto the Scanner's output channel.
func TestScanner_EndToEndOpportunityEmitted(t *testing.T) {
	tokenA, tokenB, tokenC := tokenAddr(1), tokenAddr(2), tokenAddr(3)
	p1, p2, p3 := poolID(10), poolID(11), poolID(12)

	st := store.New()
	seedV3(t, st, p1, tokenA, tokenB, sqrtPriceForRatio1(), uint256.NewInt(0).SetAllOne(), 100)
	seedV3(t, st, p2, tokenB, tokenC, sqrtPriceForRatio1(), uint256.NewInt(0).SetAllOne(), 100)
	// hop3 (C->A) sqrt price 6.25% above parity: price (1.0625)^2 ~= 1.129, easily
	// clearing the three 0.05% swap fees plus the flash fee.
	biasedSqrt := new(uint256.Int).Add(sqrtPriceForRatio1(), new(uint256.Int).Rsh(sqrtPriceForRatio1(), 4))
	seedV3(t, st, p3, tokenC, tokenA, biasedSqrt, uint256.NewInt(0).SetAllOne(), 100)

	tri := roundTripTriangle(p1, p2, p3, tokenA, tokenB, tokenC)
	prices := fixedPrices{tokenA: 1.0, tokenB: 1.0, tokenC: 1.0}
	scanner := newTestScanner(t, st, tri, prices, tokenAddr(99), 1.0)

	scanner.OnUpdate(types.SwapUpdate{Pool: p1, Block: 100})

	select {
	case opp := <-scanner.Opportunities:
		assert.Equal(t, tri, opp.Triangle)
		assert.Greater(t, opp.NetProfitUSD, 0.0)
	default:
		t.Fatal("expected an opportunity to be emitted")
	}
}

// TestScanner_StaleSnapshotDropsEvaluation covers stale-drop
// scenario: the same favorable triangle, but one of its three snapshots
// has fallen further behind the store's logical clock than
// StaleThreshold allows, so no opportunity is emitted.
func TestScanner_StaleSnapshotDropsEvaluation(t *testing.T) {
	tokenA, tokenB, tokenC := tokenAddr(1), tokenAddr(2), tokenAddr(3)
	p1, p2, p3 := poolID(10), poolID(11), poolID(12)

	st := store.New()
	seedV3(t, st, p2, tokenB, tokenC, sqrtPriceForRatio1(), uint256.NewInt(0).SetAllOne(), 100)
	biasedSqrt := new(uint256.Int).Add(sqrtPriceForRatio1(), new(uint256.Int).Rsh(sqrtPriceForRatio1(), 4))
	// p3 is last updated at block 100; the store's global clock then
	// advances to block 200 via p1, pushing p3 past StaleThreshold=5.
	seedV3(t, st, p3, tokenC, tokenA, biasedSqrt, uint256.NewInt(0).SetAllOne(), 100)
	seedV3(t, st, p1, tokenA, tokenB, sqrtPriceForRatio1(), uint256.NewInt(0).SetAllOne(), 200)

	tri := roundTripTriangle(p1, p2, p3, tokenA, tokenB, tokenC)
	prices := fixedPrices{tokenA: 1.0, tokenB: 1.0, tokenC: 1.0}
	scanner := newTestScanner(t, st, tri, prices, tokenAddr(99), 1.0)

	scanner.OnUpdate(types.SwapUpdate{Pool: p1, Block: 200})

	select {
	case opp := <-scanner.Opportunities:
		t.Fatalf("expected no opportunity on a stale snapshot, got %+v", opp)
	default:
	}
}

func TestScanner_ColdPoolSkipped(t *testing.T) {
	tokenA, tokenB, tokenC := tokenAddr(1), tokenAddr(2), tokenAddr(3)
	p1, p2, p3 := poolID(10), poolID(11), poolID(12)

	st := store.New()
	seedV3(t, st, p1, tokenA, tokenB, sqrtPriceForRatio1(), uint256.NewInt(0).SetAllOne(), 100)
	// p2 and p3 never seeded.

	tri := roundTripTriangle(p1, p2, p3, tokenA, tokenB, tokenC)
	prices := fixedPrices{tokenA: 1.0, tokenB: 1.0, tokenC: 1.0}
	scanner := newTestScanner(t, st, tri, prices, tokenAddr(99), 1.0)

	scanner.OnUpdate(types.SwapUpdate{Pool: p1, Block: 100})

	select {
	case opp := <-scanner.Opportunities:
		t.Fatalf("expected no opportunity for a cold pool, got %+v", opp)
	default:
	}
}
