package backtest

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/kernel"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/scanner"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// PriceFeed mirrors pkg/scanner.PriceFeed: its own copy of the
// collaborator interface so this package never imports pkg/scanner's
// or pkg/priceusd's internals.
type PriceFeed interface {
	USD(token types.Address) (float64, bool)
}

// GasEstimator mirrors pkg/scanner.GasEstimator.
type GasEstimator interface {
	EstimateGasCostUSD(chain types.ChainID) float64
}

// Replayer rebuilds pool state from a sorted swap-log archive and
// evaluates every triggered triangle with the capture-ratio model
// instead of the live size grid, using kernel.V3OutExact (the exact,
// non-approximated swap formula) since a backtest has no slippage
// budget to economize on.
type Replayer struct {
	store   *store.Store
	index   *scanner.TriggerIndex
	flash   *flashpool.Selector
	prices  PriceFeed
	gas     GasEstimator
	pools   map[types.Address]PoolMeta
	symbols map[types.Address]string
	log     *zap.Logger
}

func NewReplayer(index *scanner.TriggerIndex, flash *flashpool.Selector, prices PriceFeed, gas GasEstimator, pools []PoolMeta, symbols map[types.Address]string, log *zap.Logger) *Replayer {
	byAddr := make(map[types.Address]PoolMeta, len(pools))
	for _, p := range pools {
		byAddr[p.Identity.Address] = p
	}
	return &Replayer{
		store:   store.New(),
		index:   index,
		flash:   flash,
		prices:  prices,
		gas:     gas,
		pools:   byAddr,
		symbols: symbols,
		log:     log,
	}
}

// Replay consumes records in ascending block order (the caller's
// responsibility — the downloader's batches already emit them that
// way) and returns the backtest's aggregate statistics.
func (r *Replayer) Replay(records []SwapRecord) Statistics {
	stats := Statistics{}
	pathStats := make(map[int]*PathStatistics)
	blocksSeen := make(map[uint64]bool)
	first := true

	for _, rec := range records {
		if first {
			stats.StartBlock = rec.Block
			stats.StartTimestamp = time.Unix(int64(rec.BlockTimestamp), 0).UTC()
			first = false
		}
		if rec.Block >= stats.EndBlock {
			stats.EndBlock = rec.Block
			stats.EndTimestamp = time.Unix(int64(rec.BlockTimestamp), 0).UTC()
		}
		blocksSeen[rec.Block] = true
		stats.TotalVolumeUSD += rec.USDVolume

		meta, known := r.pools[rec.Pool]
		if !known {
			continue
		}
		r.applyRecord(rec, meta)

		if rec.USDVolume <= 0 {
			continue // non-stablecoin trigger leg: no USD sizing basis available
		}

		for _, tri := range r.index.Triangles(meta.Identity) {
			ps := pathStatFor(pathStats, tri, r.symbols)
			for _, ratio := range CaptureRatios {
				opp, ok := r.evaluate(tri, rec, meta, ratio)
				if !ok {
					continue
				}
				ps.record(opp.RealNetProfitUSD)
				if opp.IsProfitable() {
					stats.ProfitableOpportunities = append(stats.ProfitableOpportunities, opp)
				}
			}
		}
	}

	if stats.EndBlock >= stats.StartBlock {
		stats.TotalBlocks = stats.EndBlock - stats.StartBlock + 1
	}
	stats.BlocksWithSwaps = uint64(len(blocksSeen))
	for _, ps := range pathStats {
		stats.PathStats = append(stats.PathStats, ps)
	}
	return stats
}

func (r *Replayer) applyRecord(rec SwapRecord, meta PoolMeta) {
	snap := types.PoolSnapshot{
		Identity: meta.Identity,
		V3: &types.V3Snapshot{
			Identity:        meta.Identity,
			Token0:          meta.Token0,
			Token1:          meta.Token1,
			Fee:             meta.Fee,
			SqrtPriceX96:    rec.SqrtPriceX96,
			Tick:            rec.Tick,
			Liquidity:       rec.Liquidity,
			LastUpdateBlock: rec.Block,
		},
	}
	r.store.Update(meta.Identity, snap, rec.Block)
}

func (r *Replayer) evaluate(tri *types.Triangle, rec SwapRecord, triggerMeta PoolMeta, ratio CaptureRatio) (Opportunity, bool) {
	snapV3 := func(id types.PoolIdentity) (*types.V3Snapshot, bool) {
		snap, ok := r.store.Get(id)
		if !ok || snap.V3 == nil {
			return nil, false
		}
		return snap.V3, true
	}

	p1, ok1 := snapV3(tri.Hop1.Pool)
	p2, ok2 := snapV3(tri.Hop2.Pool)
	p3, ok3 := snapV3(tri.Hop3.Pool)
	if !ok1 || !ok2 || !ok3 {
		return Opportunity{}, false
	}

	priceA, haveA := r.prices.USD(tri.TokenA)
	if !haveA || priceA <= 0 {
		return Opportunity{}, false
	}

	d := func(token types.Address) uint8 { return r.decimalsOf(token) }

	inputUSD := rec.USDVolume * ratio.Fraction()
	x := usdToBaseUnits(inputUSD, priceA, d(tri.TokenA))
	if x.IsZero() {
		return Opportunity{}, false
	}

	y, _, f1 := kernel.V3OutExact(p1.SqrtPriceX96, p1.Liquidity, uint32(p1.Fee), tri.Hop1.TokenIn == p1.Token0, x)
	if f1.IsFault() {
		return Opportunity{}, false
	}
	z, _, f2 := kernel.V3OutExact(p2.SqrtPriceX96, p2.Liquidity, uint32(p2.Fee), tri.Hop2.TokenIn == p2.Token0, y)
	if f2.IsFault() {
		return Opportunity{}, false
	}
	xPrime, _, f3 := kernel.V3OutExact(p3.SqrtPriceX96, p3.Liquidity, uint32(p3.Fee), tri.Hop3.TokenIn == p3.Token0, z)
	if f3.IsFault() {
		return Opportunity{}, false
	}

	outputUSD := baseUnitsToUSD(xPrime, priceA, d(tri.TokenA))
	grossUSD := outputUSD - inputUSD
	gasUSD := r.gas.EstimateGasCostUSD(tri.TriggerPool.Chain)

	_, feeTier, haveBorrow := r.flash.Select(tri.TokenA, tri.Pools(), tri.TriggerPool.Chain, x, rec.Block)
	var flashFeeUSD float64
	if haveBorrow {
		if feeRate, err := flashpool.ProviderV3Pool.FeeRate(feeTier); err == nil {
			feeBase := flashpool.RepayAmount(x, feeRate)
			feeBase.Sub(feeBase, x)
			flashFeeUSD = baseUnitsToUSD(feeBase, priceA, d(tri.TokenA))
		}
	}

	totalFeePct := threeHopFeePercent(p1.Fee, p2.Fee, p3.Fee)
	deviationPct := 0.0
	if inputUSD > 0 {
		deviationPct = grossUSD / inputUSD * 100
	}

	sellToken, buyToken := triggerDirection(triggerMeta, rec)

	opp := Opportunity{
		Block:             rec.Block,
		BlockTimestamp:    time.Unix(int64(rec.BlockTimestamp), 0).UTC(),
		Triangle:          tri,
		RealVolumeUSD:     rec.USDVolume,
		Capture:           ratio,
		InputAmountUSD:    inputUSD,
		OutputAmountUSD:   outputUSD,
		GrossProfitUSD:    grossUSD,
		GasCostUSD:        gasUSD,
		NetProfitUSD:      grossUSD - gasUSD,
		FlashFeeUSD:       flashFeeUSD,
		RealNetProfitUSD:  grossUSD - gasUSD - flashFeeUSD,
		PriceDeviationPct: deviationPct,
		TotalFeePct:       totalFeePct,
		ArbSpreadPct:      deviationPct - totalFeePct,
		Trigger: &TriggerEvent{
			Pool:          triggerMeta.Identity,
			PoolFeePct:    float64(triggerMeta.Fee) / 10000,
			PoolVolumeUSD: rec.USDVolume,
			SellToken:     sellToken,
			BuyToken:      buyToken,
		},
		Steps: r.steps(tri, x, y, z, xPrime, p1.Fee, p2.Fee, p3.Fee),
	}
	return opp, true
}

func (r *Replayer) steps(tri *types.Triangle, x, y, z, xPrime *uint256.Int, fee1, fee2, fee3 types.FeeTier) []ArbitrageStep {
	d := r.decimalsOf
	return []ArbitrageStep{
		{Step: 1, Pool: tri.Hop1.Pool, FeePercent: float64(fee1) / 10000, SellToken: tri.Hop1.TokenIn, SellAmount: uint256ToFloatScaled(x, d(tri.Hop1.TokenIn)), BuyToken: tri.Hop1.TokenOut, BuyAmount: uint256ToFloatScaled(y, d(tri.Hop1.TokenOut))},
		{Step: 2, Pool: tri.Hop2.Pool, FeePercent: float64(fee2) / 10000, SellToken: tri.Hop2.TokenIn, SellAmount: uint256ToFloatScaled(y, d(tri.Hop2.TokenIn)), BuyToken: tri.Hop2.TokenOut, BuyAmount: uint256ToFloatScaled(z, d(tri.Hop2.TokenOut))},
		{Step: 3, Pool: tri.Hop3.Pool, FeePercent: float64(fee3) / 10000, SellToken: tri.Hop3.TokenIn, SellAmount: uint256ToFloatScaled(z, d(tri.Hop3.TokenIn)), BuyToken: tri.Hop3.TokenOut, BuyAmount: uint256ToFloatScaled(xPrime, d(tri.Hop3.TokenOut))},
	}
}

func (r *Replayer) decimalsOf(token types.Address) uint8 {
	for _, m := range r.pools {
		if m.Token0 == token {
			return m.Decimals0
		}
		if m.Token1 == token {
			return m.Decimals1
		}
	}
	return 18
}

// triggerDirection reads the Swap event's sign convention: a negative
// token0 delta means the pool paid token0 out, i.e. the user bought
// token0 by selling token1.
func triggerDirection(meta PoolMeta, rec SwapRecord) (sell, buy types.Address) {
	if rec.Amount0Neg {
		return meta.Token1, meta.Token0
	}
	return meta.Token0, meta.Token1
}

func threeHopFeePercent(f1, f2, f3 types.FeeTier) float64 {
	return (float64(f1) + float64(f2) + float64(f3)) / 10000.0
}

func pathStatFor(m map[int]*PathStatistics, tri *types.Triangle, symbols map[types.Address]string) *PathStatistics {
	if ps, ok := m[tri.ID]; ok {
		return ps
	}
	name := fmt.Sprintf("%s->%s->%s->%s", symbolOf(symbols, tri.TokenA), symbolOf(symbols, tri.TokenB), symbolOf(symbols, tri.TokenC), symbolOf(symbols, tri.TokenA))
	ps := &PathStatistics{PathName: name, TriangleID: tri.ID}
	m[tri.ID] = ps
	return ps
}

func symbolOf(symbols map[types.Address]string, addr types.Address) string {
	if sym, ok := symbols[addr]; ok {
		return sym
	}
	return addr.Hex()
}
