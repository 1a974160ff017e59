// Package scanner is the event-driven opportunity detector: on each
// accepted pool update it looks up the triangles that pool can
// trigger, sizes each across a geometric grid using the Math Kernel
// against the Pool-State Store, and emits profitable Opportunities to
// the Executor's intake channel.
package scanner

import (
	"runtime"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/kernel"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// PriceFeed is the collaborator the Scanner asks for USD conversion;
// pkg/priceusd implements it. Kept as a narrow interface here so
// pkg/scanner never imports pkg/priceusd's HTTP-fetch machinery.
type PriceFeed interface {
	USD(token types.Address) (float64, bool)
}

// GasEstimator returns the current gas cost of one arbitrage
// transaction, denominated in USD, for a given
// chain. A thin collaborator so the Scanner never talks to an RPC
// client directly.
type GasEstimator interface {
	EstimateGasCostUSD(chain types.ChainID) float64
}

// Metrics are the Prometheus counters for the Scanner's skip/drop
// reasons (named counters: cold-pool, stale-drop at
// validate time lives in the Executor, shed, scan-lag-drop).
type Metrics struct {
	ColdPool    prometheus.Counter
	Shed        prometheus.Counter
	ScanLagDrop prometheus.Counter
	KernelFault prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ColdPool:    prometheus.NewCounter(prometheus.CounterOpts{Name: "scanner_cold_pool_total", Help: "Triangle evaluations skipped for a missing snapshot."}),
		Shed:        prometheus.NewCounter(prometheus.CounterOpts{Name: "scanner_shed_total", Help: "Opportunities dropped because the executor intake channel was full."}),
		ScanLagDrop: prometheus.NewCounter(prometheus.CounterOpts{Name: "scanner_scan_lag_drop_total", Help: "Ingress updates dropped because the Scanner fell behind."}),
		KernelFault: prometheus.NewCounter(prometheus.CounterOpts{Name: "scanner_kernel_fault_total", Help: "Triangle evaluations skipped on a Math Kernel fault."}),
	}
	if reg != nil {
		reg.MustRegister(m.ColdPool, m.Shed, m.ScanLagDrop, m.KernelFault)
	}
	return m
}

// Config bundles the Scanner's tunables (recognised
// config keys relevant to this component).
type Config struct {
	Grid             SizeGrid
	MinProfitUSD     float64
	StaleThreshold   uint64 // max block-age of any snapshot used
	MicroBudget      int    // evaluate this many triangles, then yield
	Decimals         map[types.Address]uint8
}

// Scanner evaluates triangles on each accepted pool update.
type Scanner struct {
	store    *store.Store
	index    *TriggerIndex
	flash    *flashpool.Selector
	prices   PriceFeed
	gas      GasEstimator
	log      *zap.Logger
	metrics  *Metrics
	cfg      Config

	Opportunities chan types.Opportunity // bounded; caller sizes it
}

func New(st *store.Store, index *TriggerIndex, flash *flashpool.Selector, prices PriceFeed, gas GasEstimator, log *zap.Logger, metrics *Metrics, cfg Config, opportunityBuffer int) *Scanner {
	return &Scanner{
		store:         st,
		index:         index,
		flash:         flash,
		prices:        prices,
		gas:           gas,
		log:           log,
		metrics:       metrics,
		cfg:           cfg,
		Opportunities: make(chan types.Opportunity, opportunityBuffer),
	}
}

// Run consumes updates from the bounded broadcast channel until it
// closes or stop is closed. back-pressure: if the channel has
// more than one pending item when Run reads, the rest are drained and
// only the most recent is evaluated (scan-lag-drop).
func (s *Scanner) Run(updates <-chan types.SwapUpdate, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			update = s.drainToLatest(updates, update)
			s.OnUpdate(update)
		}
	}
}

func (s *Scanner) drainToLatest(updates <-chan types.SwapUpdate, latest types.SwapUpdate) types.SwapUpdate {
	for {
		select {
		case next, ok := <-updates:
			if !ok {
				return latest
			}
			s.metrics.ScanLagDrop.Inc()
			latest = next
		default:
			return latest
		}
	}
}

// OnUpdate evaluates every triangle triggered by update.Pool,
// cooperatively yielding every MicroBudget triangles so one busy pool
// never starves the event loop.
func (s *Scanner) OnUpdate(update types.SwapUpdate) {
	triangles := s.index.Triangles(update.Pool)
	budget := s.cfg.MicroBudget
	if budget <= 0 {
		budget = 16
	}

	for i, tri := range triangles {
		s.evaluate(tri, update.Block)
		if (i+1)%budget == 0 {
			runtime.Gosched()
		}
	}
}

func (s *Scanner) evaluate(tri *types.Triangle, triggerBlock uint64) {
	snapV3 := func(id types.PoolIdentity) (*types.V3Snapshot, bool) {
		snap, ok := s.store.Get(id)
		if !ok || snap.V3 == nil {
			return nil, false
		}
		return snap.V3, true
	}

	p1, ok1 := snapV3(tri.Hop1.Pool)
	p2, ok2 := snapV3(tri.Hop2.Pool)
	p3, ok3 := snapV3(tri.Hop3.Pool)
	if !ok1 || !ok2 || !ok3 {
		s.metrics.ColdPool.Inc()
		return
	}

	snapBlock := s.store.SnapshotBlock()
	if stale(p1.LastUpdateBlock, snapBlock, s.cfg.StaleThreshold) ||
		stale(p2.LastUpdateBlock, snapBlock, s.cfg.StaleThreshold) ||
		stale(p3.LastUpdateBlock, snapBlock, s.cfg.StaleThreshold) {
		return // freshness gate, step 5 — silently not evaluated, not an error
	}

	priceA, haveA := s.prices.USD(tri.TokenA)
	if !haveA || priceA <= 0 {
		return
	}

	d := func(token types.Address) uint8 { return s.cfg.Decimals[token] }

	best := peakResult{}
	for _, sizeUSD := range s.cfg.Grid.Sizes() {
		x := usdToBaseUnits(sizeUSD, priceA, d(tri.TokenA))

		y, _, f1 := kernel.V3OutApprox(p1.SqrtPriceX96, uint32(p1.Fee), d(tri.Hop1.TokenIn), d(tri.Hop1.TokenOut), tri.Hop1.TokenIn == p1.Token0, x)
		if f1.IsFault() {
			s.metrics.KernelFault.Inc()
			continue
		}
		z, _, f2 := kernel.V3OutApprox(p2.SqrtPriceX96, uint32(p2.Fee), d(tri.Hop2.TokenIn), d(tri.Hop2.TokenOut), tri.Hop2.TokenIn == p2.Token0, y)
		if f2.IsFault() {
			s.metrics.KernelFault.Inc()
			continue
		}
		xPrime, _, f3 := kernel.V3OutApprox(p3.SqrtPriceX96, uint32(p3.Fee), d(tri.Hop3.TokenIn), d(tri.Hop3.TokenOut), tri.Hop3.TokenIn == p3.Token0, z)
		if f3.IsFault() {
			s.metrics.KernelFault.Inc()
			continue
		}

		if xPrime.Cmp(x) <= 0 {
			continue // no gross profit at this size
		}
		grossBase := new(uint256.Int).Sub(xPrime, x)
		grossUSD := baseUnitsToUSD(grossBase, priceA, d(tri.TokenA))

		borrowPool, feeTier, ok := s.flash.Select(tri.TokenA, tri.Pools(), tri.TriggerPool.Chain, x, triggerBlock)
		if !ok {
			continue
		}
		var flashFeeUSD float64
		if feeRate, err := flashpool.ProviderV3Pool.FeeRate(feeTier); err == nil {
			feeBase := flashpool.RepayAmount(x, feeRate)
			feeBase.Sub(feeBase, x)
			flashFeeUSD = baseUnitsToUSD(feeBase, priceA, d(tri.TokenA))
		}

		gasUSD := s.gas.EstimateGasCostUSD(tri.TriggerPool.Chain)
		net := grossUSD - flashFeeUSD - gasUSD

		if net > best.netUSD {
			best = peakResult{
				valid: true, inputBase: x, outputBase: xPrime, grossUSD: grossUSD,
				flashFeeUSD: flashFeeUSD, gasUSD: gasUSD, netUSD: net,
				borrowPool: borrowPool, borrowFeeTier: feeTier,
			}
		}
	}

	if !best.valid || best.netUSD <= 0 || best.netUSD < s.cfg.MinProfitUSD {
		return
	}

	opp := types.Opportunity{
		Triangle:          tri,
		InputAmount:       best.inputBase,
		ExpectedOutput:    best.outputBase,
		GrossProfitUSD:    best.grossUSD,
		GasEstimateUSD:    best.gasUSD,
		FlashFeeUSD:       best.flashFeeUSD,
		NetProfitUSD:      best.netUSD,
		TriggerBlock:      triggerBlock,
		DiscoveredAt:      time.Now(),
		BorrowPool:        best.borrowPool,
		BorrowPoolFeeTier: best.borrowFeeTier,
	}
	s.emit(opp)
}

type peakResult struct {
	valid         bool
	inputBase     *uint256.Int
	outputBase    *uint256.Int
	grossUSD      float64
	flashFeeUSD   float64
	gasUSD        float64
	netUSD        float64
	borrowPool    types.PoolIdentity
	borrowFeeTier types.FeeTier
}

// emit pushes an opportunity into the bounded output channel,
// dropping the oldest pending one on overflow.
func (s *Scanner) emit(opp types.Opportunity) {
	select {
	case s.Opportunities <- opp:
	default:
		select {
		case <-s.Opportunities:
			s.metrics.Shed.Inc()
		default:
		}
		select {
		case s.Opportunities <- opp:
		default:
		}
	}
}

func stale(snapBlock, currentBlock, threshold uint64) bool {
	if currentBlock < snapBlock {
		return false
	}
	return currentBlock-snapBlock > threshold
}
