// Package executor is the Executor: it converts a
// Scanner-emitted Opportunity into an atomic on-chain submission,
// carrying it through Received -> Validated -> Built -> Simulated ->
// Submitted -> (Included | Reverted | Timeout), with at most one
// in-flight submission per chain to avoid nonce clashes.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/internal/signer"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/contractclient"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/kernel"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/txlistener"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// PriceFeed mirrors pkg/scanner.PriceFeed; kept as its own narrow
// interface rather than imported so pkg/executor never depends on
// pkg/scanner (no component is in another's call graph by reference).
type PriceFeed interface {
	USD(token types.Address) (float64, bool)
}

// GasEstimator mirrors pkg/scanner.GasEstimator, same reasoning.
type GasEstimator interface {
	EstimateGasCostUSD(chain types.ChainID) float64
}

// BundleSubmitter is the private-relay collaborator;
// pkg/relay.Client implements it. An Executor configured without one
// per chain can only use SubmitPublic for that chain.
type BundleSubmitter interface {
	SubmitBundle(ctx context.Context, chain types.ChainID, signedTxHex string, targetBlock uint64) (included bool, txHash common.Hash, err error)
}

// ReceiptWaiter is the narrow slice of *txlistener.TxListener this
// package depends on, so a fake can stand in under test.
type ReceiptWaiter interface {
	WaitForTransaction(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// ChainConfig bundles the per-chain collaborators and settings the
// Executor needs: its bound FlashArbitrage contract client, signer,
// receipt listener, submission mode, and optional relay.
type ChainConfig struct {
	Contract        contractclient.ContractClient
	Signer          *signer.Signer
	Listener        ReceiptWaiter
	Mode            types.SubmitMode
	Relay           BundleSubmitter // required when Mode == SubmitPrivate
	MaxBlockRetries int
	BlockTime       time.Duration // used to size the inclusion deadline
}

// Config bundles the Executor's tunables (executor keys).
type Config struct {
	Chains            map[types.ChainID]ChainConfig
	Decimals          map[types.Address]uint8
	MinProfitUSD      float64
	StaleThreshold    uint64
	ConfirmBlocks     int // default inclusion deadline, in target blocks
	Workers           int
}

// Metrics are the Prometheus counters for the Executor's terminal
// outcomes (per-reason revert counters plus stale-drop).
type Metrics struct {
	StaleDrop      prometheus.Counter
	Included       prometheus.Counter
	Reverted       *prometheus.CounterVec
	TimedOut       prometheus.Counter
	SimulateFailed *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StaleDrop: prometheus.NewCounter(prometheus.CounterOpts{Name: "executor_stale_drop_total", Help: "Opportunities dropped at validate time: stale, missing or unpriced snapshots, or net profit below the threshold."}),
		Included:  prometheus.NewCounter(prometheus.CounterOpts{Name: "executor_included_total", Help: "Submissions that landed with status=1."}),
		Reverted:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "executor_reverted_total", Help: "Submissions that landed with status=0, by classification."}, []string{"reason"}),
		TimedOut:  prometheus.NewCounter(prometheus.CounterOpts{Name: "executor_timed_out_total", Help: "Submissions not included within the confirmation deadline."}),
		SimulateFailed: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "executor_simulate_failed_total", Help: "Opportunities dropped at simulate time, by classification."}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.StaleDrop, m.Included, m.Reverted, m.TimedOut, m.SimulateFailed)
	}
	return m
}

// Executor runs the validate/build/simulate/submit/wait pipeline for
// every opportunity it receives.
type Executor struct {
	store   *store.Store
	flash   *flashpool.Selector
	prices  PriceFeed
	gas     GasEstimator
	log     *zap.Logger
	metrics *Metrics
	cfg     Config

	Results chan types.ExecutionResult

	submitLocks sync.Map // types.ChainID -> *sync.Mutex, serialises Submit per chain
}

func New(st *store.Store, flash *flashpool.Selector, prices PriceFeed, gas GasEstimator, log *zap.Logger, metrics *Metrics, cfg Config, resultBuffer int) *Executor {
	return &Executor{
		store:   st,
		flash:   flash,
		prices:  prices,
		gas:     gas,
		log:     log,
		metrics: metrics,
		cfg:     cfg,
		Results: make(chan types.ExecutionResult, resultBuffer),
	}
}

// Run consumes opportunities from in, fanning out across a bounded
// worker pool; each worker runs the full pipeline for one opportunity
// at a time. Validate/Build/Simulate run unsynchronised across
// workers; only the Submit step is serialised per chain.
func (e *Executor) Run(ctx context.Context, in <-chan types.Opportunity) {
	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case opp, ok := <-in:
					if !ok {
						return
					}
					e.process(ctx, opp)
				}
			}
		}()
	}
	wg.Wait()
}

func (e *Executor) process(ctx context.Context, opp types.Opportunity) {
	chain := opp.Triangle.TriggerPool.Chain
	chainCfg, ok := e.cfg.Chains[chain]
	if !ok {
		e.log.Warn("executor: no chain config", zap.Uint64("chain", uint64(chain)))
		return
	}

	revalidated, ok := e.validate(opp)
	if !ok {
		e.metrics.StaleDrop.Inc()
		return
	}

	params, err := e.build(revalidated)
	if err != nil {
		e.log.Warn("executor: build failed", zap.Int("triangle", revalidated.Triangle.ID), zap.Error(err))
		return
	}

	signerAddr := chainCfg.Signer.Address()
	if _, err := chainCfg.Contract.Call(ctx, &signerAddr, "executeArbitrage", params); err != nil {
		cls := Classify(chainCfg.Contract.Abi(), err)
		e.metrics.SimulateFailed.WithLabelValues(cls.Kind.String()).Inc()
		e.log.Info("executor: simulation reverted", zap.Int("triangle", revalidated.Triangle.ID), zap.String("kind", cls.Kind.String()), zap.String("reason", cls.Reason))
		if cls.Kind == RevertProfitBelowMinimum {
			// The borrow pool itself is not necessarily at fault, but a
			// thin-margin simulate failure is exactly the signal that
			// should force the selector to reconsider its cached choice.
			e.flash.InvalidateOnRevert(revalidated.Triangle.TokenA, revalidated.Triangle.Pools(), chain)
		}
		return
	}

	e.submitAndWait(ctx, chain, chainCfg, revalidated, params)
}

// validate reconfirms freshness and recomputes net profit against
// current snapshots at the opportunity's already-chosen size,
// dropping (stale-drop) if it no longer clears the threshold.
func (e *Executor) validate(opp types.Opportunity) (types.Opportunity, bool) {
	tri := opp.Triangle
	snapV3 := func(id types.PoolIdentity) (*types.V3Snapshot, bool) {
		snap, ok := e.store.Get(id)
		if !ok || snap.V3 == nil {
			return nil, false
		}
		return snap.V3, true
	}

	p1, ok1 := snapV3(tri.Hop1.Pool)
	p2, ok2 := snapV3(tri.Hop2.Pool)
	p3, ok3 := snapV3(tri.Hop3.Pool)
	if !ok1 || !ok2 || !ok3 {
		return opp, false
	}

	current := e.store.SnapshotBlock()
	if stale(p1.LastUpdateBlock, current, e.cfg.StaleThreshold) ||
		stale(p2.LastUpdateBlock, current, e.cfg.StaleThreshold) ||
		stale(p3.LastUpdateBlock, current, e.cfg.StaleThreshold) {
		return opp, false
	}

	priceA, haveA := e.prices.USD(tri.TokenA)
	if !haveA || priceA <= 0 {
		return opp, false
	}

	d := func(token types.Address) uint8 { return e.cfg.Decimals[token] }
	x := opp.InputAmount

	y, _, f1 := kernel.V3OutApprox(p1.SqrtPriceX96, uint32(p1.Fee), d(tri.Hop1.TokenIn), d(tri.Hop1.TokenOut), tri.Hop1.TokenIn == p1.Token0, x)
	z, _, f2 := kernel.V3OutApprox(p2.SqrtPriceX96, uint32(p2.Fee), d(tri.Hop2.TokenIn), d(tri.Hop2.TokenOut), tri.Hop2.TokenIn == p2.Token0, y)
	xPrime, _, f3 := kernel.V3OutApprox(p3.SqrtPriceX96, uint32(p3.Fee), d(tri.Hop3.TokenIn), d(tri.Hop3.TokenOut), tri.Hop3.TokenIn == p3.Token0, z)
	if f1.IsFault() || f2.IsFault() || f3.IsFault() || xPrime.Cmp(x) <= 0 {
		return opp, false
	}

	grossUSD := baseUnitsToUSD(new(uint256.Int).Sub(xPrime, x), priceA, d(tri.TokenA))

	var flashFeeUSD float64
	if feeRate, err := flashpool.ProviderV3Pool.FeeRate(opp.BorrowPoolFeeTier); err == nil {
		feeBase := flashpool.RepayAmount(x, feeRate)
		feeBase.Sub(feeBase, x)
		flashFeeUSD = baseUnitsToUSD(feeBase, priceA, d(tri.TokenA))
	}

	gasUSD := e.gas.EstimateGasCostUSD(tri.TriggerPool.Chain)
	net := grossUSD - flashFeeUSD - gasUSD
	if net <= 0 || net < e.cfg.MinProfitUSD {
		return opp, false
	}

	revalidated := opp
	revalidated.ExpectedOutput = xPrime
	revalidated.GrossProfitUSD = grossUSD
	revalidated.FlashFeeUSD = flashFeeUSD
	revalidated.GasEstimateUSD = gasUSD
	revalidated.NetProfitUSD = net
	return revalidated, true
}

// build assembles the contract calldata's tuple argument. Fees always
// come from the triangle's pool snapshots in the Store, never a default.
func (e *Executor) build(opp types.Opportunity) (arbitrageParams, error) {
	tri := opp.Triangle
	fee1, ok1 := poolFee(e.store, tri.Hop1.Pool)
	fee2, ok2 := poolFee(e.store, tri.Hop2.Pool)
	fee3, ok3 := poolFee(e.store, tri.Hop3.Pool)
	if !ok1 || !ok2 || !ok3 {
		return arbitrageParams{}, fmt.Errorf("executor: missing fee tier for one of the triangle's pools")
	}

	// The contract's own minProfit is a dust-level on-chain floor (just
	// above zero); the real profitability gate already ran off-chain in
	// validate, against live USD pricing the contract has no access to.
	minProfit := uint256.NewInt(1)
	return arbitrageParams{
		FlashPool:        opp.BorrowPool.Address,
		TokenA:           tri.TokenA,
		TokenB:           tri.TokenB,
		TokenC:           tri.TokenC,
		Fee1:             big.NewInt(int64(fee1)),
		Fee2:             big.NewInt(int64(fee2)),
		Fee3:             big.NewInt(int64(fee3)),
		AmountIn:         opp.InputAmount.ToBig(),
		MinProfit:        minProfit.ToBig(),
		ProfitToken:      tri.TokenA,
		ProfitConvertFee: big.NewInt(0),
	}, nil
}

func poolFee(st *store.Store, id types.PoolIdentity) (types.FeeTier, bool) {
	snap, ok := st.Get(id)
	if !ok || snap.V3 == nil {
		return 0, false
	}
	return snap.V3.Fee, true
}

func (e *Executor) submitAndWait(ctx context.Context, chain types.ChainID, chainCfg ChainConfig, opp types.Opportunity, params arbitrageParams) {
	lockIface, _ := e.submitLocks.LoadOrStore(chain, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	signerAddr := chainCfg.Signer.Address()

	if chainCfg.Mode == types.SubmitPrivate {
		e.submitPrivateAndWait(ctx, chain, chainCfg, &signerAddr, opp, params)
		return
	}

	txHash, err := chainCfg.Contract.Send(ctx, &signerAddr, chainCfg.Signer.PrivateKey(), nil, "executeArbitrage", params)
	if err != nil {
		cls := Classify(chainCfg.Contract.Abi(), err)
		e.metrics.Reverted.WithLabelValues(cls.Kind.String()).Inc()
		e.log.Info("executor: submission failed", zap.Int("triangle", opp.Triangle.ID), zap.String("reason", cls.Reason))
		return
	}
	e.waitAndEmit(ctx, chain, chainCfg, opp, txHash)
}

// submitPrivateAndWait signs without broadcasting and hands the
// signed transaction to the relay. A sign failure or a relay
// transport error is a genuine submission failure, counted as a
// revert. "Not included after budget" -- the relay exhausted every
// retargeted block with no confirmed inclusion -- is a non-error
// outcome: it is routed straight to StatusTimedOut and emitted as a
// terminal result, since the relay's own block-retry budget is the
// authoritative submission deadline here, not the receipt listener.
func (e *Executor) submitPrivateAndWait(ctx context.Context, chain types.ChainID, chainCfg ChainConfig, from *common.Address, opp types.Opportunity, params arbitrageParams) {
	if chainCfg.Relay == nil {
		e.log.Warn("executor: chain configured for private submission with no relay", zap.Uint64("chain", uint64(chain)))
		return
	}

	// Sign without broadcasting: the whole point of the private path is
	// that the signed transaction only ever reaches the relay, never
	// the public mempool via a node's ordinary eth_sendRawTransaction.
	signed, err := chainCfg.Contract.Sign(ctx, from, chainCfg.Signer.PrivateKey(), nil, "executeArbitrage", params)
	if err != nil {
		cls := Classify(chainCfg.Contract.Abi(), err)
		e.metrics.Reverted.WithLabelValues(cls.Kind.String()).Inc()
		e.log.Info("executor: submission failed", zap.Int("triangle", opp.Triangle.ID), zap.String("reason", cls.Reason))
		return
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		e.log.Warn("executor: encode signed tx failed", zap.Int("triangle", opp.Triangle.ID), zap.Error(err))
		return
	}

	// First target is the block after the one that triggered the
	// opportunity; the relay rejects a bundle with no target block.
	included, txHash, err := chainCfg.Relay.SubmitBundle(ctx, chain, hexutil.Encode(raw), opp.TriggerBlock+1)
	if err != nil {
		// A relay transport/JSON-RPC error has no EVM revert data to
		// decode, so it is counted directly rather than run through
		// Classify, which only makes sense against a contract call error.
		e.metrics.Reverted.WithLabelValues(RevertGeneric.String()).Inc()
		e.log.Info("executor: relay submission failed", zap.Int("triangle", opp.Triangle.ID), zap.Error(err))
		return
	}
	if !included {
		result := types.ExecutionResult{Chain: chain, TriangleID: opp.Triangle.ID, TxHash: signed.Hash(), Status: types.StatusTimedOut}
		e.metrics.TimedOut.Inc()
		e.log.Info("executor: submission terminal",
			zap.Int("triangle", opp.Triangle.ID),
			zap.String("status", result.Status.String()),
			zap.Float64("expected_net_usd", opp.NetProfitUSD),
		)
		e.emit(result)
		return
	}

	e.waitAndEmit(ctx, chain, chainCfg, opp, txHash)
}

// waitAndEmit blocks for a receipt up to the chain's confirmation
// deadline and emits the resulting terminal ExecutionResult.
func (e *Executor) waitAndEmit(ctx context.Context, chain types.ChainID, chainCfg ChainConfig, opp types.Opportunity, txHash common.Hash) {
	deadline := time.Duration(confirmBlocks(chainCfg, e.cfg.ConfirmBlocks)) * chainCfg.BlockTime
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	receipt, err := chainCfg.Listener.WaitForTransaction(waitCtx, txHash)
	result := types.ExecutionResult{Chain: chain, TriangleID: opp.Triangle.ID, TxHash: txHash}
	switch {
	case err == txlistener.ErrTimeout || waitCtx.Err() != nil:
		result.Status = types.StatusTimedOut
		e.metrics.TimedOut.Inc()
	case err != nil:
		result.Status = types.StatusFailed
		result.RevertReason = err.Error()
	case receipt.Status == 1:
		result.Status = types.StatusIncluded
		result.Block = receipt.BlockNumber.Uint64()
		result.GasUsed = receipt.GasUsed
		result.ActualProfitUSD = opp.NetProfitUSD
		e.metrics.Included.Inc()
	default:
		result.Status = types.StatusReverted
		result.Block = receipt.BlockNumber.Uint64()
		result.GasUsed = receipt.GasUsed
		e.metrics.Reverted.WithLabelValues("onchain-revert").Inc()
		e.flash.InvalidateOnRevert(opp.Triangle.TokenA, opp.Triangle.Pools(), chain)
	}

	e.log.Info("executor: submission terminal",
		zap.Int("triangle", opp.Triangle.ID),
		zap.String("status", result.Status.String()),
		zap.Float64("expected_net_usd", opp.NetProfitUSD),
	)
	e.emit(result)
}

func (e *Executor) emit(result types.ExecutionResult) {
	select {
	case e.Results <- result:
	default:
		select {
		case <-e.Results:
		default:
		}
		select {
		case e.Results <- result:
		default:
		}
	}
}

func confirmBlocks(cfg ChainConfig, fallback int) int {
	if cfg.MaxBlockRetries > 0 {
		return cfg.MaxBlockRetries
	}
	if fallback > 0 {
		return fallback
	}
	return 3
}

func stale(snapBlock, currentBlock, threshold uint64) bool {
	if currentBlock < snapBlock {
		return false
	}
	return currentBlock-snapBlock > threshold
}
