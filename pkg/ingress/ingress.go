// Package ingress is Chain Ingress: it keeps a new-block-head
// subscription and a filtered swap-log subscription open against an
// EVM node, decodes each log into a types.SwapUpdate, and hands
// accepted updates to the Pool-State Store and onward to the Scanner.
package ingress

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/kernel"
	poolstore "github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	domain "github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// SwapEventSignature is the topic0 of the monitored V3 Swap event:
// Swap(address,address,int256,int256,uint160,uint128,int24).
var SwapEventSignature = crypto.Keccak256Hash([]byte("Swap(address,address,int256,int256,uint160,uint128,int24)"))

// Metrics are the Prometheus counters "per-counter
// atomic integers" become in this package; registered once per
// process via NewMetrics and shared across every chain's Ingress.
type Metrics struct {
	DecodeFailures prometheus.Counter
	Dropped        prometheus.Counter
	Reconnects     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingress_decode_failures_total",
			Help: "Swap logs dropped because they could not be decoded.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingress_stale_or_rejected_total",
			Help: "Swap updates rejected by the Pool-State Store's monotone-block guard.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ingress_reconnects_total",
			Help: "Subscription reconnect attempts after a transport error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DecodeFailures, m.Dropped, m.Reconnects)
	}
	return m
}

// PoolMeta is the static per-pool metadata Ingress needs to turn a
// decoded Swap log into a full types.V3Snapshot: the token pair and
// fee tier, neither of which travels in the Swap event payload itself
// (log layout carries only amounts/price/liquidity/tick).
// The same split as pkg/backtest.PoolMeta, supplied once at startup
// from configuration rather than read from a database row.
type PoolMeta struct {
	Identity       domain.PoolIdentity
	Token0, Token1 common.Address
	Fee            domain.FeeTier
}

// Ingress owns the two subscriptions for a single chain.
type Ingress struct {
	client  *ethclient.Client
	store   *poolstore.Store
	log     *zap.Logger
	metrics *Metrics
	chain   domain.ChainID

	monitored map[common.Address]PoolMeta
	updates   chan domain.SwapUpdate // bounded broadcast to the Scanner
}

// New constructs an Ingress for chain watching the given pools.
// updates is the bounded channel the Scanner reads from; sized by the
// caller back-pressure rule (Ingress never blocks
// on a full channel — see publish).
func New(client *ethclient.Client, st *poolstore.Store, log *zap.Logger, metrics *Metrics, chain domain.ChainID, monitored []PoolMeta, updates chan domain.SwapUpdate) *Ingress {
	m := make(map[common.Address]PoolMeta, len(monitored))
	for _, p := range monitored {
		m[p.Identity.Address] = p
	}
	return &Ingress{client: client, store: st, log: log, metrics: metrics, chain: chain, monitored: m, updates: updates}
}

// Run starts both subscriptions and blocks until ctx is cancelled.
// Each subscription runs its own reconnect loop; a transport error on
// one never interrupts the other.
func (ig *Ingress) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- ig.runHeads(ctx) }()
	go func() { errCh <- ig.runLogs(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (ig *Ingress) runHeads(ctx context.Context) error {
	return withReconnect(ctx, ig.log, ig.metrics, "newHeads", func(ctx context.Context) error {
		heads := make(chan *types.Header, 16)
		sub, err := ig.client.SubscribeNewHead(ctx, heads)
		if err != nil {
			return fmt.Errorf("subscribe newHeads: %w", err)
		}
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-sub.Err():
				return fmt.Errorf("newHeads subscription: %w", err)
			case head := <-heads:
				ig.log.Debug("new head", zap.Uint64("block", head.Number.Uint64()))
			}
		}
	})
}

func (ig *Ingress) runLogs(ctx context.Context) error {
	addrs := make([]common.Address, 0, len(ig.monitored))
	for a := range ig.monitored {
		addrs = append(addrs, a)
	}
	if len(addrs) == 0 {
		<-ctx.Done() // monitored_pools empty: block-only ingress, no scan
		return ctx.Err()
	}

	query := ethereum.FilterQuery{
		Addresses: addrs,
		Topics:    [][]common.Hash{{SwapEventSignature}},
	}

	return withReconnect(ctx, ig.log, ig.metrics, "logs", func(ctx context.Context) error {
		logs := make(chan types.Log, 256)
		sub, err := ig.client.SubscribeFilterLogs(ctx, query, logs)
		if err != nil {
			return fmt.Errorf("subscribe logs: %w", err)
		}
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-sub.Err():
				return fmt.Errorf("logs subscription: %w", err)
			case lg := <-logs:
				ig.handleLog(lg)
			}
		}
	})
}

func (ig *Ingress) handleLog(lg types.Log) {
	meta, known := ig.monitored[lg.Address]
	if !known {
		return // address filter should prevent this; defensive no-op
	}

	update, fault := DecodeSwapLog(lg, meta.Identity)
	if fault.IsFault() {
		ig.metrics.DecodeFailures.Inc()
		ig.log.Warn("swap log decode failed", zap.String("fault", fault.String()), zap.Stringer("pool", meta.Identity.Address))
		return
	}

	snap := domain.PoolSnapshot{
		Identity: meta.Identity,
		V3: &domain.V3Snapshot{
			Identity:        meta.Identity,
			Token0:          meta.Token0,
			Token1:          meta.Token1,
			Fee:             meta.Fee,
			SqrtPriceX96:    update.SqrtPriceX96,
			Tick:            update.Tick,
			Liquidity:       update.Liquidity,
			LastUpdateBlock: update.Block,
		},
	}

	// The Store is the sole source of truth for "accepted"; only a
	// newly-accepted update is handed onward to the Scanner, matching
	// "decoded update is handed to the Pool-State Store
	// and then, if accepted, broadcast to the Scanner."
	if !ig.store.Update(meta.Identity, snap, update.Block) {
		ig.metrics.Dropped.Inc()
		return
	}

	ig.publish(update)
}

// publish hands the update to the Scanner's broadcast queue without
// blocking Ingress: on overflow the oldest pending update is dropped
// to make room, matching scan-lag-drop rule.
func (ig *Ingress) publish(update domain.SwapUpdate) {
	select {
	case ig.updates <- update:
	default:
		select {
		case <-ig.updates:
		default:
		}
		select {
		case ig.updates <- update:
		default:
		}
	}
}

// DecodeSwapLog decodes a raw Swap event log into a SwapUpdate. Layout
//: [0..32)=int256 amount0, [32..64)=int256 amount1,
// [64..96)=uint160 sqrtPriceX96, [96..128)=uint128 liquidity,
// [128..160)=int24 tick (sign-extended from the low 3 bytes). A
// payload under 160 bytes is rejected outright (Open Question (b):
// treat a missing tick as reject, never partially accept).
func DecodeSwapLog(lg types.Log, pool domain.PoolIdentity) (domain.SwapUpdate, kernel.Fault) {
	data := lg.Data
	if len(data) < 160 {
		return domain.SwapUpdate{}, kernel.FaultMalformed
	}

	amount0, neg0, f := kernel.ParseInt256(data[0:32])
	if f.IsFault() {
		return domain.SwapUpdate{}, f
	}
	amount1, neg1, f := kernel.ParseInt256(data[32:64])
	if f.IsFault() {
		return domain.SwapUpdate{}, f
	}

	sqrtPriceX96 := new(uint256.Int).SetBytes(data[64:96])
	liquidity := new(uint256.Int).SetBytes(data[112:128])

	tick, f := kernel.ParseInt24(data[128:160])
	if f.IsFault() {
		return domain.SwapUpdate{}, f
	}

	return domain.SwapUpdate{
		Pool:         pool,
		Block:        lg.BlockNumber,
		TxHash:       lg.TxHash,
		LogIndex:     lg.Index,
		Amount0:      amount0,
		Amount0Neg:   neg0,
		Amount1:      amount1,
		Amount1Neg:   neg1,
		SqrtPriceX96: sqrtPriceX96,
		Liquidity:    liquidity,
		Tick:         tick,
		ObservedAt:   time.Now(),
	}, kernel.FaultNone
}

// withReconnect runs fn, and on any error other than context
// cancellation, retries with exponential backoff plus up to 50% jitter —
// the base delay is capped at 30s, so a wait never exceeds 45s,
// matching reconnect requirement. No stale events are ever delivered during a gap: the
// Store simply keeps serving its last-accepted state until the
// reconnect resumes.
func withReconnect(ctx context.Context, log *zap.Logger, metrics *Metrics, name string, fn func(context.Context) error) error {
	backoff := 500 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			continue // subscription ended cleanly; re-establish
		}

		metrics.Reconnects.Inc()
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		wait := backoff + jitter
		log.Warn("subscription dropped, reconnecting",
			zap.String("subscription", name), zap.Error(err), zap.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
