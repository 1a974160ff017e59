// Package backtest is the Back-Tester: it downloads
// swap-log history in batches, replays it block by block against a
// local Pool-State Store using a capture-ratio sizing model instead
// of the live size grid, and reports aggregate and per-path
// statistics plus the top profitable traces it found.
package backtest

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// SwapRecord is one decoded and persisted Swap log: chain, block, ts,
// pool, amounts, sqrtPriceX96, tick, liquidity, and usd-volume.
// TxHash/LogIndex together with Chain form the idempotency key the
// downloader upserts on.
type SwapRecord struct {
	Chain           types.ChainID
	Pool            types.Address
	Block           uint64
	BlockTimestamp  uint64
	TxHash          common.Hash
	LogIndex        uint
	Amount0         *uint256.Int
	Amount0Neg      bool
	Amount1         *uint256.Int
	Amount1Neg      bool
	SqrtPriceX96    *uint256.Int
	Liquidity       *uint256.Int
	Tick            int32
	USDVolume       float64
}

// CaptureRatio is the fraction of a block's real USD volume the
// replay model assumes the strategy could have captured as its own
// input size, restricted to a fixed set: 10%, 25%, 50%, 100%.
type CaptureRatio uint32

const (
	Capture10  CaptureRatio = 10
	Capture25  CaptureRatio = 25
	Capture50  CaptureRatio = 50
	Capture100 CaptureRatio = 100
)

// CaptureRatios is the fixed replay grid; every triggered block-path
// is evaluated at each of these in turn, never a continuous scan.
var CaptureRatios = [4]CaptureRatio{Capture10, Capture25, Capture50, Capture100}

func (c CaptureRatio) Fraction() float64 { return float64(c) / 100.0 }

// TriggerEvent is the causal diagnostic attached to every recorded
// opportunity: the real user trade in the trigger pool that moved its
// price, distinct from the three synthetic hops the replay itself
// executes.
type TriggerEvent struct {
	Pool          types.PoolIdentity
	PoolFeePct    float64
	PoolVolumeUSD float64
	SellToken     types.Address
	BuyToken      types.Address
}

// ArbitrageStep is one leg of the replayed triangle, recorded purely
// for the human-readable trace — not consumed by any downstream
// scoring.
type ArbitrageStep struct {
	Step       int
	Pool       types.PoolIdentity
	FeePercent float64
	SellToken  types.Address
	SellAmount float64
	BuyToken   types.Address
	BuyAmount  float64
}

// Opportunity is one capture-ratio replay of one triggered triangle
// at one block: "gross, gas, flash-fee, and real-net
// values, plus a causal diagnostic".
type Opportunity struct {
	Block             uint64
	BlockTimestamp    time.Time
	Triangle          *types.Triangle
	RealVolumeUSD     float64
	Capture           CaptureRatio
	InputAmountUSD    float64
	OutputAmountUSD   float64
	GrossProfitUSD    float64
	GasCostUSD        float64
	NetProfitUSD      float64 // gross - gas, own-funds scenario
	FlashFeeUSD       float64
	RealNetProfitUSD  float64 // gross - gas - flash fee, flash-loan scenario
	PriceDeviationPct float64
	TotalFeePct       float64
	ArbSpreadPct      float64
	Trigger           *TriggerEvent
	Steps             []ArbitrageStep
}

func (o *Opportunity) IsProfitable() bool { return o.RealNetProfitUSD > 0 }

// PathStatistics aggregates every replay of one triangle across the
// whole backtest window.
type PathStatistics struct {
	PathName        string
	TriangleID      int
	AnalysisCount   uint64
	ProfitableCount uint64
	MaxProfitUSD    float64
	TotalProfitUSD  float64
}

func (p *PathStatistics) AvgProfitUSD() float64 {
	if p.AnalysisCount == 0 {
		return 0
	}
	return p.TotalProfitUSD / float64(p.AnalysisCount)
}

func (p *PathStatistics) record(netProfitUSD float64) {
	p.AnalysisCount++
	p.TotalProfitUSD += netProfitUSD
	if netProfitUSD > 0 {
		p.ProfitableCount++
	}
	if netProfitUSD > p.MaxProfitUSD {
		p.MaxProfitUSD = netProfitUSD
	}
}

// Statistics is the complete output of a backtest run: aggregate and
// per-path statistics plus the top-N profitable opportunity traces.
type Statistics struct {
	StartBlock             uint64
	EndBlock               uint64
	StartTimestamp         time.Time
	EndTimestamp           time.Time
	TotalBlocks            uint64
	BlocksWithSwaps        uint64
	TotalVolumeUSD         float64
	PathStats              []*PathStatistics
	ProfitableOpportunities []Opportunity
}
