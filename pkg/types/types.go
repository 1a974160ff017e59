// Package types holds the data model shared by every subsystem: pool
// identities and snapshots, triangle descriptors, opportunities, and
// execution results. Nothing here does I/O; it is the vocabulary the
// rest of the engine is built from.
package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Address is the chain-level 20-byte identifier shared by pools,
// tokens, and wallets. Aliased to go-ethereum's common.Address so it
// compares and hashes by value and plugs directly into ethclient/abi
// calls without conversion.
type Address = common.Address

// ChainID identifies an EVM chain.
type ChainID uint64

// DEXFamily tags the AMM model a pool implements.
type DEXFamily int

const (
	DEXUnknown DEXFamily = iota
	DEXV2                // constant product, flat fee
	DEXV3                // concentrated liquidity, per-pool fee tier
	DEXStable            // stable-curve; read-only, never used for execution
)

func (f DEXFamily) String() string {
	switch f {
	case DEXV2:
		return "v2"
	case DEXV3:
		return "v3"
	case DEXStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Token describes an ERC-20 the engine reasons about.
type Token struct {
	Address  Address
	Symbol   string
	Decimals uint8 // 0..=18
}

// PoolIdentity uniquely names a pool across chains.
type PoolIdentity struct {
	Chain   ChainID
	Address Address
	Family  DEXFamily
}

// FeeTier is a pool fee expressed in hundredths of a basis point
// (1e6 units), matching Uniswap V3's fee representation: 500 = 0.05%,
// 3000 = 0.30%, 10000 = 1%.
type FeeTier uint32

const (
	FeeTier01  FeeTier = 100   // 0.01%
	FeeTier05  FeeTier = 500   // 0.05%
	FeeTier25  FeeTier = 2500  // 0.25%
	FeeTier30  FeeTier = 3000  // 0.30%
	FeeTier100 FeeTier = 10000 // 1%
)

// V2Snapshot is a constant-product pool's pricing state at a point in
// time. Reserves are exact 256-bit integers — never float64 — because
// the Math Kernel must reproduce on-chain truncating division bit for
// bit.
type V2Snapshot struct {
	Identity        PoolIdentity
	Token0, Token1  Address
	Reserve0        *uint256.Int
	Reserve1        *uint256.Int
	Fee             FeeTier
	LastUpdateBlock uint64
}

// Clone returns an independently-owned copy so a reader can never see
// a field mutated out from under it after Store.Get returns.
func (s *V2Snapshot) Clone() *V2Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Reserve0 = new(uint256.Int).Set(s.Reserve0)
	cp.Reserve1 = new(uint256.Int).Set(s.Reserve1)
	return &cp
}

// V3Snapshot is a concentrated-liquidity pool's pricing state.
// SqrtPriceX96 is the Q64.96 fixed-point square root of price,
// Tick is the signed 24-bit tick consistent with it to one unit, and
// Liquidity is the active liquidity at the current tick.
type V3Snapshot struct {
	Identity        PoolIdentity
	Token0, Token1  Address
	Fee             FeeTier
	SqrtPriceX96    *uint256.Int
	Tick            int32 // signed 24-bit range, stored widened
	Liquidity       *uint256.Int
	LastUpdateBlock uint64
}

func (s *V3Snapshot) Clone() *V3Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.SqrtPriceX96 = new(uint256.Int).Set(s.SqrtPriceX96)
	cp.Liquidity = new(uint256.Int).Set(s.Liquidity)
	return &cp
}

// PoolSnapshot is a tagged union over the two executable pool
// families plus the read-only stable-curve variant. Exactly one of
// V2/V3 is non-nil for DEXV2/DEXV3; both nil for DEXStable.
type PoolSnapshot struct {
	Identity PoolIdentity
	V2       *V2Snapshot
	V3       *V3Snapshot
}

// Hop is one leg of a triangle: swap TokenIn for TokenOut through
// Pool.
type Hop struct {
	Pool     PoolIdentity
	TokenIn  Address
	TokenOut Address
}

// Triangle is a preconfigured closed path A->B->C->A across three
// pools. Immutable once loaded; the Scanner references triangles by
// index, never by value copy of mutable state.
type Triangle struct {
	ID          int
	TokenA      Address
	TokenB      Address
	TokenC      Address
	Hop1        Hop // A->B via p1
	Hop2        Hop // B->C via p2
	Hop3        Hop // C->A via p3
	TriggerPool PoolIdentity
	Priority    int
	Enabled     bool
}

// Pools returns the triangle's three swap pools in hop order.
func (t *Triangle) Pools() [3]PoolIdentity {
	return [3]PoolIdentity{t.Hop1.Pool, t.Hop2.Pool, t.Hop3.Pool}
}

// ContainsPool reports whether addr is one of the triangle's three
// swap pools or its trigger pool.
func (t *Triangle) ContainsPool(id PoolIdentity) bool {
	if id == t.TriggerPool {
		return true
	}
	for _, p := range t.Pools() {
		if p == id {
			return true
		}
	}
	return false
}

// SwapUpdate is a decoded on-chain swap event handed from Chain
// Ingress to the Pool-State Store and, once accepted, to the Scanner.
type SwapUpdate struct {
	Pool         PoolIdentity
	Block        uint64
	TxHash       common.Hash
	LogIndex     uint
	Amount0      *uint256.Int // magnitude; sign tracked separately on decode
	Amount0Neg   bool
	Amount1      *uint256.Int
	Amount1Neg   bool
	SqrtPriceX96 *uint256.Int
	Liquidity    *uint256.Int
	Tick         int32
	ObservedAt   time.Time
}

// Opportunity is an evaluated triangle ready for (or rejected from)
// execution.
type Opportunity struct {
	Triangle          *Triangle
	InputAmount       *uint256.Int // in currency-A base units
	ExpectedOutput    *uint256.Int
	GrossProfitUSD    float64
	GasEstimateUSD    float64
	FlashFeeUSD       float64
	NetProfitUSD      float64
	TriggerBlock      uint64
	DiscoveredAt      time.Time
	BorrowPool        PoolIdentity
	BorrowPoolFeeTier FeeTier
}

// ExecutionStatus is the terminal (or in-flight) state of a submitted
// opportunity. Monotone: Submitted < (Included|Reverted|Timeout).
type ExecutionStatus int

const (
	StatusSubmitted ExecutionStatus = iota
	StatusIncluded
	StatusFailed
	StatusReverted
	StatusTimedOut
)

func (s ExecutionStatus) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusIncluded:
		return "included"
	case StatusFailed:
		return "failed"
	case StatusReverted:
		return "reverted"
	case StatusTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// ExecutionResult is the terminal record of one executor run.
type ExecutionResult struct {
	Chain           ChainID
	TriangleID      int
	TxHash          common.Hash
	Status          ExecutionStatus
	Block           uint64
	ActualProfitUSD float64
	GasUsed         uint64
	RevertReason    string
}

// SubmitMode selects the Executor's transaction submission path.
type SubmitMode int

const (
	SubmitPublic SubmitMode = iota
	SubmitPrivate
)

func ParseSubmitMode(s string) SubmitMode {
	if s == "private" {
		return SubmitPrivate
	}
	return SubmitPublic
}
