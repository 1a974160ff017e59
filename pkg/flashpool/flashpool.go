// Package flashpool is the Flash-Pool Selector: given a
// triangle's swap pools, it picks a disjoint pool to flash-borrow
// token A from, preferring the lowest fee tier with enough liquidity.
package flashpool

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// Provider tags which flash-loan mechanism a candidate pool offers.
// Borrowing from a V3-style swap pool is the only mechanism wired
// here — Aave/Balancer are documented extension points with different
// fee conventions, so the executor's repay-amount computation is not
// hard-coded to one provider, but no ABI client for them ships.
type Provider int

const (
	ProviderV3Pool Provider = iota
	ProviderAaveV3
	ProviderBalancer
)

// FeeRate returns the provider's flash fee in 1e6 units. For
// ProviderV3Pool the pool's own fee tier is used (passed in by the
// caller, since it varies per pool); Aave V3 charges a flat 0.05%
// premium regardless of pool; Balancer charges zero.
func (p Provider) FeeRate(poolFeeTier types.FeeTier) (uint32, error) {
	switch p {
	case ProviderV3Pool:
		return uint32(poolFeeTier), nil
	case ProviderAaveV3:
		return 500, nil // fixed 0.05% premium
	case ProviderBalancer:
		return 0, nil
	default:
		return 0, fmt.Errorf("flashpool: unknown provider %d", p)
	}
}

// RepayAmount computes the exact obligation for borrowing amount at
// feeRate (1e6 units): ceil(amount*(1e6+feeRate)/1e6), matching
// fee-correct-repay property.
func RepayAmount(amount *uint256.Int, feeRate uint32) *uint256.Int {
	million := uint256.NewInt(1_000_000)
	numerator := new(uint256.Int).Mul(amount, new(uint256.Int).Add(million, uint256.NewInt(uint64(feeRate))))
	quotient, remainder := new(uint256.Int), new(uint256.Int)
	quotient.DivMod(numerator, million, remainder)
	if !remainder.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient
}

// Candidate is a pool the selector considers for the borrow leg: a
// token-A-holding V3 pool at a given fee tier, distinct from all three
// swap pools in the triangle.
type Candidate struct {
	Pool      types.PoolIdentity
	FeeTier   types.FeeTier
	Liquidity *uint256.Int // magnitude of token-A-side liquidity available
}

// cacheEntry remembers a prior selection for (tokenA, swap-pool-set,
// chain), invalidated on block-age or on a prior borrow-pool revert.
type cacheEntry struct {
	pool      types.PoolIdentity
	feeTier   types.FeeTier
	block     uint64
	reverted  bool
}

// Selector picks a borrow pool among a fixed candidate universe per
// token, optionally caching the last-good choice.
type Selector struct {
	st *store.Store

	mu         sync.Mutex
	candidates map[types.Address][]Candidate // tokenA -> candidate borrow pools
	cache      map[string]*cacheEntry
	maxCacheAge uint64
}

func New(st *store.Store, candidates map[types.Address][]Candidate, maxCacheAgeBlocks uint64) *Selector {
	return &Selector{
		st:          st,
		candidates:  candidates,
		cache:       make(map[string]*cacheEntry),
		maxCacheAge: maxCacheAgeBlocks,
	}
}

func cacheKey(tokenA types.Address, swapPools [3]types.PoolIdentity, chain types.ChainID) string {
	return fmt.Sprintf("%d:%s:%s:%s:%s", chain, tokenA, swapPools[0].Address, swapPools[1].Address, swapPools[2].Address)
}

// Select returns the borrow pool and its fee tier for borrowing
// amountNeeded of tokenA, excluding the triangle's three swap pools.
// A candidate must hold enough liquidity to cover not just
// amountNeeded but the full repay obligation (amountNeeded plus that
// candidate's own flash fee). Returns false if no candidate satisfies
// disjointness + liquidity.
func (s *Selector) Select(tokenA types.Address, swapPools [3]types.PoolIdentity, chain types.ChainID, amountNeeded *uint256.Int, currentBlock uint64) (types.PoolIdentity, types.FeeTier, bool) {
	key := cacheKey(tokenA, swapPools, chain)

	s.mu.Lock()
	if e, ok := s.cache[key]; ok && !e.reverted && currentBlock-e.block <= s.maxCacheAge {
		s.mu.Unlock()
		return e.pool, e.feeTier, true
	}
	s.mu.Unlock()

	best, feeTier, ok := s.selectFresh(tokenA, swapPools, amountNeeded)
	if !ok {
		return types.PoolIdentity{}, 0, false
	}

	s.mu.Lock()
	s.cache[key] = &cacheEntry{pool: best, feeTier: feeTier, block: currentBlock}
	s.mu.Unlock()
	return best, feeTier, true
}

// InvalidateOnRevert marks a cached selection bad after the executor
// reports a revert attributable to the borrow pool, forcing the next
// Select to recompute from scratch.
func (s *Selector) InvalidateOnRevert(tokenA types.Address, swapPools [3]types.PoolIdentity, chain types.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.cache[cacheKey(tokenA, swapPools, chain)]; ok {
		e.reverted = true
	}
}

func (s *Selector) selectFresh(tokenA types.Address, swapPools [3]types.PoolIdentity, amountNeeded *uint256.Int) (types.PoolIdentity, types.FeeTier, bool) {
	var bestPool types.PoolIdentity
	var bestFee types.FeeTier
	var bestLiquidity *uint256.Int
	found := false

	for _, c := range s.candidates[tokenA] {
		if disjoint := notIn(c.Pool, swapPools); !disjoint {
			continue
		}
		feeRate, err := ProviderV3Pool.FeeRate(c.FeeTier)
		if err != nil {
			continue
		}
		repayNeeded := RepayAmount(amountNeeded, feeRate)
		if c.Liquidity == nil || c.Liquidity.Cmp(repayNeeded) < 0 {
			continue
		}
		if !found {
			bestPool, bestFee, bestLiquidity, found = c.Pool, c.FeeTier, c.Liquidity, true
			continue
		}
		switch {
		case c.FeeTier < bestFee:
			bestPool, bestFee, bestLiquidity = c.Pool, c.FeeTier, c.Liquidity
		case c.FeeTier == bestFee && c.Liquidity.Cmp(bestLiquidity) > 0:
			bestPool, bestFee, bestLiquidity = c.Pool, c.FeeTier, c.Liquidity
		}
	}

	return bestPool, bestFee, found
}

func notIn(pool types.PoolIdentity, swapPools [3]types.PoolIdentity) bool {
	for _, p := range swapPools {
		if p == pool {
			return false
		}
	}
	return true
}
