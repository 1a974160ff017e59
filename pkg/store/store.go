// Package store is the Pool-State Store: a concurrent map from pool
// address to its most-recent pricing snapshot, versioned by block.
// Writers replace a pool's whole snapshot atomically; readers always
// see either the old or the new snapshot in full, never a mix.
package store

import (
	"sync"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// entry pairs a snapshot with the block it was observed at, guarded
// by its own mutex so that one pool's writer never blocks a reader of
// a different pool: a sharded sync.RWMutex-guarded map, shard count
// fixed at construction so the shard for a given address never
// changes mid-run.
type entry struct {
	mu       sync.RWMutex
	snapshot types.PoolSnapshot
	block    uint64
	has      bool
}

const shardCount = 64

// Store is the Pool-State Store. Zero value is not usable; construct
// with New.
type Store struct {
	shards       [shardCount]shard
	globalBlock  atomicU64
}

type shard struct {
	mu      sync.RWMutex
	entries map[types.PoolIdentity]*entry
}

// New constructs an empty Store; the set of monitored pools is
// established by the first Update call for each address and is never
// evicted during a run.
func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].entries = make(map[types.PoolIdentity]*entry)
	}
	return s
}

func (s *Store) shardFor(id types.PoolIdentity) *shard {
	h := fnv1a(id.Address.Bytes()) ^ uint64(id.Chain)
	return &s.shards[h%shardCount]
}

// Get returns an owned clone of the most-recent snapshot for addr, or
// (zero, false) if no update has ever been accepted for it. The clone
// means a caller can hold the result indefinitely without blocking a
// concurrent writer.
func (s *Store) Get(id types.PoolIdentity) (types.PoolSnapshot, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.entries[id]
	sh.mu.RUnlock()
	if !ok {
		return types.PoolSnapshot{}, false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.has {
		return types.PoolSnapshot{}, false
	}
	return cloneSnapshot(e.snapshot), true
}

// Update installs newSnapshot for id if observedBlock is at or after
// the block already stored for id; older updates are silently
// dropped (the per-address monotonic-block guarantee Chain Ingress
// relies on — Ingress is the sole writer for a given chain, so this
// is never a contested race in practice, but the check is still
// enforced here so a reordered retry can never regress state).
// Reports whether the update was applied.
func (s *Store) Update(id types.PoolIdentity, newSnapshot types.PoolSnapshot, observedBlock uint64) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.entries[id]
	if !ok {
		e = &entry{}
		sh.entries[id] = e
	}
	sh.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.has && observedBlock < e.block {
		return false
	}
	e.snapshot = cloneSnapshot(newSnapshot)
	e.block = observedBlock
	e.has = true
	s.globalBlock.max(observedBlock)
	return true
}

// SnapshotBlock returns the greatest observedBlock ever accepted by
// any Update call, across all pools — the ingress's logical clock.
func (s *Store) SnapshotBlock() uint64 {
	return s.globalBlock.load()
}

func cloneSnapshot(p types.PoolSnapshot) types.PoolSnapshot {
	cp := types.PoolSnapshot{Identity: p.Identity}
	if p.V2 != nil {
		cp.V2 = p.V2.Clone()
	}
	if p.V3 != nil {
		cp.V3 = p.V3.Clone()
	}
	return cp
}

// fnv1a is a tiny non-cryptographic hash used only to pick a shard;
// collision resistance is irrelevant here, only distribution.
func fnv1a(b []byte) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for _, c := range b {
		h ^= uint64(c)
		h *= prime
	}
	return h
}
