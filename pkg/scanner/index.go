package scanner

import "github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"

// TriggerIndex maps a pool address to the triangles it can trigger,
// built once at configuration time and never mutated while the
// Scanner runs — the triangle table itself is immutable, so the
// index built over it is too.
type TriggerIndex struct {
	byPool map[types.PoolIdentity][]*types.Triangle
}

// BuildTriggerIndex indexes every enabled triangle by each pool that
// can trigger it: its designated trigger pool, and (since any of the
// three swap pools moving also changes the triangle's profitability)
// its three swap pools.
func BuildTriggerIndex(triangles []*types.Triangle) *TriggerIndex {
	idx := &TriggerIndex{byPool: make(map[types.PoolIdentity][]*types.Triangle)}
	for _, tri := range triangles {
		if !tri.Enabled {
			continue
		}
		seen := map[types.PoolIdentity]bool{}
		add := func(p types.PoolIdentity) {
			if seen[p] {
				return
			}
			seen[p] = true
			idx.byPool[p] = append(idx.byPool[p], tri)
		}
		add(tri.TriggerPool)
		for _, p := range tri.Pools() {
			add(p)
		}
	}
	return idx
}

// Triangles returns the triangles that trigger on pool, in
// priority-then-insertion order (fairness rule).
func (idx *TriggerIndex) Triangles(pool types.PoolIdentity) []*types.Triangle {
	list := idx.byPool[pool]
	out := make([]*types.Triangle, len(list))
	copy(out, list)
	// stable: insertion order was preserved by append above; priority
	// sort is a stable sort on top of it so equal-priority triangles
	// keep their original relative order.
	stableSortByPriorityDesc(out)
	return out
}

func stableSortByPriorityDesc(triangles []*types.Triangle) {
	// insertion sort: triangle counts per pool are small (a handful of
	// triangles touch any one pool), so O(n^2) is cheaper than the
	// allocation overhead of sort.SliceStable for this size.
	for i := 1; i < len(triangles); i++ {
		j := i
		for j > 0 && triangles[j-1].Priority < triangles[j].Priority {
			triangles[j-1], triangles[j] = triangles[j], triangles[j-1]
			j--
		}
	}
}
