package store

import "sync/atomic"

// atomicU64 is a monotone-max counter: the ingress's logical clock
// only ever advances, so Update only needs a compare-and-swap loop
// that raises the stored value, never lowers it.
type atomicU64 struct {
	v atomic.Uint64
}

func (a *atomicU64) load() uint64 { return a.v.Load() }

func (a *atomicU64) max(candidate uint64) {
	for {
		cur := a.v.Load()
		if candidate <= cur {
			return
		}
		if a.v.CompareAndSwap(cur, candidate) {
			return
		}
	}
}
