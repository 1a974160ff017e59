package store

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

func testIdentity() types.PoolIdentity {
	return types.PoolIdentity{
		Chain:   1,
		Address: common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Family:  types.DEXV2,
	}
}

func v2Snap(id types.PoolIdentity, block uint64) types.PoolSnapshot {
	return types.PoolSnapshot{
		Identity: id,
		V2: &types.V2Snapshot{
			Identity:        id,
			Reserve0:        uint256.NewInt(100),
			Reserve1:        uint256.NewInt(200),
			LastUpdateBlock: block,
		},
	}
}

func TestStore_MonotoneRegardlessOfApplyOrder(t *testing.T) {
	id := testIdentity()

	t.Run("forward order", func(t *testing.T) {
		s := New()
		s.Update(id, v2Snap(id, 100), 100)
		s.Update(id, v2Snap(id, 99), 99)
		snap, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, uint64(100), snap.V2.LastUpdateBlock)
	})

	t.Run("reverse order", func(t *testing.T) {
		s := New()
		s.Update(id, v2Snap(id, 99), 99)
		s.Update(id, v2Snap(id, 100), 100)
		snap, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, uint64(100), snap.V2.LastUpdateBlock)
	})
}

func TestStore_GetMissingReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Get(testIdentity())
	assert.False(t, ok)
}

func TestStore_SnapshotBlockTracksGreatestObserved(t *testing.T) {
	s := New()
	idA := testIdentity()
	idB := testIdentity()
	idB.Address = common.HexToAddress("0x0000000000000000000000000000000000000002")

	s.Update(idA, v2Snap(idA, 50), 50)
	s.Update(idB, v2Snap(idB, 75), 75)
	assert.Equal(t, uint64(75), s.SnapshotBlock())

	s.Update(idA, v2Snap(idA, 10), 10) // dropped, older
	assert.Equal(t, uint64(75), s.SnapshotBlock())
}

func TestStore_GetReturnsIndependentClone(t *testing.T) {
	s := New()
	id := testIdentity()
	s.Update(id, v2Snap(id, 1), 1)

	snap, ok := s.Get(id)
	require.True(t, ok)
	snap.V2.Reserve0.SetUint64(999) // mutate the caller's copy

	again, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint64(100), again.V2.Reserve0.Uint64(), "store's stored snapshot must be unaffected")
}

func TestStore_ConcurrentUpdatesNoPartialRead(t *testing.T) {
	s := New()
	id := testIdentity()

	var wg sync.WaitGroup
	for block := uint64(1); block <= 200; block++ {
		wg.Add(1)
		go func(b uint64) {
			defer wg.Done()
			s.Update(id, v2Snap(id, b), b)
		}(block)
	}
	wg.Wait()

	snap, ok := s.Get(id)
	require.True(t, ok)
	// regardless of goroutine scheduling, the monotone-block guard
	// means the surviving value is always the maximum ever submitted.
	assert.Equal(t, uint64(200), snap.V2.LastUpdateBlock)
	assert.Equal(t, uint64(200), s.SnapshotBlock())
}
