package backtest

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// twosComplement256 mirrors pkg/ingress's test helper of the same
// name: a 32-byte big-endian two's-complement encoding of v.
func twosComplement256(v int64) []byte {
	out := make([]byte, 32)
	mod := new(big.Int).Lsh(big.NewInt(1), 256)
	n := big.NewInt(v)
	if n.Sign() < 0 {
		n.Add(n, mod)
	}
	b := n.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func buildSwapData(amount0, amount1 int64, sqrtPriceX96, liquidity uint64, tick int32) []byte {
	data := make([]byte, 160)
	copy(data[0:32], twosComplement256(amount0))
	copy(data[32:64], twosComplement256(amount1))

	sp := new(big.Int).SetUint64(sqrtPriceX96).Bytes()
	copy(data[96-len(sp):96], sp)

	liq := new(big.Int).SetUint64(liquidity).Bytes()
	copy(data[128-len(liq):128], liq)

	tb := []byte{byte(tick >> 16), byte(tick >> 8), byte(tick)}
	copy(data[157:160], tb)
	return data
}

type fakeFetcher struct {
	head       uint64
	logs       map[[2]uint64][]gethtypes.Log // keyed by (from,to)
	err        error
	calls      []ethereum.FilterQuery
	headers    map[uint64]uint64 // block -> timestamp
}

func (f *fakeFetcher) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	key := [2]uint64{q.FromBlock.Uint64(), q.ToBlock.Uint64()}
	return f.logs[key], nil
}

func (f *fakeFetcher) BlockNumber(ctx context.Context) (uint64, error) { return f.head, nil }

func (f *fakeFetcher) HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Time: f.headers[number.Uint64()]}, nil
}

type fakeSwapStore struct {
	latest    uint64
	haveLast  bool
	inserted  []SwapRecord
}

func (s *fakeSwapStore) LatestDownloadedBlock(chain types.ChainID) (uint64, bool) {
	return s.latest, s.haveLast
}

func (s *fakeSwapStore) InsertSwaps(chain types.ChainID, records []SwapRecord) error {
	s.inserted = append(s.inserted, records...)
	return nil
}

func stablePoolMeta(addr common.Address) PoolMeta {
	return PoolMeta{
		Identity:  types.PoolIdentity{Chain: 1, Address: addr, Family: types.DEXV3},
		Token0:    common.HexToAddress("0xusdc"),
		Token1:    common.HexToAddress("0xweth"),
		Decimals0: 6,
		Decimals1: 18,
		Stable0:   true,
		Fee:       types.FeeTier05,
	}
}

func TestDownloader_DecodesAndPersistsWithinSingleBatch(t *testing.T) {
	pool := common.HexToAddress("0xpool")
	fetcher := &fakeFetcher{
		head: 100,
		logs: map[[2]uint64][]gethtypes.Log{
			{0, 100}: {
				{Address: pool, BlockNumber: 10, Data: buildSwapData(5_000_000, -2_000_000_000_000_000_000, 1, 1, 0)},
			},
		},
		headers: map[uint64]uint64{10: 1_700_000_000},
	}
	store := &fakeSwapStore{}
	d := NewDownloader(fetcher, store, []PoolMeta{stablePoolMeta(pool)}, zap.NewNop())

	err := d.Download(t.Context(), 1, 365) // head(100) - 365*blocksPerDay is negative, so start clamps to 0
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	rec := store.inserted[0]
	assert.Equal(t, uint64(10), rec.Block)
	assert.Equal(t, uint64(1_700_000_000), rec.BlockTimestamp)
	assert.InDelta(t, 5.0, rec.USDVolume, 0.0001) // 5_000_000 base units / 1e6 decimals = $5 stablecoin leg
}

func TestDownloader_ResumesFromLastStoredBlockPlusOne(t *testing.T) {
	pool := common.HexToAddress("0xpool")
	fetcher := &fakeFetcher{head: 5000, logs: map[[2]uint64][]gethtypes.Log{}}
	store := &fakeSwapStore{latest: 4000, haveLast: true}
	d := NewDownloader(fetcher, store, []PoolMeta{stablePoolMeta(pool)}, zap.NewNop())

	err := d.Download(t.Context(), 1, 10000) // days*blocksPerDay far exceeds head, so the day-span floor is 0 and resume wins
	require.NoError(t, err)

	require.NotEmpty(t, fetcher.calls)
	assert.Equal(t, uint64(4001), fetcher.calls[0].FromBlock.Uint64())
}

func TestDownloader_RetriesThenFailsOnPersistentFetchError(t *testing.T) {
	pool := common.HexToAddress("0xpool")
	fetcher := &fakeFetcher{head: 100, err: assertErr("boom")}
	store := &fakeSwapStore{}
	d := NewDownloader(fetcher, store, []PoolMeta{stablePoolMeta(pool)}, zap.NewNop()).WithRetryWait(time.Millisecond)

	err := d.Download(t.Context(), 1, 0)
	require.Error(t, err)
	assert.Len(t, fetcher.calls, fetchRetries)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
