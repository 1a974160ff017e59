package backtest

import (
	"github.com/holiman/uint256"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// PoolMeta is the static description of one monitored pool the
// downloader needs that a bare PoolIdentity doesn't carry: its two
// tokens' decimals and whether either is a stablecoin, supplied by the
// caller instead of read from a database row, since pkg/backtest has
// no database dependency of its own.
type PoolMeta struct {
	Identity             types.PoolIdentity
	Token0, Token1       types.Address
	Decimals0, Decimals1 uint8
	Stable0, Stable1     bool
	Fee                  types.FeeTier
}

// usdVolume estimates a single swap's USD size off whichever side of
// the pool is a stablecoin: a non-stable pair reports zero rather than
// guessing a price, since the downloader has no price feed of its own.
func usdVolume(amount0, amount1 *uint256.Int, meta PoolMeta) float64 {
	amt0 := uint256ToFloatScaled(amount0, meta.Decimals0)
	amt1 := uint256ToFloatScaled(amount1, meta.Decimals1)

	switch {
	case meta.Stable0:
		return amt0
	case meta.Stable1:
		return amt1
	default:
		return 0
	}
}
