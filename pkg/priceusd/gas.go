package priceusd

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// GasPriceSource is the narrow slice of *ethclient.Client this file
// depends on, so the refresh loop can be exercised against a fake and
// so callers outside this package can build the per-chain source map
// Run expects.
type GasPriceSource interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle estimates one arbitrage submission's USD cost per chain,
// combining a periodically-refreshed gas price (wei per unit of gas)
// with a fixed per-chain gas-unit estimate and the native token's
// cached USD price. The gas price itself is the single already-combined
// value go-ethereum's own SuggestGasPrice returns, rather than separate
// base-fee/priority-fee/max-fee components.
type GasOracle struct {
	mu          sync.RWMutex
	gasPriceWei map[types.ChainID]*big.Int
	gasUnits    map[types.ChainID]uint64
	nativeToken map[types.ChainID]types.Address
	cache       *Cache
	log         *zap.Logger
}

func NewGasOracle(cache *Cache, gasUnits map[types.ChainID]uint64, nativeToken map[types.ChainID]types.Address, log *zap.Logger) *GasOracle {
	return &GasOracle{
		gasPriceWei: make(map[types.ChainID]*big.Int),
		gasUnits:    gasUnits,
		nativeToken: nativeToken,
		cache:       cache,
		log:         log,
	}
}

// Run polls sources (one *ethclient.Client per chain) for the current
// suggested gas price on a fixed interval.
func (g *GasOracle) Run(ctx context.Context, sources map[types.ChainID]GasPriceSource, interval time.Duration) {
	g.refresh(ctx, sources)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh(ctx, sources)
		}
	}
}

func (g *GasOracle) refresh(ctx context.Context, sources map[types.ChainID]GasPriceSource) {
	for chain, src := range sources {
		price, err := src.SuggestGasPrice(ctx)
		if err != nil {
			if g.log != nil {
				g.log.Warn("priceusd: suggest gas price failed", zap.Uint64("chain", uint64(chain)), zap.Error(err))
			}
			continue
		}
		g.mu.Lock()
		g.gasPriceWei[chain] = price
		g.mu.Unlock()
	}
}

// EstimateGasCostUSD implements pkg/scanner.GasEstimator and
// pkg/executor.GasEstimator: gasPriceWei * gasUnits, converted to the
// native token's decimal amount and priced via the shared Cache.
// Returns 0 if no gas price has been observed yet or the native
// token's price is stale — a zero-cost estimate is treated by callers
// as "no gas information available" rather than "free", since
// validate's net-profit check always subtracts it.
func (g *GasOracle) EstimateGasCostUSD(chain types.ChainID) float64 {
	g.mu.RLock()
	priceWei, ok := g.gasPriceWei[chain]
	g.mu.RUnlock()
	if !ok || priceWei == nil {
		return 0
	}

	units, ok := g.gasUnits[chain]
	if !ok || units == 0 {
		return 0
	}

	native, ok := g.nativeToken[chain]
	if !ok {
		return 0
	}
	nativeUSD, ok := g.cache.Get(native)
	if !ok || g.cache.IsStale(native, time.Hour) {
		return 0
	}

	costWei := new(big.Int).Mul(priceWei, new(big.Int).SetUint64(units))
	costWeiF := new(big.Float).SetInt(costWei)
	weiPerEther := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	costNative := new(big.Float).Quo(costWeiF, weiPerEther)

	nativeUSDFloat, _ := nativeUSD.Float64()
	costNativeFloat, _ := costNative.Float64()
	return costNativeFloat * nativeUSDFloat
}
