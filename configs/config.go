// Package configs loads the engine's YAML configuration file and
// translates it into the constructor-shaped values each subsystem
// package expects: a handful of global sizing/pricing keys plus one
// block per monitored chain.
package configs

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/backtest"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/ingress"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/priceusd"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/scanner"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// Config is the top-level shape of config.yml: a handful of global
// keys (emission/sizing/pricing knobs) plus one block per
// monitored chain.
type Config struct {
	MinProfitUSD float64      `yaml:"min_profit_usd"`
	MaxSlippage  float64      `yaml:"max_slippage"`
	SizeGrid     SizeGridYAML `yaml:"size_grid"`
	MicroBudget  int          `yaml:"micro_budget"`
	EthPriceUSD  float64      `yaml:"eth_price_usd"` // read only for a startup notice; gas cost in USD always comes from the live gas oracle and price cache, never from this value

	PriceQuotesYAML []TokenQuoteYAML `yaml:"price_quotes"`
	Stablecoins     []string         `yaml:"stablecoins"`
	TokenDecimals   []DecimalYAML    `yaml:"decimals"`

	DBDsn string `yaml:"db_dsn"`

	Chains []ChainYAML `yaml:"chains"`

	Backtest BacktestYAML `yaml:"backtest"`
}

type SizeGridYAML struct {
	FloorUSD   float64 `yaml:"floor_usd"`
	CeilingUSD float64 `yaml:"ceiling_usd"`
	Multiplier float64 `yaml:"multiplier"`
}

type TokenQuoteYAML struct {
	Token       string `yaml:"token"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

type DecimalYAML struct {
	Token    string `yaml:"token"`
	Decimals uint8  `yaml:"decimals"`
	Symbol   string `yaml:"symbol"` // optional, backtest report labelling only
}

// ChainYAML is one monitored chain's connection details, monitored
// pools, triangle table, flash-arbitrage contract binding, and
// per-chain execution tunables.
type ChainYAML struct {
	ChainID uint64 `yaml:"chain_id"`
	WSURL   string `yaml:"ws_url"`
	HTTPURL string `yaml:"http_url"`

	MonitoredPoolsYAML []PoolYAML     `yaml:"monitored_pools"`
	TrianglesYAML      []TriangleYAML `yaml:"triangles"`

	FlashArbitrageContract ContractClientYAMLData `yaml:"flash_arbitrage_contract"`
	FlashCandidatesYAML    []FlashCandidateYAML   `yaml:"flash_candidates"`

	SubmitMode          string `yaml:"submit_mode"` // "public" or "private"
	MaxBlockRetries     int    `yaml:"max_block_retries"`
	RelayIdentityKeyEnv string `yaml:"relay_identity_key_env"`

	GasStrategy GasStrategyYAML `yaml:"gas_strategy"`

	StaleThreshold uint64 `yaml:"stale_threshold"`
	ConfirmBlocks  int    `yaml:"confirm_blocks"`
	Workers        int    `yaml:"workers"`
	BlockTimeMs    int64  `yaml:"block_time_ms"`
}

type PoolYAML struct {
	Address string `yaml:"address"`
	Family  string `yaml:"family"` // "v2", "v3", "stable"
	Token0  string `yaml:"token0"`
	Token1  string `yaml:"token1"`
	Fee     uint32 `yaml:"fee"` // 1e6 units; required for v3, the v2 flat fee otherwise
}

type TriangleYAML struct {
	TokenA      string `yaml:"token_a"`
	TokenB      string `yaml:"token_b"`
	TokenC      string `yaml:"token_c"`
	Hop1Pool    string `yaml:"hop1_pool"`
	Hop2Pool    string `yaml:"hop2_pool"`
	Hop3Pool    string `yaml:"hop3_pool"`
	TriggerPool string `yaml:"trigger_pool"`
	Priority    int    `yaml:"priority"`
	Enabled     bool   `yaml:"enabled"`
}

// ContractClientYAMLData names one contract's address and the path to
// its ABI JSON document.
type ContractClientYAMLData struct {
	Address string `yaml:"address"`
	ABIPath string `yaml:"abi_path"`
}

type FlashCandidateYAML struct {
	TokenA    string `yaml:"token_a"`
	Pool      string `yaml:"pool"`
	FeeTier   uint32 `yaml:"fee_tier"`
	Liquidity string `yaml:"liquidity"` // decimal string, base units
}

type GasStrategyYAML struct {
	GasUnits    uint64 `yaml:"gas_units"`
	NativeToken string `yaml:"native_token"`
}

// BacktestYAML configures the Back-Tester's history window and report
// destination. The capture-ratio replay grid itself is fixed
// (pkg/backtest.CaptureRatios) and not user-configurable.
type BacktestYAML struct {
	Days      uint64 `yaml:"days"`
	OutputDir string `yaml:"output_dir"`
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse config yaml: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configuration that would otherwise only fail deep
// inside a running subsystem: boundary properties
// ("sizing grid floor > ceiling -> config rejected at startup") and
// the triangle-closure invariant (each hop's output token feeds the
// next hop's input, and the third hop returns to the starting token).
// A flash candidate without a fee_tier is rejected: its fee is
// unknown, and no default fee is assumed.
func (c *Config) Validate() error {
	if err := c.Grid().Validate(); err != nil {
		return err
	}
	for _, chain := range c.Chains {
		if chain.WSURL == "" || chain.HTTPURL == "" {
			return fmt.Errorf("configs: chain %d missing ws_url/http_url", chain.ChainID)
		}
		for _, fc := range chain.FlashCandidatesYAML {
			if fc.FeeTier == 0 {
				return fmt.Errorf("configs: chain %d: flash candidate %s has no fee_tier", chain.ChainID, fc.Pool)
			}
		}
		pools := make(map[string]PoolYAML, len(chain.MonitoredPoolsYAML))
		for _, p := range chain.MonitoredPoolsYAML {
			pools[p.Address] = p
		}
		for _, tri := range chain.TrianglesYAML {
			if err := validateTriangleClosure(tri, pools); err != nil {
				return fmt.Errorf("configs: chain %d: %w", chain.ChainID, err)
			}
		}
	}
	return nil
}

// validateTriangleClosure checks triangle invariants: the
// three tokens are distinct and each consecutive hop's pool trades the
// pair it claims to — entirely from configuration, before any pool
// snapshot exists.
func validateTriangleClosure(t TriangleYAML, pools map[string]PoolYAML) error {
	if t.TokenA == t.TokenB || t.TokenB == t.TokenC || t.TokenA == t.TokenC {
		return fmt.Errorf("triangle tokens must be distinct: %s/%s/%s", t.TokenA, t.TokenB, t.TokenC)
	}
	hopPair := func(hopName, poolAddr, tokenIn, tokenOut string) error {
		p, ok := pools[poolAddr]
		if !ok {
			return fmt.Errorf("%s pool %s not in monitored_pools", hopName, poolAddr)
		}
		pair := map[string]bool{p.Token0: true, p.Token1: true}
		if !pair[tokenIn] || !pair[tokenOut] {
			return fmt.Errorf("%s pool %s does not trade %s/%s", hopName, poolAddr, tokenIn, tokenOut)
		}
		return nil
	}
	if err := hopPair("hop1", t.Hop1Pool, t.TokenA, t.TokenB); err != nil {
		return err
	}
	if err := hopPair("hop2", t.Hop2Pool, t.TokenB, t.TokenC); err != nil {
		return err
	}
	if err := hopPair("hop3", t.Hop3Pool, t.TokenC, t.TokenA); err != nil {
		return err
	}
	return nil
}

// Grid converts the YAML size-grid block into scanner.SizeGrid.
func (c *Config) Grid() scanner.SizeGrid {
	return scanner.SizeGrid{
		FloorUSD:   c.SizeGrid.FloorUSD,
		CeilingUSD: c.SizeGrid.CeilingUSD,
		Multiplier: c.SizeGrid.Multiplier,
	}
}

// Decimals builds the token -> decimals map every subsystem (scanner,
// executor, backtest) needs for USD<->base-unit conversion.
func (c *Config) Decimals() map[types.Address]uint8 {
	out := make(map[types.Address]uint8, len(c.TokenDecimals))
	for _, d := range c.TokenDecimals {
		out[common.HexToAddress(d.Token)] = d.Decimals
	}
	return out
}

// Symbols builds the token -> display symbol map the backtest report
// uses to render triangle path names; tokens with no symbol configured
// fall back to their address.
func (c *Config) Symbols() map[types.Address]string {
	out := make(map[types.Address]string, len(c.TokenDecimals))
	for _, d := range c.TokenDecimals {
		if d.Symbol != "" {
			out[common.HexToAddress(d.Token)] = d.Symbol
		}
	}
	return out
}

// StablecoinSet builds the token set priceusd.Fetcher pins to 1.0
// rather than fetching from CoinGecko.
func (c *Config) StablecoinSet() map[types.Address]bool {
	out := make(map[types.Address]bool, len(c.Stablecoins))
	for _, s := range c.Stablecoins {
		out[common.HexToAddress(s)] = true
	}
	return out
}

// PriceQuotes converts the YAML price-feed table into
// priceusd.TokenQuote values.
func (c *Config) PriceQuotes() []priceusd.TokenQuote {
	out := make([]priceusd.TokenQuote, 0, len(c.PriceQuotesYAML))
	for _, q := range c.PriceQuotesYAML {
		out = append(out, priceusd.TokenQuote{Token: common.HexToAddress(q.Token), CoinGeckoID: q.CoinGeckoID})
	}
	return out
}

// dexFamily maps the YAML family string to types.DEXFamily.
func dexFamily(s string) types.DEXFamily {
	switch s {
	case "v2":
		return types.DEXV2
	case "stable":
		return types.DEXStable
	default:
		return types.DEXV3
	}
}

// MonitoredPools converts one chain's pool table into
// pkg/ingress.PoolMeta values, the static per-pool facts (token pair,
// fee tier) Chain Ingress merges with every decoded Swap log.
func (ch ChainYAML) MonitoredPools() []ingress.PoolMeta {
	out := make([]ingress.PoolMeta, 0, len(ch.MonitoredPoolsYAML))
	for _, p := range ch.MonitoredPoolsYAML {
		out = append(out, ingress.PoolMeta{
			Identity: types.PoolIdentity{
				Chain:   types.ChainID(ch.ChainID),
				Address: common.HexToAddress(p.Address),
				Family:  dexFamily(p.Family),
			},
			Token0: common.HexToAddress(p.Token0),
			Token1: common.HexToAddress(p.Token1),
			Fee:    types.FeeTier(p.Fee),
		})
	}
	return out
}

// Triangles converts one chain's triangle table into types.Triangle
// values, ready for pkg/scanner.BuildTriggerIndex.
func (ch ChainYAML) Triangles() []*types.Triangle {
	out := make([]*types.Triangle, 0, len(ch.TrianglesYAML))
	for i, t := range ch.TrianglesYAML {
		chain := types.ChainID(ch.ChainID)
		poolID := func(addr string) types.PoolIdentity {
			return types.PoolIdentity{Chain: chain, Address: common.HexToAddress(addr)}
		}
		tokenA, tokenB, tokenC := common.HexToAddress(t.TokenA), common.HexToAddress(t.TokenB), common.HexToAddress(t.TokenC)
		out = append(out, &types.Triangle{
			ID:          i,
			TokenA:      tokenA,
			TokenB:      tokenB,
			TokenC:      tokenC,
			Hop1:        types.Hop{Pool: poolID(t.Hop1Pool), TokenIn: tokenA, TokenOut: tokenB},
			Hop2:        types.Hop{Pool: poolID(t.Hop2Pool), TokenIn: tokenB, TokenOut: tokenC},
			Hop3:        types.Hop{Pool: poolID(t.Hop3Pool), TokenIn: tokenC, TokenOut: tokenA},
			TriggerPool: poolID(t.TriggerPool),
			Priority:    t.Priority,
			Enabled:     t.Enabled,
		})
	}
	return out
}

// FlashCandidates converts one chain's flash-borrow candidate table
// into pkg/flashpool.Candidate values, keyed by token A.
func (ch ChainYAML) FlashCandidates() map[types.Address][]flashpool.Candidate {
	out := make(map[types.Address][]flashpool.Candidate)
	chain := types.ChainID(ch.ChainID)
	for _, c := range ch.FlashCandidatesYAML {
		tokenA := common.HexToAddress(c.TokenA)
		liquidity, ok := new(uint256.Int).SetString(c.Liquidity, 10)
		if !ok {
			liquidity = uint256.NewInt(0)
		}
		out[tokenA] = append(out[tokenA], flashpool.Candidate{
			Pool:      types.PoolIdentity{Chain: chain, Address: common.HexToAddress(c.Pool)},
			FeeTier:   types.FeeTier(c.FeeTier),
			Liquidity: liquidity,
		})
	}
	return out
}

// BacktestPoolMetas converts one chain's monitored-pool table into
// pkg/backtest.PoolMeta values, filling each pool's token decimals and
// stablecoin flags from the global decimals/stablecoins tables.
func (ch ChainYAML) BacktestPoolMetas(decimals map[types.Address]uint8, stablecoins map[types.Address]bool) []backtest.PoolMeta {
	out := make([]backtest.PoolMeta, 0, len(ch.MonitoredPoolsYAML))
	for _, p := range ch.MonitoredPoolsYAML {
		token0, token1 := common.HexToAddress(p.Token0), common.HexToAddress(p.Token1)
		out = append(out, backtest.PoolMeta{
			Identity: types.PoolIdentity{
				Chain:   types.ChainID(ch.ChainID),
				Address: common.HexToAddress(p.Address),
				Family:  dexFamily(p.Family),
			},
			Token0:    token0,
			Token1:    token1,
			Decimals0: decimals[token0],
			Decimals1: decimals[token1],
			Stable0:   stablecoins[token0],
			Stable1:   stablecoins[token1],
			Fee:       types.FeeTier(p.Fee),
		})
	}
	return out
}

// BlockTime returns the chain's configured block interval, defaulting
// to 12s (Ethereum mainnet post-Merge) if unset.
func (ch ChainYAML) BlockTime() time.Duration {
	if ch.BlockTimeMs <= 0 {
		return 12 * time.Second
	}
	return time.Duration(ch.BlockTimeMs) * time.Millisecond
}

// ABI reads the flash-arbitrage contract's ABI JSON document off disk.
func (ch ChainYAML) ABI() (string, error) {
	data, err := os.ReadFile(ch.FlashArbitrageContract.ABIPath)
	if err != nil {
		return "", fmt.Errorf("configs: read contract abi %s: %w", ch.FlashArbitrageContract.ABIPath, err)
	}
	return string(data), nil
}

// ContractAddress is the flash-arbitrage contract's on-chain address.
func (ch ChainYAML) ContractAddress() common.Address {
	return common.HexToAddress(ch.FlashArbitrageContract.Address)
}

// GasUnitsAndNativeToken converts the gas-strategy block into the
// per-chain facts pkg/priceusd.GasOracle needs.
func (ch ChainYAML) GasUnitsAndNativeToken() (uint64, types.Address) {
	return ch.GasStrategy.GasUnits, common.HexToAddress(ch.GasStrategy.NativeToken)
}

// SubmitModeParsed parses the chain's configured submission mode.
func (ch ChainYAML) SubmitModeParsed() types.SubmitMode {
	return types.ParseSubmitMode(ch.SubmitMode)
}
