// Command backtest is the Back-Tester's entrypoint: for each
// configured chain it downloads swap-log history in 2000-block
// batches, persists it, replays it against a local Pool-State Store
// under the fixed capture-ratio grid, and writes the aggregate and
// per-path report for every triangle the chain's configuration names.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/configs"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/internal/db"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/backtest"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/priceusd"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/scanner"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// backtestFlashAgeBlocks is how many blocks the flash-pool selector
// reuses a cached borrow-pool choice before recomputing it from the
// configured candidates; candidate liquidity is static configuration
// in a backtest, so this is generous rather than tuned to match live
// trading.
const backtestFlashAgeBlocks = 10_000

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the engine's YAML configuration")
	days := flag.Uint64("days", 0, "history window in days; 0 uses the configured default")
	outputDir := flag.String("out", "", "report output directory; overrides config when set")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "backtest: no .env file loaded: %v\n", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*configPath, *days, *outputDir, log); err != nil {
		log.Fatal("backtest: fatal error", zap.Error(err))
	}
}

func run(configPath string, daysOverride uint64, outputDirOverride string, log *zap.Logger) error {
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("config names no chains")
	}

	days := cfg.Backtest.Days
	if daysOverride > 0 {
		days = daysOverride
	}
	if days == 0 {
		days = 7
	}

	outputDir := cfg.Backtest.OutputDir
	if outputDirOverride != "" {
		outputDir = outputDirOverride
	}
	if outputDir == "" {
		outputDir = "backtest-report"
	}

	if cfg.DBDsn == "" {
		return fmt.Errorf("db_dsn is required: the downloader persists swap history through it")
	}
	recorder, err := db.NewRecorder(cfg.DBDsn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer recorder.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	priceCache := priceusd.NewCache()
	fetcher := priceusd.NewFetcher(priceCache, cfg.PriceQuotes(), cfg.StablecoinSet(), 30*time.Minute, log)
	go fetcher.Run(ctx, time.Hour)

	gasUnits := make(map[types.ChainID]uint64)
	nativeTokens := make(map[types.ChainID]types.Address)
	gasSources := make(map[types.ChainID]priceusd.GasPriceSource)
	for _, ch := range cfg.Chains {
		units, native := ch.GasUnitsAndNativeToken()
		chainID := types.ChainID(ch.ChainID)
		gasUnits[chainID] = units
		nativeTokens[chainID] = native

		httpClient, err := ethclient.DialContext(ctx, ch.HTTPURL)
		if err != nil {
			return fmt.Errorf("chain %d: dial http: %w", ch.ChainID, err)
		}
		gasSources[chainID] = httpClient
	}
	gasOracle := priceusd.NewGasOracle(priceCache, gasUnits, nativeTokens, log)
	go gasOracle.Run(ctx, gasSources, time.Hour)

	log.Info("backtest: warming price and gas caches")
	time.Sleep(3 * time.Second)

	decimals := cfg.Decimals()
	stablecoins := cfg.StablecoinSet()
	symbols := cfg.Symbols()

	for _, ch := range cfg.Chains {
		if err := runChain(ctx, ch, days, outputDir, decimals, stablecoins, symbols, fetcher, gasOracle, recorder, log); err != nil {
			return fmt.Errorf("chain %d: %w", ch.ChainID, err)
		}
	}
	return nil
}

func runChain(ctx context.Context, ch configs.ChainYAML, days uint64, outputDir string, decimals map[types.Address]uint8, stablecoins map[types.Address]bool, symbols map[types.Address]string, prices *priceusd.Fetcher, gas *priceusd.GasOracle, recorder *db.Recorder, log *zap.Logger) error {
	chainID := types.ChainID(ch.ChainID)
	log.Info("backtest: downloading swap history", zap.Uint64("chain", uint64(chainID)), zap.Uint64("days", days))

	httpClient, err := ethclient.DialContext(ctx, ch.HTTPURL)
	if err != nil {
		return fmt.Errorf("dial http: %w", err)
	}

	poolMetas := ch.BacktestPoolMetas(decimals, stablecoins)
	downloader := backtest.NewDownloader(httpClient, recorder, poolMetas, log)
	if err := downloader.Download(ctx, chainID, days); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	records, err := recorder.SwapRecords(chainID)
	if err != nil {
		return fmt.Errorf("load downloaded swaps: %w", err)
	}
	log.Info("backtest: replaying swap history", zap.Uint64("chain", uint64(chainID)), zap.Int("records", len(records)))

	triangles := ch.Triangles()
	index := scanner.BuildTriggerIndex(triangles)
	flashSelector := flashpool.New(store.New(), ch.FlashCandidates(), backtestFlashAgeBlocks)

	replayer := backtest.NewReplayer(index, flashSelector, prices, gas, poolMetas, symbols, log)
	stats := replayer.Replay(records)

	chainOutputDir := fmt.Sprintf("%s/chain-%d", outputDir, ch.ChainID)
	if err := backtest.WriteReport(stats, chainOutputDir); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info("backtest: report written", zap.String("dir", chainOutputDir))
	return nil
}
