// Command engine is the live arbitrage engine's entrypoint: it loads
// configuration, brings up Chain Ingress/Scanner/Executor for every
// configured chain sharing one Pool-State Store, and serves Prometheus
// metrics until signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/configs"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/internal/db"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/internal/signer"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/internal/util"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/contractclient"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/executor"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/flashpool"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/ingress"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/priceusd"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/relay"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/scanner"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/store"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/txlistener"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the engine's YAML configuration")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve Prometheus /metrics on")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		// .env is optional: secrets may already be in the real environment.
		fmt.Fprintf(os.Stderr, "engine: no .env file loaded: %v\n", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(*configPath, *metricsAddr, log); err != nil {
		log.Fatal("engine: fatal error", zap.Error(err))
	}
}

func run(configPath, metricsAddr string, log *zap.Logger) error {
	cfg, err := configs.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	signerKey, err := loadSigner()
	if err != nil {
		return fmt.Errorf("load signer: %w", err)
	}

	reg := prometheus.NewRegistry()
	ingressMetrics := ingress.NewMetrics(reg)
	scannerMetrics := scanner.NewMetrics(reg)
	executorMetrics := executor.NewMetrics(reg)

	var recorder *db.Recorder
	if cfg.DBDsn != "" {
		recorder, err = db.NewRecorder(cfg.DBDsn)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer recorder.Close()
	} else {
		log.Warn("engine: db_dsn not set, running without persistence")
	}

	priceCache := priceusd.NewCache()
	if cfg.EthPriceUSD > 0 {
		log.Info("engine: eth_price_usd override set but the live fetcher still owns the cache; configure stablecoins/price_quotes instead of relying on a static override")
	}
	fetcher := priceusd.NewFetcher(priceCache, cfg.PriceQuotes(), cfg.StablecoinSet(), 10*time.Minute, log)

	gasUnits := make(map[types.ChainID]uint64)
	nativeTokens := make(map[types.ChainID]types.Address)
	for _, ch := range cfg.Chains {
		units, native := ch.GasUnitsAndNativeToken()
		gasUnits[types.ChainID(ch.ChainID)] = units
		nativeTokens[types.ChainID(ch.ChainID)] = native
	}
	gasOracle := priceusd.NewGasOracle(priceCache, gasUnits, nativeTokens, log)

	st := store.New()

	allCandidates := make(map[types.Address][]flashpool.Candidate)
	var allTriangles []*types.Triangle
	for _, ch := range cfg.Chains {
		for token, cands := range ch.FlashCandidates() {
			allCandidates[token] = append(allCandidates[token], cands...)
		}
		allTriangles = append(allTriangles, ch.Triangles()...)
	}
	maxCacheAge := maxStaleThreshold(cfg.Chains)
	if maxCacheAge == 0 {
		maxCacheAge = 10
	}
	flashSelector := flashpool.New(st, allCandidates, maxCacheAge)
	triggerIndex := scanner.BuildTriggerIndex(allTriangles)

	scanCfg := scanner.Config{
		Grid:           cfg.Grid(),
		MinProfitUSD:   cfg.MinProfitUSD,
		StaleThreshold: maxStaleThreshold(cfg.Chains),
		MicroBudget:    cfg.MicroBudget,
		Decimals:       cfg.Decimals(),
	}
	sc := scanner.New(st, triggerIndex, flashSelector, fetcher, gasOracle, log, scannerMetrics, scanCfg, 256)

	execChains := make(map[types.ChainID]executor.ChainConfig)
	gasSources := make(map[types.ChainID]priceusd.GasPriceSource)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	updates := make(chan types.SwapUpdate, 4096)
	var ingresses []*ingress.Ingress

	for _, ch := range cfg.Chains {
		chainID := types.ChainID(ch.ChainID)

		wsClient, err := ethclient.DialContext(ctx, ch.WSURL)
		if err != nil {
			return fmt.Errorf("chain %d: dial ws: %w", ch.ChainID, err)
		}
		httpClient, err := ethclient.DialContext(ctx, ch.HTTPURL)
		if err != nil {
			return fmt.Errorf("chain %d: dial http: %w", ch.ChainID, err)
		}
		gasSources[chainID] = httpClient

		ig := ingress.New(wsClient, st, log, ingressMetrics, chainID, ch.MonitoredPools(), updates)
		ingresses = append(ingresses, ig)

		abiJSON, err := ch.ABI()
		if err != nil {
			return fmt.Errorf("chain %d: %w", ch.ChainID, err)
		}
		contract, err := contractclient.NewContractClient(ctx, httpClient, ch.ContractAddress(), abiJSON)
		if err != nil {
			return fmt.Errorf("chain %d: build contract client: %w", ch.ChainID, err)
		}

		listener := txlistener.NewTxListener(httpClient,
			txlistener.WithPollInterval(3*time.Second),
			txlistener.WithTimeout(5*time.Minute),
		)

		mode := ch.SubmitModeParsed()
		var bundleSubmitter executor.BundleSubmitter
		if mode == types.SubmitPrivate {
			identityKey := os.Getenv(ch.RelayIdentityKeyEnv)
			if identityKey == "" {
				return fmt.Errorf("chain %d: submit_mode private but %s is unset", ch.ChainID, ch.RelayIdentityKeyEnv)
			}
			relayClient, err := relay.NewClient(identityKey, log, relay.WithMaxBlockRetries(ch.MaxBlockRetries))
			if err != nil {
				return fmt.Errorf("chain %d: build relay client: %w", ch.ChainID, err)
			}
			bundleSubmitter = relayClient
		}

		execChains[chainID] = executor.ChainConfig{
			Contract:        contract,
			Signer:          signerKey,
			Listener:        listener,
			Mode:            mode,
			Relay:           bundleSubmitter,
			MaxBlockRetries: ch.MaxBlockRetries,
			BlockTime:       ch.BlockTime(),
		}
	}

	execCfg := executor.Config{
		Chains:         execChains,
		Decimals:       cfg.Decimals(),
		MinProfitUSD:   cfg.MinProfitUSD,
		StaleThreshold: maxStaleThreshold(cfg.Chains),
		ConfirmBlocks:  maxConfirmBlocks(cfg.Chains),
		Workers:        maxWorkers(cfg.Chains),
	}
	ex := executor.New(st, flashSelector, fetcher, gasOracle, log, executorMetrics, execCfg, 256)

	oppIntake := make(chan types.Opportunity, 256)
	stop := make(chan struct{})

	go fetcher.Run(ctx, time.Minute)
	go gasOracle.Run(ctx, gasSources, time.Minute)
	for _, ig := range ingresses {
		go func(ig *ingress.Ingress) {
			if err := ig.Run(ctx); err != nil && ctx.Err() == nil {
				log.Warn("engine: ingress exited", zap.Error(err))
			}
		}(ig)
	}
	go sc.Run(updates, stop)
	go forwardOpportunities(ctx, sc.Opportunities, oppIntake, recorder, log)
	go ex.Run(ctx, oppIntake)
	go recordResults(ctx, ex.Results, recorder, log)
	if recorder != nil {
		go cachePoolSnapshots(ctx, st, cfg, recorder, log)
	}

	server := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("engine: metrics server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("engine: shutting down")
	close(stop)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// loadSigner recovers the engine's signing key: an AES-256-GCM
// encrypted private key (ENC_PK) decrypted with a symmetric key (KEY).
func loadSigner() (*signer.Signer, error) {
	encPK := os.Getenv("ENC_PK")
	keyHex := os.Getenv("KEY")
	if encPK == "" || keyHex == "" {
		return nil, fmt.Errorf("ENC_PK and KEY environment variables are required")
	}
	keyBytes := []byte(keyHex)
	plainHex, err := util.Decrypt(keyBytes, encPK)
	if err != nil {
		return nil, fmt.Errorf("decrypt signing key: %w", err)
	}
	return signer.FromHex(plainHex)
}

func forwardOpportunities(ctx context.Context, in <-chan types.Opportunity, out chan<- types.Opportunity, recorder *db.Recorder, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp, ok := <-in:
			if !ok {
				return
			}
			if recorder != nil {
				if err := recorder.RecordOpportunity(opp.Triangle.TriggerPool.Chain, opp); err != nil {
					log.Warn("engine: record opportunity failed", zap.Error(err))
				}
			}
			select {
			case out <- opp:
			case <-ctx.Done():
				return
			}
		}
	}
}

func recordResults(ctx context.Context, results <-chan types.ExecutionResult, recorder *db.Recorder, log *zap.Logger) {
	if recorder == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-results:
			if !ok {
				return
			}
			if err := recorder.RecordTrade(result.Chain, result.TriangleID, result, time.Now()); err != nil {
				log.Warn("engine: record trade failed", zap.Error(err))
			}
		}
	}
}

// cachePoolSnapshots periodically persists every monitored pool's
// current Store snapshot to pool_cache for observability — Chain
// Ingress and the Store stay decoupled from the database; this loop
// is the only writer.
func cachePoolSnapshots(ctx context.Context, st *store.Store, cfg *configs.Config, recorder *db.Recorder, log *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ch := range cfg.Chains {
				chainID := types.ChainID(ch.ChainID)
				for _, pm := range ch.MonitoredPools() {
					snap, ok := st.Get(pm.Identity)
					if !ok {
						continue
					}
					if err := recorder.UpsertPoolCache(chainID, snap); err != nil {
						log.Warn("engine: upsert pool cache failed", zap.Error(err))
					}
				}
			}
		}
	}
}

func maxStaleThreshold(chains []configs.ChainYAML) uint64 {
	var max uint64
	for _, ch := range chains {
		if ch.StaleThreshold > max {
			max = ch.StaleThreshold
		}
	}
	return max
}

func maxConfirmBlocks(chains []configs.ChainYAML) int {
	var max int
	for _, ch := range chains {
		if ch.ConfirmBlocks > max {
			max = ch.ConfirmBlocks
		}
	}
	return max
}

func maxWorkers(chains []configs.ChainYAML) int {
	var max int
	for _, ch := range chains {
		if ch.Workers > max {
			max = ch.Workers
		}
	}
	return max
}
