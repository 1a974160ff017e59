package priceusd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// TokenQuote names one token's external price source: its CoinGecko
// simple-price id.
type TokenQuote struct {
	Token       types.Address
	CoinGeckoID string
}

// Fetcher refreshes a Cache from CoinGecko's public simple-price
// endpoint on a fixed interval, overlaying a fixed 1.0 price for any
// configured stablecoin instead of fetching it ("no
// token pricing beyond a single external quote" non-goal rules out a
// second price source, so stablecoins are pinned rather than queried
// against a different API).
type Fetcher struct {
	http        *http.Client
	baseURL     string
	cache       *Cache
	quotes      []TokenQuote
	stablecoins map[types.Address]bool
	staleAfter  time.Duration
	log         *zap.Logger
}

const coinGeckoBaseURL = "https://api.coingecko.com/api/v3/simple/price"

func NewFetcher(cache *Cache, quotes []TokenQuote, stablecoins map[types.Address]bool, staleAfter time.Duration, log *zap.Logger) *Fetcher {
	return &Fetcher{
		http:        &http.Client{Timeout: 10 * time.Second},
		baseURL:     coinGeckoBaseURL,
		cache:       cache,
		quotes:      quotes,
		stablecoins: stablecoins,
		staleAfter:  staleAfter,
		log:         log,
	}
}

// WithBaseURL points the fetcher at an alternate simple-price
// endpoint, used by tests to avoid hitting the real CoinGecko API.
func (f *Fetcher) WithBaseURL(url string) *Fetcher {
	f.baseURL = url
	return f
}

// Run refreshes every configured quote on a fixed interval until ctx
// is cancelled: a plain ticker loop, not a cron library.
func (f *Fetcher) Run(ctx context.Context, interval time.Duration) {
	for token := range f.stablecoins {
		f.cache.Set(token, decimal.NewFromInt(1))
	}

	f.refreshAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.refreshAll(ctx)
		}
	}
}

func (f *Fetcher) refreshAll(ctx context.Context) {
	for _, q := range f.quotes {
		if f.stablecoins[q.Token] {
			continue
		}
		price, err := f.fetchOne(ctx, q.CoinGeckoID)
		if err != nil {
			f.log.Warn("priceusd: fetch failed", zap.String("coingecko_id", q.CoinGeckoID), zap.Error(err))
			continue
		}
		f.cache.Set(q.Token, price)
	}
}

func (f *Fetcher) fetchOne(ctx context.Context, coinGeckoID string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", f.baseURL, coinGeckoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("priceusd: build request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("priceusd: fetch %s: %w", coinGeckoID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("priceusd: %s returned status %d", coinGeckoID, resp.StatusCode)
	}

	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("priceusd: decode %s response: %w", coinGeckoID, err)
	}
	usd, ok := body[coinGeckoID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("priceusd: %s missing usd field", coinGeckoID)
	}
	return decimal.NewFromFloat(usd), nil
}

// USD implements pkg/scanner.PriceFeed and pkg/executor.PriceFeed
// (structurally identical interfaces each package declares for
// itself): returns false once the cached quote is older than
// staleAfter, so a caller never trusts a quote that's gone stale.
func (f *Fetcher) USD(token types.Address) (float64, bool) {
	if f.cache.IsStale(token, f.staleAfter) {
		return 0, false
	}
	price, ok := f.cache.Get(token)
	if !ok {
		return 0, false
	}
	v, _ := price.Float64()
	return v, true
}
