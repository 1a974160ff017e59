package backtest

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/ingress"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// batchBlocks is the fixed window size for each getLogs call.
const batchBlocks = 2000

// blocksPerDay assumes a 12-second block time, the same constant
// downloader.rs derives start_block from (24*60*60/12).
const blocksPerDay = 24 * 60 * 60 / 12

const (
	fetchRetries   = 3
	fetchRetryWait = 2 * time.Second
	pauseEvery     = 10
	pauseDuration  = 100 * time.Millisecond
)

// LogFetcher is the narrow slice of *ethclient.Client the downloader
// needs: filtered historical logs, the chain head, and block
// timestamps for the swaps it decodes.
type LogFetcher interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
}

// SwapStore is the persistence collaborator the downloader writes
// through: upserts are expected to be idempotent on (chain, tx_hash,
// log_index), and LatestDownloadedBlock drives the
// resume-from-last-run behaviour.
type SwapStore interface {
	LatestDownloadedBlock(chain types.ChainID) (uint64, bool)
	InsertSwaps(chain types.ChainID, records []SwapRecord) error
}

// Downloader fetches and persists swap history for a fixed set of
// pools on one chain.
type Downloader struct {
	client    LogFetcher
	store     SwapStore
	pools     map[common.Address]PoolMeta
	retryWait time.Duration
	log       *zap.Logger
}

func NewDownloader(client LogFetcher, store SwapStore, pools []PoolMeta, log *zap.Logger) *Downloader {
	byAddr := make(map[common.Address]PoolMeta, len(pools))
	for _, p := range pools {
		byAddr[p.Identity.Address] = p
	}
	return &Downloader{client: client, store: store, pools: byAddr, retryWait: fetchRetryWait, log: log}
}

// WithRetryWait overrides the pause between getLogs retries, used by
// tests to avoid waiting on the real fetchRetryWait.
func (d *Downloader) WithRetryWait(wait time.Duration) *Downloader {
	d.retryWait = wait
	return d
}

// Download walks from max(head - days*blocksPerDay, lastResumedBlock)
// to the current head in batchBlocks-sized windows, decoding and
// persisting every monitored pool's Swap logs along the way.
func (d *Downloader) Download(ctx context.Context, chain types.ChainID, days uint64) error {
	head, err := d.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("backtest: chain head: %w", err)
	}

	start := uint64(0)
	if span := days * blocksPerDay; head > span {
		start = head - span
	}
	if resumed, ok := d.store.LatestDownloadedBlock(chain); ok && resumed+1 > start {
		start = resumed + 1
	}
	if start > head {
		return nil // already caught up
	}

	addrs := make([]common.Address, 0, len(d.pools))
	for addr := range d.pools {
		addrs = append(addrs, addr)
	}

	batches := 0
	for from := start; from <= head; from += batchBlocks {
		to := from + batchBlocks - 1
		if to > head {
			to = head
		}

		logs, err := d.fetchWithRetry(ctx, addrs, from, to)
		if err != nil {
			return err
		}

		records, err := d.decodeBatch(ctx, chain, logs)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			if err := d.store.InsertSwaps(chain, records); err != nil {
				return fmt.Errorf("backtest: insert swaps %d-%d: %w", from, to, err)
			}
		}

		batches++
		if batches%pauseEvery == 0 {
			time.Sleep(pauseDuration)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, addrs []common.Address, from, to uint64) ([]gethtypes.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addrs,
		Topics:    [][]common.Hash{{ingress.SwapEventSignature}},
	}

	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		logs, err := d.client.FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		d.log.Warn("backtest: getLogs failed, retrying",
			zap.Uint64("from", from), zap.Uint64("to", to), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.retryWait):
		}
	}
	return nil, fmt.Errorf("backtest: getLogs %d-%d exhausted retries: %w", from, to, lastErr)
}

// decodeBatch decodes every log against its pool's identity via
// pkg/ingress.DecodeSwapLog, the same decoder Chain Ingress uses live,
// and caches one block-timestamp lookup per distinct block number in
// the batch.
func (d *Downloader) decodeBatch(ctx context.Context, chain types.ChainID, logs []gethtypes.Log) ([]SwapRecord, error) {
	tsCache := make(map[uint64]uint64)
	records := make([]SwapRecord, 0, len(logs))

	for _, lg := range logs {
		meta, known := d.pools[lg.Address]
		if !known {
			continue
		}

		update, fault := ingress.DecodeSwapLog(lg, meta.Identity)
		if fault.IsFault() {
			d.log.Warn("backtest: swap decode failed", zap.String("fault", fault.String()), zap.Stringer("pool", meta.Identity.Address))
			continue
		}

		ts, ok := tsCache[lg.BlockNumber]
		if !ok {
			header, err := d.client.HeaderByNumber(ctx, new(big.Int).SetUint64(lg.BlockNumber))
			if err != nil {
				return nil, fmt.Errorf("backtest: header for block %d: %w", lg.BlockNumber, err)
			}
			ts = header.Time
			tsCache[lg.BlockNumber] = ts
		}

		records = append(records, SwapRecord{
			Chain:          chain,
			Pool:           meta.Identity.Address,
			Block:          lg.BlockNumber,
			BlockTimestamp: ts,
			TxHash:         lg.TxHash,
			LogIndex:       lg.Index,
			Amount0:        update.Amount0,
			Amount0Neg:     update.Amount0Neg,
			Amount1:        update.Amount1,
			Amount1Neg:     update.Amount1Neg,
			SqrtPriceX96:   update.SqrtPriceX96,
			Liquidity:      update.Liquidity,
			Tick:           update.Tick,
			USDVolume:      usdVolume(update.Amount0, update.Amount1, meta),
		})
	}
	return records, nil
}
