package db

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/backtest"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

// Recorder implements the three persistence sinks the engine writes
// through — arbitrage_opportunities, trade_records, pool_cache — plus
// the swap-log archive pkg/backtest.SwapStore needs, using GORM and
// MySQL for the connection/migration/upsert plumbing.
type Recorder struct {
	db *gorm.DB
}

// NewRecorder creates a new Recorder instance.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewRecorder(dsn string) (*Recorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}
	return NewRecorderWithDB(db)
}

// NewRecorderWithDB creates a new Recorder with an existing GORM DB
// instance, auto-migrating the four tables it owns.
func NewRecorderWithDB(db *gorm.DB) (*Recorder, error) {
	if err := db.AutoMigrate(
		&ArbitrageOpportunityRecord{},
		&TradeRecord{},
		&PoolCacheRecord{},
		&SwapLogRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &Recorder{db: db}, nil
}

// GetDB returns the underlying GORM DB instance for advanced queries.
func (r *Recorder) GetDB() *gorm.DB {
	return r.db
}

// Close closes the database connection.
func (r *Recorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying DB: %w", err)
	}
	return sqlDB.Close()
}

// RecordOpportunity persists one emitted arbitrage opportunity. One
// row per emission; there is no idempotency key for this sink.
func (r *Recorder) RecordOpportunity(chain types.ChainID, opp types.Opportunity) error {
	record := ArbitrageOpportunityRecord{
		Chain:             uint64(chain),
		TriangleID:        opp.Triangle.ID,
		TriggerPool:       opp.Triangle.TriggerPool.Address.Hex(),
		TriggerBlock:      opp.TriggerBlock,
		InputAmount:       uint256String(opp.InputAmount),
		GrossProfitUSD:    opp.GrossProfitUSD,
		GasEstimateUSD:    opp.GasEstimateUSD,
		FlashFeeUSD:       opp.FlashFeeUSD,
		NetProfitUSD:      opp.NetProfitUSD,
		BorrowPool:        opp.BorrowPool.Address.Hex(),
		BorrowPoolFeeTier: uint32(opp.BorrowPoolFeeTier),
		DiscoveredAt:      opp.DiscoveredAt,
	}
	if result := r.db.Create(&record); result.Error != nil {
		return fmt.Errorf("failed to record opportunity: %w", result.Error)
	}
	return nil
}

// RecordTrade persists one terminal execution result. Idempotent on
// (chain, tx_hash): a duplicate terminal result for the same hash (the
// executor's receipt poller re-observing the same tx) updates the
// existing row instead of inserting a second one.
func (r *Recorder) RecordTrade(chain types.ChainID, triangleID int, result types.ExecutionResult, recordedAt time.Time) error {
	record := TradeRecord{
		Chain:           uint64(chain),
		TxHash:          result.TxHash.Hex(),
		TriangleID:      triangleID,
		Status:          result.Status.String(),
		Block:           result.Block,
		ActualProfitUSD: result.ActualProfitUSD,
		GasUsed:         result.GasUsed,
		RevertReason:    result.RevertReason,
		RecordedAt:      recordedAt,
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "tx_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "block", "actual_profit_usd", "gas_used", "revert_reason", "recorded_at"}),
	}).Create(&record)
	if res.Error != nil {
		return fmt.Errorf("failed to record trade: %w", res.Error)
	}
	return nil
}

// UpsertPoolCache persists the current snapshot of one pool for
// observability. Idempotent on (chain, address, block).
func (r *Recorder) UpsertPoolCache(chain types.ChainID, snap types.PoolSnapshot) error {
	record := PoolCacheRecord{
		Chain:   uint64(chain),
		Address: snap.Identity.Address.Hex(),
		Family:  snap.Identity.Family.String(),
	}
	switch {
	case snap.V2 != nil:
		record.Block = snap.V2.LastUpdateBlock
		record.Token0 = snap.V2.Token0.Hex()
		record.Token1 = snap.V2.Token1.Hex()
		record.Fee = uint32(snap.V2.Fee)
		record.Reserve0 = uint256String(snap.V2.Reserve0)
		record.Reserve1 = uint256String(snap.V2.Reserve1)
	case snap.V3 != nil:
		record.Block = snap.V3.LastUpdateBlock
		record.Token0 = snap.V3.Token0.Hex()
		record.Token1 = snap.V3.Token1.Hex()
		record.Fee = uint32(snap.V3.Fee)
		record.SqrtPriceX96 = uint256String(snap.V3.SqrtPriceX96)
		record.Liquidity = uint256String(snap.V3.Liquidity)
		record.Tick = snap.V3.Tick
	default:
		return fmt.Errorf("pool cache: snapshot for %s has neither V2 nor V3 state", snap.Identity.Address)
	}

	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "address"}, {Name: "block"}},
		DoUpdates: clause.AssignmentColumns([]string{"reserve0", "reserve1", "sqrt_price_x96", "liquidity", "tick", "updated_at"}),
	}).Create(&record)
	if res.Error != nil {
		return fmt.Errorf("failed to upsert pool cache: %w", res.Error)
	}
	return nil
}

// LatestDownloadedBlock implements pkg/backtest.SwapStore: the
// highest block already persisted for chain, driving the downloader's
// resume-from-last-run behaviour.
func (r *Recorder) LatestDownloadedBlock(chain types.ChainID) (uint64, bool) {
	var row SwapLogRecord
	result := r.db.Where("chain = ?", uint64(chain)).Order("block DESC").First(&row)
	if result.Error != nil {
		return 0, false
	}
	return row.Block, true
}

// InsertSwaps implements pkg/backtest.SwapStore: idempotent on
// (chain, tx_hash, log_index), so re-running the
// downloader over an already-covered range is a no-op.
func (r *Recorder) InsertSwaps(chain types.ChainID, records []backtest.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]SwapLogRecord, 0, len(records))
	for _, rec := range records {
		rows = append(rows, SwapLogRecord{
			Chain:          uint64(chain),
			Pool:           rec.Pool.Hex(),
			Block:          rec.Block,
			BlockTimestamp: rec.BlockTimestamp,
			TxHash:         rec.TxHash.Hex(),
			LogIndex:       rec.LogIndex,
			Amount0:        uint256String(rec.Amount0),
			Amount0Neg:     rec.Amount0Neg,
			Amount1:        uint256String(rec.Amount1),
			Amount1Neg:     rec.Amount1Neg,
			SqrtPriceX96:   uint256String(rec.SqrtPriceX96),
			Liquidity:      uint256String(rec.Liquidity),
			Tick:           rec.Tick,
			USDVolume:      rec.USDVolume,
		})
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return fmt.Errorf("failed to insert swaps: %w", res.Error)
	}
	return nil
}

// SwapRecords loads every swap persisted for chain in ascending block
// order, the archive pkg/backtest.Replayer walks to rebuild pool
// state and evaluate each triggered triangle.
func (r *Recorder) SwapRecords(chain types.ChainID) ([]backtest.SwapRecord, error) {
	var rows []SwapLogRecord
	result := r.db.Where("chain = ?", uint64(chain)).Order("block ASC, log_index ASC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load swap records: %w", result.Error)
	}
	records := make([]backtest.SwapRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, backtest.SwapRecord{
			Chain:          chain,
			Pool:           common.HexToAddress(row.Pool),
			Block:          row.Block,
			BlockTimestamp: row.BlockTimestamp,
			TxHash:         common.HexToHash(row.TxHash),
			LogIndex:       row.LogIndex,
			Amount0:        parseUint256(row.Amount0),
			Amount0Neg:     row.Amount0Neg,
			Amount1:        parseUint256(row.Amount1),
			Amount1Neg:     row.Amount1Neg,
			SqrtPriceX96:   parseUint256(row.SqrtPriceX96),
			Liquidity:      parseUint256(row.Liquidity),
			Tick:           row.Tick,
			USDVolume:      row.USDVolume,
		})
	}
	return records, nil
}

func uint256String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

func parseUint256(s string) *uint256.Int {
	v, ok := new(uint256.Int).SetString(s, 10)
	if !ok {
		return uint256.NewInt(0)
	}
	return v
}
