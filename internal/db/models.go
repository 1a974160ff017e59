package db

import "time"

// ArbitrageOpportunityRecord is the database model for one emitted
// arbitrage opportunity: arbitrage_opportunities sink,
// one row per emission, no idempotency key (a triangle can legitimately
// re-emit at the same block on a later size-grid rung).
type ArbitrageOpportunityRecord struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Chain             uint64    `gorm:"index:idx_opp_chain_block;not null"`
	TriangleID        int       `gorm:"index;not null"`
	TriggerPool       string    `gorm:"type:varchar(42);not null"`
	TriggerBlock      uint64    `gorm:"index:idx_opp_chain_block;not null"`
	InputAmount       string    `gorm:"type:varchar(78);not null;comment:base units as string"`
	GrossProfitUSD    float64   `gorm:"not null"`
	GasEstimateUSD    float64   `gorm:"not null"`
	FlashFeeUSD       float64   `gorm:"not null"`
	NetProfitUSD      float64   `gorm:"not null"`
	BorrowPool        string    `gorm:"type:varchar(42);not null"`
	BorrowPoolFeeTier uint32    `gorm:"not null"`
	DiscoveredAt      time.Time `gorm:"index;not null"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

func (ArbitrageOpportunityRecord) TableName() string { return "arbitrage_opportunities" }

// TradeRecord is the database model for one terminal execution
// result: trade_records sink. Idempotent on (chain,
// tx_hash) persistence handoff paragraph.
type TradeRecord struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Chain           uint64    `gorm:"uniqueIndex:idx_trade_chain_tx;not null"`
	TxHash          string    `gorm:"type:varchar(66);uniqueIndex:idx_trade_chain_tx;not null"`
	TriangleID      int       `gorm:"index;not null"`
	Status          string    `gorm:"type:varchar(16);not null"`
	Block           uint64    `gorm:"not null"`
	ActualProfitUSD float64   `gorm:"not null"`
	GasUsed         uint64    `gorm:"not null"`
	RevertReason    string    `gorm:"type:varchar(255)"`
	RecordedAt      time.Time `gorm:"index;not null"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

func (TradeRecord) TableName() string { return "trade_records" }

// PoolCacheRecord is the database model for pool_cache: the current
// observability snapshot of one pool. Idempotent on (chain, address,
// block) — a later snapshot at the same block overwrites
// rather than duplicates.
type PoolCacheRecord struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Chain        uint64    `gorm:"uniqueIndex:idx_pool_chain_addr_block;not null"`
	Address      string    `gorm:"type:varchar(42);uniqueIndex:idx_pool_chain_addr_block;not null"`
	Block        uint64    `gorm:"uniqueIndex:idx_pool_chain_addr_block;not null"`
	Family       string    `gorm:"type:varchar(16);not null"`
	Token0       string    `gorm:"type:varchar(42);not null"`
	Token1       string    `gorm:"type:varchar(42);not null"`
	Fee          uint32    `gorm:"not null"`
	Reserve0     string    `gorm:"type:varchar(78)"`
	Reserve1     string    `gorm:"type:varchar(78)"`
	SqrtPriceX96 string    `gorm:"type:varchar(78)"`
	Liquidity    string    `gorm:"type:varchar(78)"`
	Tick         int32
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (PoolCacheRecord) TableName() string { return "pool_cache" }

// SwapLogRecord is the database model backing pkg/backtest.SwapStore:
// one decoded Swap event. Idempotent on (chain, tx_hash, log_index)
//.
type SwapLogRecord struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Chain          uint64 `gorm:"uniqueIndex:idx_swap_chain_tx_log;not null"`
	Pool           string `gorm:"type:varchar(42);index;not null"`
	Block          uint64 `gorm:"index;not null"`
	BlockTimestamp uint64 `gorm:"not null"`
	TxHash         string `gorm:"type:varchar(66);uniqueIndex:idx_swap_chain_tx_log;not null"`
	LogIndex       uint   `gorm:"uniqueIndex:idx_swap_chain_tx_log;not null"`
	Amount0        string `gorm:"type:varchar(78);not null"`
	Amount0Neg     bool   `gorm:"not null"`
	Amount1        string `gorm:"type:varchar(78);not null"`
	Amount1Neg     bool   `gorm:"not null"`
	SqrtPriceX96   string `gorm:"type:varchar(78);not null"`
	Liquidity      string `gorm:"type:varchar(78);not null"`
	Tick           int32
	USDVolume      float64 `gorm:"not null"`
}

func (SwapLogRecord) TableName() string { return "swap_logs" }
