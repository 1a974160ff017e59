package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/backtest"
	"github.com/robustfengbin/ChainFusion-Arbitrage-sub001/pkg/types"
)

func newMockRecorder(t *testing.T) (*Recorder, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Recorder{db: gormDB}, mock
}

func testTriangle() *types.Triangle {
	return &types.Triangle{
		ID:          7,
		TriggerPool: types.PoolIdentity{Chain: 1, Address: types.Address{0x01}, Family: types.DEXV3},
	}
}

func TestRecorder_RecordOpportunity(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `arbitrage_opportunities`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	opp := types.Opportunity{
		Triangle:          testTriangle(),
		InputAmount:       uint256.NewInt(10_000),
		GrossProfitUSD:    18,
		GasEstimateUSD:    3,
		FlashFeeUSD:       5,
		NetProfitUSD:      10,
		BorrowPool:        types.PoolIdentity{Address: types.Address{0x02}},
		BorrowPoolFeeTier: types.FeeTier05,
		DiscoveredAt:      time.Now(),
	}

	err := recorder.RecordOpportunity(1, opp)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_RecordTrade_UpsertsOnConflict(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `trade_records`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result := types.ExecutionResult{
		TxHash:          types.Address{}.Hash(),
		Status:          types.StatusIncluded,
		Block:           100,
		ActualProfitUSD: 10,
		GasUsed:         210_000,
	}

	err := recorder.RecordTrade(1, 7, result, time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_UpsertPoolCache_RequiresV2OrV3(t *testing.T) {
	recorder, _ := newMockRecorder(t)

	err := recorder.UpsertPoolCache(1, types.PoolSnapshot{Identity: types.PoolIdentity{Address: types.Address{0x03}}})
	assert.Error(t, err)
}

func TestRecorder_UpsertPoolCache_V3Snapshot(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `pool_cache`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	snap := types.PoolSnapshot{
		Identity: types.PoolIdentity{Address: types.Address{0x03}, Family: types.DEXV3},
		V3: &types.V3Snapshot{
			Token0:          types.Address{0x04},
			Token1:          types.Address{0x05},
			Fee:             types.FeeTier05,
			SqrtPriceX96:    new(uint256.Int).Lsh(uint256.NewInt(1), 96),
			Liquidity:       uint256.NewInt(1_000_000),
			Tick:            0,
			LastUpdateBlock: 42,
		},
	}

	err := recorder.UpsertPoolCache(1, snap)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_InsertSwaps_SkipsWhenEmpty(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	err := recorder.InsertSwaps(1, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet()) // no SQL expected, none issued
}

func TestRecorder_InsertSwaps_PersistsBatch(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `swap_logs`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	records := []backtest.SwapRecord{
		{
			Pool:         types.Address{0x06},
			Block:        10,
			TxHash:       types.Address{}.Hash(),
			LogIndex:     0,
			Amount0:      uint256.NewInt(5_000_000),
			Amount1:      uint256.NewInt(2_000_000_000_000_000_000),
			Amount1Neg:   true,
			SqrtPriceX96: uint256.NewInt(1),
			Liquidity:    uint256.NewInt(1),
			USDVolume:    5.0,
		},
	}

	err := recorder.InsertSwaps(1, records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecorder_LatestDownloadedBlock_NoRowsReturnsFalse(t *testing.T) {
	recorder, mock := newMockRecorder(t)

	mock.ExpectQuery("SELECT \\* FROM `swap_logs`").
		WillReturnError(gorm.ErrRecordNotFound)

	_, ok := recorder.LatestDownloadedBlock(1)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUint256String(t *testing.T) {
	assert.Equal(t, "0", uint256String(nil))
	assert.Equal(t, "123", uint256String(uint256.NewInt(123)))
}
