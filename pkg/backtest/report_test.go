package backtest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTextReport_NoProfitNamesPossibleReasons(t *testing.T) {
	stats := Statistics{
		StartBlock: 100, EndBlock: 200, TotalBlocks: 101,
		BlocksWithSwaps: 10, TotalVolumeUSD: 500,
		PathStats: []*PathStatistics{{PathName: "a->b->c->a", TriangleID: 1, AnalysisCount: 40}},
	}
	text := FormatTextReport(stats)

	assert.Contains(t, text, "No opportunity cleared net profit")
	assert.Contains(t, text, "a->b->c->a")
	assert.NotContains(t, text, "[Top 20")
}

func TestFormatTextReport_ProfitableSummarizesTotals(t *testing.T) {
	stats := Statistics{
		StartBlock: 1, EndBlock: 2, TotalBlocks: 2, BlocksWithSwaps: 2, TotalVolumeUSD: 1000,
		PathStats: []*PathStatistics{{PathName: "tri", TriangleID: 1, AnalysisCount: 2, ProfitableCount: 2, MaxProfitUSD: 30, TotalProfitUSD: 50}},
		ProfitableOpportunities: []Opportunity{
			{Block: 10, BlockTimestamp: time.Unix(1_700_000_000, 0).UTC(), Capture: Capture100, InputAmountUSD: 1000, RealNetProfitUSD: 30},
			{Block: 20, BlockTimestamp: time.Unix(1_700_000_100, 0).UTC(), Capture: Capture50, InputAmountUSD: 500, RealNetProfitUSD: 20},
		},
	}
	text := FormatTextReport(stats)

	assert.Contains(t, text, "[Top 20 profitable opportunities]")
	assert.Contains(t, text, "Found 2 profitable opportunities")
	assert.Contains(t, text, "total profit: $50.00")
	assert.Contains(t, text, "max profit:   $30.00")
}

func TestWriteReport_WritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	stats := Statistics{StartBlock: 1, EndBlock: 1, TotalBlocks: 1}

	require.NoError(t, WriteReport(stats, dir))

	_, err := os.Stat(filepath.Join(dir, "backtest_report.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "backtest_report.json"))
	assert.NoError(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde...", truncate("abcdefghij", 8))
}
