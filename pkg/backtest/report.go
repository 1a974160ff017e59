package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteReport renders stats as both a human-readable text report and
// a JSON document under outputDir: backtest_report.txt and
// backtest_report.json, both derived from the same Statistics value.
func WriteReport(stats Statistics, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("backtest: create output dir: %w", err)
	}

	text := FormatTextReport(stats)
	if err := os.WriteFile(filepath.Join(outputDir, "backtest_report.txt"), []byte(text), 0o644); err != nil {
		return fmt.Errorf("backtest: write text report: %w", err)
	}

	blob, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("backtest: marshal json report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "backtest_report.json"), blob, 0o644); err != nil {
		return fmt.Errorf("backtest: write json report: %w", err)
	}
	return nil
}

const topOpportunities = 20

// FormatTextReport builds the multi-section human-readable summary:
// range, trade stats, per-path table, top-N profitable traces, and a
// closing verdict.
func FormatTextReport(stats Statistics) string {
	var b strings.Builder

	rule := strings.Repeat("=", 80)
	b.WriteString(rule + "\n")
	b.WriteString("Triangular arbitrage backtest report\n")
	b.WriteString(rule + "\n\n")

	b.WriteString("[Range]\n")
	fmt.Fprintf(&b, "  start block: %d\n", stats.StartBlock)
	fmt.Fprintf(&b, "  end block:   %d\n", stats.EndBlock)
	fmt.Fprintf(&b, "  total blocks: %d\n\n", stats.TotalBlocks)

	b.WriteString("[Volume]\n")
	fmt.Fprintf(&b, "  blocks with swaps: %d\n", stats.BlocksWithSwaps)
	fmt.Fprintf(&b, "  total volume: $%.2f\n", stats.TotalVolumeUSD)
	avgPerBlock := 0.0
	if stats.BlocksWithSwaps > 0 {
		avgPerBlock = stats.TotalVolumeUSD / float64(stats.BlocksWithSwaps)
	}
	fmt.Fprintf(&b, "  avg volume per block: $%.2f\n\n", avgPerBlock)

	var totalAnalysis, totalProfitable uint64
	for _, ps := range stats.PathStats {
		totalAnalysis += ps.AnalysisCount
		totalProfitable += ps.ProfitableCount
	}
	b.WriteString("[Opportunities]\n")
	ratios := make([]string, len(CaptureRatios))
	for i, c := range CaptureRatios {
		ratios[i] = fmt.Sprintf("%d%%", c)
	}
	fmt.Fprintf(&b, "  capture ratios: %s of each trigger swap's USD volume (counts, per-path figures and the conclusion cover all of them)\n", strings.Join(ratios, ", "))
	fmt.Fprintf(&b, "  total analyzed: %d\n", totalAnalysis)
	fmt.Fprintf(&b, "  profitable: %d\n", totalProfitable)
	hitRate := 0.0
	if totalAnalysis > 0 {
		hitRate = float64(totalProfitable) / float64(totalAnalysis) * 100
	}
	fmt.Fprintf(&b, "  hit rate: %.2f%%\n\n", hitRate)

	b.WriteString("[Per-path statistics]\n")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	fmt.Fprintf(&b, "%-50s %10s %10s %15s %15s %15s\n", "path", "analyzed", "profitable", "max $", "avg $", "total $")
	b.WriteString(strings.Repeat("-", 120) + "\n")

	sortedPaths := append([]*PathStatistics(nil), stats.PathStats...)
	sort.Slice(sortedPaths, func(i, j int) bool { return sortedPaths[i].MaxProfitUSD > sortedPaths[j].MaxProfitUSD })
	for _, ps := range sortedPaths {
		fmt.Fprintf(&b, "%-50s %10d %10d %15.2f %15.2f %15.2f\n",
			truncate(ps.PathName, 48), ps.AnalysisCount, ps.ProfitableCount, ps.MaxProfitUSD, ps.AvgProfitUSD(), ps.TotalProfitUSD)
	}
	b.WriteString("\n")

	if len(stats.ProfitableOpportunities) > 0 {
		b.WriteString("[Top 20 profitable opportunities]\n")
		b.WriteString(strings.Repeat("-", 120) + "\n")

		sortedOpps := append([]Opportunity(nil), stats.ProfitableOpportunities...)
		sort.Slice(sortedOpps, func(i, j int) bool { return sortedOpps[i].RealNetProfitUSD > sortedOpps[j].RealNetProfitUSD })
		if len(sortedOpps) > topOpportunities {
			sortedOpps = sortedOpps[:topOpportunities]
		}

		for i, opp := range sortedOpps {
			writeOpportunityTrace(&b, i+1, opp)
		}
	}

	b.WriteString(rule + "\n")
	b.WriteString("[Conclusion]\n")
	if totalProfitable == 0 {
		b.WriteString("\nNo opportunity cleared net profit > 0 over the backtest window.\n")
		b.WriteString("Possible reasons:\n")
		b.WriteString("1. price deviation between pools too small to cover trading costs\n")
		b.WriteString("2. gas cost requires a larger deviation to clear\n")
		b.WriteString("3. high-frequency traders capture the deviation before this path would\n")
		b.WriteString("4. the capture-ratio model ignores real execution slippage\n")
	} else {
		var total, max float64
		max = stats.ProfitableOpportunities[0].RealNetProfitUSD
		for _, opp := range stats.ProfitableOpportunities {
			total += opp.RealNetProfitUSD
			if opp.RealNetProfitUSD > max {
				max = opp.RealNetProfitUSD
			}
		}
		avg := total / float64(len(stats.ProfitableOpportunities))
		fmt.Fprintf(&b, "\nFound %d profitable opportunities\n", totalProfitable)
		fmt.Fprintf(&b, "  total profit: $%.2f\n", total)
		fmt.Fprintf(&b, "  avg profit:   $%.2f\n", avg)
		fmt.Fprintf(&b, "  max profit:   $%.2f\n", max)
	}
	b.WriteString(rule + "\n")

	return b.String()
}

func writeOpportunityTrace(b *strings.Builder, rank int, opp Opportunity) {
	fmt.Fprintf(b, "\n%2d. block %d | %s\n", rank, opp.Block, opp.BlockTimestamp.Format("2006-01-02 15:04:05 MST"))
	b.WriteString(strings.Repeat("-", 80) + "\n")

	if opp.Trigger != nil {
		fmt.Fprintf(b, "\n    [trigger trade]\n")
		fmt.Fprintf(b, "    pool: %s (fee %.2f%%)\n", truncate(opp.Trigger.Pool.Address.Hex(), 42), opp.Trigger.PoolFeePct)
		fmt.Fprintf(b, "    user sold %s for %s (volume: $%.2f)\n", opp.Trigger.SellToken.Hex(), opp.Trigger.BuyToken.Hex(), opp.Trigger.PoolVolumeUSD)
	}

	if len(opp.Steps) > 0 {
		fmt.Fprintf(b, "\n    [replayed arbitrage]\n")
		for _, step := range opp.Steps {
			fmt.Fprintf(b, "    step %d: pool %s (fee %.2f%%) sell %.6f %s for %.6f %s\n",
				step.Step, truncate(step.Pool.Address.Hex(), 42), step.FeePercent, step.SellAmount, step.SellToken.Hex(), step.BuyAmount, step.BuyToken.Hex())
		}
	}

	fmt.Fprintf(b, "\n    [spread] deviation %.4f%% | fees %.4f%% | net spread %.4f%%\n", opp.PriceDeviationPct, opp.TotalFeePct, opp.ArbSpreadPct)
	fmt.Fprintf(b, "    [capture %d%%] input $%.2f | output $%.2f\n", opp.Capture, opp.InputAmountUSD, opp.OutputAmountUSD)
	fmt.Fprintf(b, "    gross $%.2f | gas $%.2f | net (own funds) $%.2f\n", opp.GrossProfitUSD, opp.GasCostUSD, opp.NetProfitUSD)
	fmt.Fprintf(b, "    flash-loan fee $%.2f | net after flash loan $%.2f\n", opp.FlashFeeUSD, opp.RealNetProfitUSD)
	b.WriteString("\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
