package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Leaderboard\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %d\n\n", len(r.Leaderboard)))

	// Best run
	if best := r.Best(); best != nil {
		sb.WriteString("## Best Run\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Run | %s |\n", best.RunID))
		sb.WriteString(fmt.Sprintf("| Timeframe | %s |\n", best.Timeframe))
		sb.WriteString(fmt.Sprintf("| Total Return | %s%% |\n", pct(best.TotalReturnPct)))
		sb.WriteString(fmt.Sprintf("| Sharpe Ratio | %s |\n", ratio(best.SharpeRatio)))
		sb.WriteString(fmt.Sprintf("| Max Drawdown | %s%% |\n", pct(best.MaxDrawdownPct)))
		sb.WriteString(fmt.Sprintf("| Win Rate | %s%% |\n", pct(best.WinRatePct)))
		sb.WriteString(fmt.Sprintf("| Trades | %d |\n", best.TotalTrades))
		sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", ratio(best.ProfitFactor)))
		sb.WriteString("\n")
	}

	// Leaderboard
	sb.WriteString("## Leaderboard\n\n")
	if len(r.Leaderboard) > 0 {
		sb.WriteString("| # | Timeframe | Run | Assets | Return% | Sharpe | MaxDD% | WinRate% | Trades | PF |\n")
		sb.WriteString("|---|-----------|-----|--------|---------|--------|--------|----------|--------|----|\n")
		for i, row := range r.Leaderboard {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %d | %s | %s | %s | %s | %d | %s |\n",
				i+1, row.Timeframe, row.RunID, row.Assets,
				pct(row.TotalReturnPct), ratio(row.SharpeRatio), pct(row.MaxDrawdownPct),
				pct(row.WinRatePct), row.TotalTrades, ratio(row.ProfitFactor)))
		}
	} else {
		sb.WriteString("No backtest runs available.\n")
	}
	sb.WriteString("\n")

	// Trade distribution
	sb.WriteString("## Trade Distribution\n\n")
	if len(r.TradeStats) > 0 {
		sb.WriteString("| Run | Trades | Long | Short | Mean% | Median% | P10% | P90% | Best% | Worst% | Fees | MaxLossStreak |\n")
		sb.WriteString("|-----|--------|------|-------|-------|---------|------|------|-------|--------|------|---------------|\n")
		for _, row := range r.Leaderboard {
			s, ok := r.TradeStats[row.RunID]
			if !ok || s.Trades == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %s | %s | %s | %s | %s | %s | %s | %d |\n",
				row.RunID, s.Trades, s.Longs, s.Shorts,
				pct(s.AvgReturnPct), pct(s.MedianReturnPct), pct(s.P10ReturnPct), pct(s.P90ReturnPct),
				pct(s.BestReturnPct), pct(s.WorstReturnPct), money(s.TotalFees), s.MaxConsecutiveLosses))
		}
	} else {
		sb.WriteString("No trades recorded.\n")
	}
	sb.WriteString("\n")

	// Errors
	if len(r.Errors) > 0 {
		sb.WriteString("## Errors\n\n")
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
