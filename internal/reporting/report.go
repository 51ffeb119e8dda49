// Package reporting renders backtest results as CSV exports and Markdown
// reports.
package reporting

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/metrics"
)

// Report is the leaderboard report over stored backtest runs.
type Report struct {
	GeneratedAt time.Time

	// Leaderboard is sorted by Sharpe ratio DESC, then run ID.
	Leaderboard []LeaderboardRow

	// TradeStats per run ID.
	TradeStats map[string]metrics.TradeStats

	// Errors holds per-timeframe failures of the run that produced the board.
	Errors []string
}

// LeaderboardRow is one backtest run summarised for ranking.
type LeaderboardRow struct {
	RunID     string
	Timeframe string
	Assets    int
	Bars      int
	domain.Metrics
}

// RowFromRun builds a leaderboard row from a stored run.
func RowFromRun(r *domain.BacktestRun) LeaderboardRow {
	return LeaderboardRow{
		RunID:     r.RunID,
		Timeframe: r.Timeframe,
		Assets:    len(r.Symbols),
		Bars:      r.Bars,
		Metrics:   r.Metrics,
	}
}

// Best returns the top leaderboard row, or nil for an empty board.
func (r *Report) Best() *LeaderboardRow {
	if r == nil || len(r.Leaderboard) == 0 {
		return nil
	}
	return &r.Leaderboard[0]
}

// fixed formats v with exactly places decimals. Non-finite values are
// rendered as "NaN", "+Inf" or "-Inf".
func fixed(v float64, places int32) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func money(v float64) string { return fixed(v, 2) }
func pct(v float64) string   { return fixed(v, 2) }
func ratio(v float64) string { return fixed(v, 4) }
func price(v float64) string { return fixed(v, 8) }
