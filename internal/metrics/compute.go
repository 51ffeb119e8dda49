// Package metrics computes portfolio statistics from an equity curve and its
// closed trades.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"rabbit-quant/internal/domain"
)

// Summarize derives the backtest summary statistics.
//
// Sharpe is the mean over the sample standard deviation of per-bar returns,
// annualised by sqrt(barsPerYear). Drawdown is reported as a positive
// percentage. Profit factor is gross profit over gross loss, or gross
// profit when there were no losing trades.
func Summarize(equity []float64, trades []*domain.TradeRecord, barsPerYear float64) domain.Metrics {
	m := domain.Metrics{TotalTrades: len(trades)}
	if len(equity) > 0 && equity[0] > 0 {
		m.TotalReturnPct = (equity[len(equity)-1]/equity[0] - 1) * 100
	}
	m.SharpeRatio = computeSharpe(barReturns(equity), barsPerYear)
	m.MaxDrawdownPct = computeMaxDrawdownPct(equity)
	m.WinRatePct = computeWinRate(trades) * 100
	m.ProfitFactor = computeProfitFactor(trades)
	return m
}

// barReturns returns simple returns between consecutive equity points.
// Steps from a non-positive equity value are skipped.
func barReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// computeSharpe uses the sample standard deviation (n-1 denominator).
func computeSharpe(returns []float64, barsPerYear float64) float64 {
	if len(returns) < 2 || barsPerYear <= 0 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(barsPerYear)
}

// computeMaxDrawdownPct calculates the worst peak-to-trough decline of the
// equity curve, relative to the peak.
func computeMaxDrawdownPct(equity []float64) float64 {
	peak := 0.0
	maxDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - e) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD * 100
}

// computeWinRate calculates wins / total.
func computeWinRate(trades []*domain.TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.IsWin() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func computeProfitFactor(trades []*domain.TradeRecord) float64 {
	profit, loss := 0.0, 0.0
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			profit += t.PnL
		case t.PnL < 0:
			loss -= t.PnL
		}
	}
	if loss > 0 {
		return profit / loss
	}
	return profit
}

// computeMaxConsecutiveLosses finds the longest streak of trades with PnL <= 0.
// Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []*domain.TradeRecord) int {
	maxStreak := 0
	current := 0
	for _, t := range trades {
		if t.PnL <= 0 {
			current++
			if current > maxStreak {
				maxStreak = current
			}
		} else {
			current = 0
		}
	}
	return maxStreak
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
