package metrics

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"rabbit-quant/internal/domain"
)

// TradeStats is the per-trade distribution of a run, used in reports.
type TradeStats struct {
	Trades               int
	Wins                 int
	Losses               int
	Longs                int
	Shorts               int
	AvgReturnPct         float64
	MedianReturnPct      float64
	P10ReturnPct         float64
	P90ReturnPct         float64
	BestReturnPct        float64
	WorstReturnPct       float64
	TotalFees            float64
	MaxConsecutiveLosses int
}

// ComputeTradeStats summarises closed trades. Trades are ordered by exit
// time, then trade ID, before computing streaks.
func ComputeTradeStats(trades []*domain.TradeRecord) TradeStats {
	n := len(trades)
	if n == 0 {
		return TradeStats{}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ExitTime != sorted[j].ExitTime {
			return sorted[i].ExitTime < sorted[j].ExitTime
		}
		return sorted[i].TradeID < sorted[j].TradeID
	})

	s := TradeStats{Trades: n}
	returns := make([]float64, n)
	for i, t := range sorted {
		if t.IsWin() {
			s.Wins++
		} else {
			s.Losses++
		}
		if t.Direction == domain.DirectionShort {
			s.Shorts++
		} else {
			s.Longs++
		}
		s.TotalFees += t.Fees
		returns[i] = t.ReturnPct
	}

	s.AvgReturnPct = stat.Mean(returns, nil)
	sort.Float64s(returns)
	s.MedianReturnPct = computePercentile(returns, 0.50)
	s.P10ReturnPct = computePercentile(returns, 0.10)
	s.P90ReturnPct = computePercentile(returns, 0.90)
	s.WorstReturnPct = returns[0]
	s.BestReturnPct = returns[n-1]
	s.MaxConsecutiveLosses = computeMaxConsecutiveLosses(sorted)
	return s
}
