package sweep

import (
	"sort"

	"rabbit-quant/internal/domain"
)

// FindBest returns up to topN rows that traded, ordered by Sharpe ratio
// descending (ties: total return descending, then combination index). When
// no row traded, the first topN rows are returned in their original order.
func FindBest(rows []*domain.SweepRow, topN int) []*domain.SweepRow {
	if topN <= 0 {
		return nil
	}

	traded := make([]*domain.SweepRow, 0, len(rows))
	for _, r := range rows {
		if r.TotalTrades > 0 {
			traded = append(traded, r)
		}
	}
	if len(traded) == 0 {
		return rows[:min(topN, len(rows))]
	}

	sort.SliceStable(traded, func(i, j int) bool {
		a, b := traded[i], traded[j]
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		if a.TotalReturnPct != b.TotalReturnPct {
			return a.TotalReturnPct > b.TotalReturnPct
		}
		return a.ComboIndex < b.ComboIndex
	})
	return traded[:min(topN, len(traded))]
}

// Recommend picks the best combination. It reports false when no row
// produced a trade.
func Recommend(rows []*domain.SweepRow) (*domain.Recommendation, bool) {
	best := FindBest(rows, 1)
	if len(best) == 0 || best[0].TotalTrades == 0 {
		return nil, false
	}
	r := best[0]
	return &domain.Recommendation{
		HurstThreshold:     r.HurstThreshold,
		PhaseLong:          r.PhaseLong,
		PhaseShort:         r.PhaseShort,
		TrailingMultiplier: r.TrailingMultiplier,
		MacroFilter:        r.MacroFilter,
		Metrics:            r.Metrics,
	}, true
}
