// Package sweep evaluates the strategy over a Cartesian grid of parameters
// and ranks the outcomes.
package sweep

import "rabbit-quant/internal/domain"

// Grid lists the values swept for each parameter.
type Grid struct {
	HurstThresholds     []float64
	PhaseLong           []float64
	PhaseShort          []float64
	TrailingMultipliers []float64
	MacroFilters        []domain.MacroFilter
}

// Count returns the number of combinations.
func (g Grid) Count() int {
	return len(g.HurstThresholds) * len(g.PhaseLong) * len(g.PhaseShort) *
		len(g.TrailingMultipliers) * len(g.MacroFilters)
}

// ChopThreshold derives the choppiness ceiling from the Hurst threshold:
// a stricter persistence requirement tolerates less chop.
func ChopThreshold(hurst float64) float64 {
	return 50 - 118*(hurst-0.5)
}

// Combinations expands the grid onto base in nested order
// (hurst, long, short, trailing, filter). Fields outside the grid are
// taken from base.
func (g Grid) Combinations(base domain.StrategyParams) []domain.StrategyParams {
	out := make([]domain.StrategyParams, 0, g.Count())
	for _, h := range g.HurstThresholds {
		for _, pl := range g.PhaseLong {
			for _, ps := range g.PhaseShort {
				for _, tm := range g.TrailingMultipliers {
					for _, mf := range g.MacroFilters {
						p := base
						p.HurstThreshold = h
						p.ChopThreshold = ChopThreshold(h)
						p.PhaseLong = pl
						p.PhaseShort = ps
						p.TrailingMultiplier = tm
						p.MacroFilter = mf
						out = append(out, p)
					}
				}
			}
		}
	}
	return out
}
