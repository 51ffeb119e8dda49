package domain

import "fmt"

// MacroFilter selects which regime filter gates new entries.
type MacroFilter string

// Macro filter values.
const (
	MacroFilterChop  MacroFilter = "chop"
	MacroFilterHurst MacroFilter = "hurst"
	MacroFilterBoth  MacroFilter = "both"
)

// ParseMacroFilter validates a macro filter name.
func ParseMacroFilter(s string) (MacroFilter, error) {
	switch MacroFilter(s) {
	case MacroFilterChop, MacroFilterHurst, MacroFilterBoth:
		return MacroFilter(s), nil
	default:
		return "", fmt.Errorf("unknown macro filter %q", s)
	}
}

// StrategyParams is the tunable parameter tuple evaluated by a backtest.
type StrategyParams struct {
	HurstThreshold     float64
	ChopThreshold      float64
	PhaseLong          float64
	PhaseShort         float64
	PhaseTolerance     float64
	TrailingMultiplier float64
	BreakevenThreshold float64
	MaxConcurrent      int
	RiskPerTrade       float64
	VetoThreshold      float64
	MacroFilter        MacroFilter
}
