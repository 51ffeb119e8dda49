package domain

// SweepRow is one parameter combination and its metrics.
type SweepRow struct {
	SweepID            string
	ComboIndex         int
	HurstThreshold     float64
	ChopThreshold      float64
	PhaseLong          float64
	PhaseShort         float64
	TrailingMultiplier float64
	MacroFilter        MacroFilter
	Metrics
	Failed bool
}

// Recommendation is the best sweep combination, ready to write back to configuration.
type Recommendation struct {
	HurstThreshold     float64
	PhaseLong          float64
	PhaseShort         float64
	TrailingMultiplier float64
	MacroFilter        MacroFilter
	Metrics
}
