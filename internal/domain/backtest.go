package domain

// Metrics holds the aggregate statistics of a backtest.
type Metrics struct {
	TotalReturnPct float64
	SharpeRatio    float64
	MaxDrawdownPct float64 // positive number
	WinRatePct     float64
	TotalTrades    int
	ProfitFactor   float64
}

// BacktestResult is the outcome of one engine + accounting run.
// Failed distinguishes "could not run" from "ran with zero trades".
type BacktestResult struct {
	Metrics
	Trades      []*TradeRecord
	EquityCurve []float64
	Failed      bool
	Error       string
}

// BacktestRun is a persisted backtest result with its parameters.
type BacktestRun struct {
	RunID          string
	Timeframe      string
	Symbols        []string
	Params         StrategyParams
	Metrics        Metrics
	InitialCapital float64
	Commission     float64
	Bars           int
	StartTime      int64
	EndTime        int64
	CreatedAt      int64
}
