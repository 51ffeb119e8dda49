package domain

// TradeRecord is one closed trade of a backtest run.
type TradeRecord struct {
	TradeID    string // deterministic hash
	RunID      string
	Symbol     string
	Direction  Direction
	EntryTime  int64 // Unix ms
	ExitTime   int64 // Unix ms
	Size       float64
	EntryPrice float64
	EntryValue float64 // size * entry price
	ExitPrice  float64
	PnL        float64 // net of commission
	ReturnPct  float64 // PnL / entry value * 100
	Fees       float64
}

// IsWin reports whether the trade closed with positive PnL.
func (t *TradeRecord) IsWin() bool {
	return t.PnL > 0
}
