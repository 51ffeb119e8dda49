package domain

// Bar is one OHLCV candle for a (symbol, timeframe).
// Timestamp is the bar open time in Unix ms.
type Bar struct {
	Symbol    string
	Timeframe string
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// PriceSeries is an ordered-by-time sequence of bars for one (symbol, timeframe).
// Immutable once fetched.
type PriceSeries struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes returns the close projection.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Close
	}
	return out
}

// Highs returns the high projection.
func (s *PriceSeries) Highs() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].High
	}
	return out
}

// Lows returns the low projection.
func (s *PriceSeries) Lows() []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Low
	}
	return out
}

// Timestamps returns bar open times in Unix ms.
func (s *PriceSeries) Timestamps() []int64 {
	out := make([]int64, s.Len())
	for i := range out {
		out[i] = s.Bars[i].Timestamp
	}
	return out
}

// Last returns the most recent bar, or nil for an empty series.
func (s *PriceSeries) Last() *Bar {
	if s.Len() == 0 {
		return nil
	}
	return &s.Bars[len(s.Bars)-1]
}
