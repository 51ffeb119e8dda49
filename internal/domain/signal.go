package domain

// Direction is the directional output of the signal combiner.
type Direction string

// Direction values.
const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// SignalRecord is the per-(symbol, timeframe, bar) signal snapshot.
type SignalRecord struct {
	Symbol         string
	Timeframe      string
	Timestamp      int64 // bar the signal was computed on (Unix ms)
	DominantPeriod int
	CurrentPhase   float64 // radians in [0, 2π)
	Hurst          float64 // [0, 1]; 0.5 also means "no measurement"
	Signal         Direction
	Amplitude      float64
	Price          float64 // close of the signal bar
	ATR            float64
	ATRZScore      float64
	Chop           float64
	Projection     []float64
	ComputedAt     int64
}
