package simulation

import "math"

// MinATRFraction floors ATR at 0.2% of price in stop-distance math.
const MinATRFraction = 0.002

// Sizing converts entry cells into position sizes as a fraction of equity:
//
//	min(1, risk * price / (mult * max(ATR, 0.002 * price)))
//
// Cells without an entry in any of the given grids are 0.
func Sizing(close, atr Grid, riskPerTrade, trailingMult float64, entries ...BoolGrid) Grid {
	if !close.Valid() || !close.SameShape(atr) {
		return Grid{}
	}
	out := NewGrid(close.Rows, close.Cols)
	for k := range out.Data {
		if !anyAt(entries, k) {
			continue
		}
		price := close.Data[k]
		stopDist := trailingMult * math.Max(atr.Data[k], MinATRFraction*price)
		if stopDist <= 0 || math.IsNaN(stopDist) {
			continue
		}
		size := riskPerTrade * price / stopDist
		if math.IsNaN(size) || size < 0 {
			continue
		}
		out.Data[k] = math.Min(1, size)
	}
	return out
}

func anyAt(grids []BoolGrid, k int) bool {
	for _, g := range grids {
		if k < len(g.Data) && g.Data[k] {
			return true
		}
	}
	return false
}

// OpenCounts returns the number of open positions after each bar.
func OpenCounts(s Signals) []int {
	rows, cols := s.LongEntries.Rows, s.LongEntries.Cols
	out := make([]int, rows)
	open := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			k := i*cols + j
			if s.LongExits.Data[k] {
				open--
			}
			if s.ShortExits.Data[k] {
				open--
			}
			if s.LongEntries.Data[k] {
				open++
			}
			if s.ShortEntries.Data[k] {
				open++
			}
		}
		out[i] = open
	}
	return out
}
