package market

import "sort"

// UnionAxis returns the sorted union of several bar-time columns, starting at
// the first time every column has a bar. Empty input or any empty column
// yields nil.
func UnionAxis(columns [][]int64) []int64 {
	if len(columns) == 0 {
		return nil
	}
	seen := make(map[int64]struct{})
	var start int64
	for k, ts := range columns {
		if len(ts) == 0 {
			return nil
		}
		for _, t := range ts {
			seen[t] = struct{}{}
		}
		if k == 0 || ts[0] > start {
			start = ts[0]
		}
	}

	axis := make([]int64, 0, len(seen))
	for t := range seen {
		if t >= start {
			axis = append(axis, t)
		}
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i] < axis[j] })
	return axis
}

// FillIndex maps every axis time to the index of the latest source bar at
// or before it, which forward-fills gaps. ts must be sorted and must not
// start after axis[0].
func FillIndex(ts, axis []int64) []int {
	out := make([]int, len(axis))
	j := 0
	for i, t := range axis {
		for j+1 < len(ts) && ts[j+1] <= t {
			j++
		}
		out[i] = j
	}
	return out
}
