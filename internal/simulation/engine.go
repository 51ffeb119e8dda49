// Package simulation implements the bar-by-bar portfolio signal engine.
//
// The engine walks a (time x asset) panel of precomputed indicators and
// emits entry and exit matrices for long and short positions under a shared
// open-trade budget. It performs no I/O and keeps all per-asset state in
// flat, pre-sized arrays indexed by asset column.
package simulation

import (
	"math"
	"slices"

	"rabbit-quant/internal/domain"
)

// Breakeven stop levels relative to entry, covering a round-trip fee.
const (
	breakevenLong  = 1.002
	breakevenShort = 0.998
)

const (
	stateFlat int8 = iota
	stateLong
	stateShort
)

// Inputs are the indicator matrices consumed by Simulate. Every grid must
// have the same shape.
type Inputs struct {
	Close    Grid
	High     Grid
	Low      Grid
	ATR      Grid
	Phase    Grid // radians; wrapped into [0, 2π) before use
	Chop     Grid
	HTF      Grid // higher-timeframe direction, -1/0/+1
	VolZ     Grid // ATR z-score
	Momentum Grid // ATR-normalised momentum, ranking score
	Hurst    Grid
}

// Shape returns the common (rows, cols) of the inputs and whether all
// grids agree on it.
func (in Inputs) Shape() (rows, cols int, ok bool) {
	if !in.Close.Valid() {
		return 0, 0, false
	}
	for _, g := range []Grid{in.High, in.Low, in.ATR, in.Phase, in.Chop, in.HTF, in.VolZ, in.Momentum, in.Hurst} {
		if !in.Close.SameShape(g) {
			return in.Close.Rows, in.Close.Cols, false
		}
	}
	return in.Close.Rows, in.Close.Cols, true
}

// Signals are the engine outputs, one cell per (bar, asset).
type Signals struct {
	LongEntries  BoolGrid
	LongExits    BoolGrid
	ShortEntries BoolGrid
	ShortExits   BoolGrid
}

func newSignals(rows, cols int) Signals {
	return Signals{
		LongEntries:  NewBoolGrid(rows, cols),
		LongExits:    NewBoolGrid(rows, cols),
		ShortEntries: NewBoolGrid(rows, cols),
		ShortExits:   NewBoolGrid(rows, cols),
	}
}

type candidate struct {
	col   int
	short bool
	score float64
}

// engine holds per-asset state for one run.
type engine struct {
	state     []int8
	entry     []float64
	highest   []float64
	lowest    []float64
	stop      []float64
	breakeven []bool
	exited    []bool
	cands     []candidate
}

func newEngine(cols int) *engine {
	return &engine{
		state:     make([]int8, cols),
		entry:     make([]float64, cols),
		highest:   make([]float64, cols),
		lowest:    make([]float64, cols),
		stop:      make([]float64, cols),
		breakeven: make([]bool, cols),
		exited:    make([]bool, cols),
		cands:     make([]candidate, 0, cols),
	}
}

// Simulate runs the engine over the inputs with the given parameters.
//
// Each bar is processed in two phases: exits for open positions first
// (trailing stop with breakeven ratchet), then entries for flat assets
// while the open-trade budget has room. Entries are edge-triggered on the
// phase entering a zone and ranked by momentum (negated for shorts);
// equal scores are admitted in ascending column order.
//
// Malformed inputs yield all-false matrices.
func Simulate(in Inputs, p domain.StrategyParams) Signals {
	rows, cols, ok := in.Shape()
	if !ok {
		if in.Close.Valid() {
			return newSignals(in.Close.Rows, in.Close.Cols)
		}
		return newSignals(0, 0)
	}

	out := newSignals(rows, cols)
	e := newEngine(cols)
	open := 0

	for i := 1; i < rows; i++ {
		base := i * cols
		open -= e.exits(in, p, out, base)
		if open < p.MaxConcurrent {
			open += e.entries(in, p, out, base, open)
		}
	}
	return out
}

// exits processes every open position for the bar at offset base and
// returns the number of positions closed.
func (e *engine) exits(in Inputs, p domain.StrategyParams, out Signals, base int) int {
	closed := 0
	for j := range e.state {
		e.exited[j] = false
		k := base + j
		c, atr := in.Close.Data[k], in.ATR.Data[k]

		switch e.state[j] {
		case stateLong:
			h := in.High.Data[k]
			if h > e.highest[j] {
				e.highest[j] = h
			}
			if trail := e.highest[j] - p.TrailingMultiplier*atr; trail > e.stop[j] {
				e.stop[j] = trail
			}
			if !e.breakeven[j] && h >= e.entry[j]+p.BreakevenThreshold*atr {
				if be := e.entry[j] * breakevenLong; be > e.stop[j] {
					e.stop[j] = be
				}
				e.breakeven[j] = true
			}
			if c <= e.stop[j] {
				out.LongExits.Data[k] = true
				e.state[j] = stateFlat
				e.exited[j] = true
				closed++
			}

		case stateShort:
			l := in.Low.Data[k]
			if l < e.lowest[j] {
				e.lowest[j] = l
			}
			if trail := e.lowest[j] + p.TrailingMultiplier*atr; trail < e.stop[j] {
				e.stop[j] = trail
			}
			if !e.breakeven[j] && l <= e.entry[j]-p.BreakevenThreshold*atr {
				if be := e.entry[j] * breakevenShort; be < e.stop[j] {
					e.stop[j] = be
				}
				e.breakeven[j] = true
			}
			if c >= e.stop[j] {
				out.ShortExits.Data[k] = true
				e.state[j] = stateFlat
				e.exited[j] = true
				closed++
			}
		}
	}
	return closed
}

// entries ranks eligible flat assets and admits them until the budget is
// full. Returns the number of positions opened.
func (e *engine) entries(in Inputs, p domain.StrategyParams, out Signals, base, open int) int {
	prev := base - len(e.state)
	e.cands = e.cands[:0]

	for j := range e.state {
		if e.state[j] != stateFlat || e.exited[j] {
			continue
		}
		k := base + j
		if in.VolZ.Data[k] >= p.VetoThreshold {
			continue
		}
		if !macroAllows(p, in.Chop.Data[k], in.Hurst.Data[k]) {
			continue
		}

		ph, pph := wrap(in.Phase.Data[k]), wrap(in.Phase.Data[prev+j])
		htf := in.HTF.Data[k]
		score := finite(in.Momentum.Data[k])

		switch {
		case htf >= 0 && risingInto(ph, pph, p.PhaseLong, p.PhaseTolerance):
			e.cands = append(e.cands, candidate{col: j, score: score})
		case htf <= 0 && risingInto(ph, pph, p.PhaseShort, p.PhaseTolerance):
			e.cands = append(e.cands, candidate{col: j, short: true, score: -score})
		}
	}
	if len(e.cands) == 0 {
		return 0
	}

	slices.SortFunc(e.cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return a.col - b.col
		}
	})

	opened := 0
	for _, c := range e.cands {
		if open+opened >= p.MaxConcurrent {
			break
		}
		k := base + c.col
		price, atr := in.Close.Data[k], in.ATR.Data[k]
		e.entry[c.col] = price
		e.highest[c.col] = in.High.Data[k]
		e.lowest[c.col] = in.Low.Data[k]
		e.breakeven[c.col] = false
		if c.short {
			e.state[c.col] = stateShort
			e.stop[c.col] = price + p.TrailingMultiplier*atr
			out.ShortEntries.Data[k] = true
		} else {
			e.state[c.col] = stateLong
			e.stop[c.col] = price - p.TrailingMultiplier*atr
			out.LongEntries.Data[k] = true
		}
		opened++
	}
	return opened
}

func macroAllows(p domain.StrategyParams, chop, hurst float64) bool {
	chopOK := chop < p.ChopThreshold
	hurstOK := hurst >= p.HurstThreshold
	switch p.MacroFilter {
	case domain.MacroFilterChop:
		return chopOK
	case domain.MacroFilterHurst:
		return hurstOK
	default:
		return chopOK && hurstOK
	}
}

// risingInto reports the phase entering the zone on this bar.
func risingInto(phase, prevPhase, center, tol float64) bool {
	return math.Abs(phase-center) < tol && !(math.Abs(prevPhase-center) < tol)
}

func wrap(phase float64) float64 {
	const twoPi = 2 * math.Pi
	p := math.Mod(phase, twoPi)
	if p < 0 {
		p += twoPi
	}
	return p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
