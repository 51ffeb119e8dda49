package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/signal"
	"rabbit-quant/internal/simulation"
)

// MatrixOptions configures per-asset indicator computation.
type MatrixOptions struct {
	Cycle            signal.CycleOptions
	MinBars          int // assets with fewer bars are skipped
	IndicatorPeriod  int // ATR and CHOP
	ZScoreWindow     int
	HTFPeriod        int
	MomentumLookback int
	// HurstWindow selects a rolling Hurst column; 0 broadcasts the
	// full-series exponent to every bar.
	HurstWindow int
	Workers     int
	Logger      *zap.Logger
}

// DefaultMatrixOptions returns the indicator settings of the bulk runner.
func DefaultMatrixOptions() MatrixOptions {
	return MatrixOptions{
		Cycle:            signal.DefaultCycleOptions(),
		MinBars:          signal.MinCycleBars,
		IndicatorPeriod:  14,
		ZScoreWindow:     100,
		HTFPeriod:        200,
		MomentumLookback: 20,
		Workers:          4,
	}
}

// Matrices is an aligned (time x asset) indicator panel ready for Run.
type Matrices struct {
	Inputs     simulation.Inputs
	Symbols    []string // column order, sorted
	Timestamps []int64  // row times, Unix ms
	Timeframe  string
	// Periods holds the dominant cycle period per included symbol.
	Periods map[string]int
	// Skipped maps excluded symbols to the reason.
	Skipped map[string]error
}

type assetColumns struct {
	symbol     string
	timestamps []int64
	close      []float64
	high       []float64
	low        []float64
	atr        []float64
	phase      []float64
	chop       []float64
	htf        []float64
	volZ       []float64
	momentum   []float64
	hurst      []float64
	period     int
}

// BuildMatrices computes indicators for every series in parallel, then
// aligns them on the union of bar times with forward fill. Leading rows
// where any asset has no data yet are dropped. Columns are ordered by
// symbol, which fixes the engine's tie-break order.
//
// Series below MinBars or without a detectable cycle are skipped and
// reported in Matrices.Skipped. An error is returned only when the context
// is cancelled or no asset survives.
func BuildMatrices(ctx context.Context, series []domain.PriceSeries, opts MatrixOptions) (*Matrices, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	out := &Matrices{Periods: make(map[string]int), Skipped: make(map[string]error)}
	cols := make([]*assetColumns, len(series))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range series {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := computeColumns(&series[i], opts)
			if err != nil {
				logger.Warn("asset skipped",
					zap.String("symbol", series[i].Symbol),
					zap.String("timeframe", series[i].Timeframe),
					zap.Error(err))
				mu.Lock()
				out.Skipped[series[i].Symbol] = err
				mu.Unlock()
				return nil
			}
			cols[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kept := make([]*assetColumns, 0, len(cols))
	for _, c := range cols {
		if c != nil {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return out, fmt.Errorf("no asset passed indicator computation: %w", signal.ErrInsufficientData)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].symbol < kept[j].symbol })
	if len(series) > 0 {
		out.Timeframe = series[0].Timeframe
	}

	stamps := make([][]int64, len(kept))
	for j, c := range kept {
		stamps[j] = c.timestamps
	}
	axis := market.UnionAxis(stamps)
	if len(axis) == 0 {
		return out, fmt.Errorf("no common bars across assets: %w", signal.ErrInsufficientData)
	}

	rows, n := len(axis), len(kept)
	in := simulation.Inputs{
		Close:    simulation.NewGrid(rows, n),
		High:     simulation.NewGrid(rows, n),
		Low:      simulation.NewGrid(rows, n),
		ATR:      simulation.NewGrid(rows, n),
		Phase:    simulation.NewGrid(rows, n),
		Chop:     simulation.NewGrid(rows, n),
		HTF:      simulation.NewGrid(rows, n),
		VolZ:     simulation.NewGrid(rows, n),
		Momentum: simulation.NewGrid(rows, n),
		Hurst:    simulation.NewGrid(rows, n),
	}
	for j, c := range kept {
		out.Symbols = append(out.Symbols, c.symbol)
		out.Periods[c.symbol] = c.period
		for i, src := range market.FillIndex(c.timestamps, axis) {
			in.Close.Set(i, j, c.close[src])
			in.High.Set(i, j, c.high[src])
			in.Low.Set(i, j, c.low[src])
			in.ATR.Set(i, j, c.atr[src])
			in.Phase.Set(i, j, c.phase[src])
			in.Chop.Set(i, j, c.chop[src])
			in.HTF.Set(i, j, c.htf[src])
			in.VolZ.Set(i, j, c.volZ[src])
			in.Momentum.Set(i, j, c.momentum[src])
			in.Hurst.Set(i, j, c.hurst[src])
		}
	}
	out.Inputs = in
	out.Timestamps = axis
	return out, nil
}

func computeColumns(s *domain.PriceSeries, opts MatrixOptions) (*assetColumns, error) {
	minBars := max(opts.MinBars, signal.MinCycleBars)
	if s.Len() < minBars {
		return nil, fmt.Errorf("%d bars, need %d: %w", s.Len(), minBars, signal.ErrInsufficientData)
	}

	closes, highs, lows := s.Closes(), s.Highs(), s.Lows()

	cycle, err := signal.DetectCycle(closes, opts.Cycle)
	if err != nil {
		return nil, fmt.Errorf("cycle: %w", err)
	}
	if cycle.Degenerate() {
		return nil, fmt.Errorf("cycle: no dominant period in band: %w", signal.ErrDegenerate)
	}

	var hurst []float64
	if opts.HurstWindow > 0 {
		hurst = signal.RollingHurst(closes, opts.HurstWindow)
	} else {
		h, _ := signal.Hurst(closes)
		hurst = make([]float64, len(closes))
		for i := range hurst {
			hurst[i] = h
		}
	}

	atr := signal.ATR(highs, lows, closes, opts.IndicatorPeriod)
	return &assetColumns{
		symbol:     s.Symbol,
		timestamps: s.Timestamps(),
		close:      closes,
		high:       highs,
		low:        lows,
		atr:        atr,
		phase:      cycle.Phase,
		chop:       signal.Chop(highs, lows, closes, opts.IndicatorPeriod),
		htf:        signal.HTFTrend(closes, opts.HTFPeriod),
		volZ:       signal.ATRZScore(atr, opts.ZScoreWindow),
		momentum:   signal.Momentum(closes, atr, opts.MomentumLookback),
		hurst:      hurst,
		period:     cycle.DominantPeriod,
	}, nil
}
