package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rabbit-quant/internal/domain"
)

// Options configures signal generation for one (symbol, timeframe).
type Options struct {
	Cycle           CycleOptions
	HurstThreshold  float64
	MinBars         int // below this no cycle is measured and the record is NEUTRAL
	IndicatorPeriod int // ATR and CHOP period
	ZScoreWindow    int
	Now             func() time.Time
}

// DefaultOptions returns the generation settings used by the scanner.
func DefaultOptions() Options {
	return Options{
		Cycle:           DefaultCycleOptions(),
		HurstThreshold:  0.6,
		MinBars:         MinCycleBars,
		IndicatorPeriod: 14,
		ZScoreWindow:    100,
		Now:             time.Now,
	}
}

// Generate computes the latest signal record for a price series. Series
// too short for cycle detection still yield a record: period and phase are
// zero, Hurst is measured when possible and the signal is NEUTRAL. Only a
// nil or empty series is an error.
func Generate(series *domain.PriceSeries, opts Options) (*domain.SignalRecord, error) {
	if series == nil {
		return nil, fmt.Errorf("generate: nil series: %w", ErrInsufficientData)
	}
	n := series.Len()
	if n == 0 {
		return nil, fmt.Errorf("generate %s/%s: no bars: %w", series.Symbol, series.Timeframe, ErrInsufficientData)
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	var cycle *CycleResult
	if n < max(opts.MinBars, MinCycleBars) {
		cycle = degenerateCycle(n, max(opts.Cycle.ProjectionBars, 0))
	} else {
		var err error
		cycle, err = DetectCycle(closes, opts.Cycle)
		if err != nil {
			return nil, fmt.Errorf("generate %s/%s: cycle: %w", series.Symbol, series.Timeframe, err)
		}
	}

	// Degenerate Hurst input is reported as the neutral value.
	hurst, _ := Hurst(closes)

	period := opts.IndicatorPeriod
	if period <= 0 {
		period = 14
	}
	atr := ATR(highs, lows, closes, period)
	chop := Chop(highs, lows, closes, period)
	z := ATRZScore(atr, opts.ZScoreWindow)

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	last := series.Last()
	rec := &domain.SignalRecord{
		Symbol:         series.Symbol,
		Timeframe:      series.Timeframe,
		Timestamp:      last.Timestamp,
		DominantPeriod: cycle.DominantPeriod,
		CurrentPhase:   cycle.CurrentPhase,
		Hurst:          hurst,
		Signal:         domain.DirectionNeutral,
		Amplitude:      cycle.Amplitude,
		Price:          last.Close,
		ATR:            atr[n-1],
		ATRZScore:      z[n-1],
		Chop:           chop[n-1],
		Projection:     cycle.Projection,
		ComputedAt:     now().UnixMilli(),
	}
	if !cycle.Degenerate() {
		rec.Signal = Combine(cycle.CurrentPhase, hurst, opts.HurstThreshold)
	}
	return rec, nil
}

// BatchResult holds the output of GenerateBatch.
type BatchResult struct {
	// Records are in input order; failed pairs are omitted.
	Records []domain.SignalRecord
	// Failed maps "SYMBOL/timeframe" to the generation error.
	Failed map[string]error
}

// GenerateBatch runs Generate over every series with at most workers
// goroutines. A failing pair never stops the others. The only error
// returned is ctx.Err() when the context is cancelled.
func GenerateBatch(ctx context.Context, series []domain.PriceSeries, opts Options, workers int) (*BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}

	records := make([]*domain.SignalRecord, len(series))
	res := &BatchResult{Failed: make(map[string]error)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range series {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := Generate(&series[i], opts)
			if err != nil {
				mu.Lock()
				res.Failed[series[i].Symbol+"/"+series[i].Timeframe] = err
				mu.Unlock()
				return nil
			}
			records[i] = rec
			return nil
		})
	}

	err := g.Wait()
	for _, rec := range records {
		if rec != nil {
			res.Records = append(res.Records, *rec)
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return res, err
}
