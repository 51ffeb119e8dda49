package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rabbit-quant/internal/backtest"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/simulation"
)

// Driver runs sweeps on a bounded worker pool.
type Driver struct {
	Workers int
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Result is the outcome of a sweep. Rows are in combination order; on
// cancellation only finished combinations are present.
type Result struct {
	SweepID string
	Total   int
	Rows    []*domain.SweepRow
	Failed  int
	Elapsed time.Duration
}

// Run evaluates every combination of grid on the shared, read-only inputs.
// Failed combinations become zero-metric rows flagged Failed. When ctx is
// cancelled no new combinations are started and the partial result is
// returned with ctx.Err().
func (d *Driver) Run(ctx context.Context, sweepID string, in simulation.Inputs, base domain.StrategyParams, grid Grid, opts backtest.Options) (*Result, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}

	combos := grid.Combinations(base)
	logger.Info("sweep starting",
		zap.String("sweep_id", sweepID),
		zap.Int("combinations", len(combos)),
		zap.Int("workers", workers))

	start := time.Now()
	rows := make([]*domain.SweepRow, len(combos))
	var mu sync.Mutex
	failed := 0

	g := new(errgroup.Group)
	g.SetLimit(workers)

dispatch:
	for i, p := range combos {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := backtest.Run(ctx, in, p, opts)
			row := newRow(sweepID, i, p)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warn("combination failed", zap.Int("combo", i), zap.Error(err))
				row.Failed = true
				mu.Lock()
				failed++
				mu.Unlock()
			} else {
				row.Metrics = res.Metrics
			}
			rows[i] = row
			if d.Metrics != nil {
				d.Metrics.RecordSweepCombination(!row.Failed)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &Result{SweepID: sweepID, Total: len(combos), Failed: failed, Elapsed: time.Since(start)}
	for _, r := range rows {
		if r != nil {
			out.Rows = append(out.Rows, r)
		}
	}
	logger.Info("sweep finished",
		zap.String("sweep_id", sweepID),
		zap.Int("completed", len(out.Rows)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", out.Elapsed))

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func newRow(sweepID string, index int, p domain.StrategyParams) *domain.SweepRow {
	return &domain.SweepRow{
		SweepID:            sweepID,
		ComboIndex:         index,
		HurstThreshold:     p.HurstThreshold,
		ChopThreshold:      p.ChopThreshold,
		PhaseLong:          p.PhaseLong,
		PhaseShort:         p.PhaseShort,
		TrailingMultiplier: p.TrailingMultiplier,
		MacroFilter:        p.MacroFilter,
	}
}
