package orchestrator

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/reporting"
	"rabbit-quant/internal/sweep"
)

// SweepFile returns the sweep export name for a timeframe.
func SweepFile(timeframe string) string {
	return fmt.Sprintf("sweep_%s.csv", timeframe)
}

// SweepOutcome is the result of RunSweep.
type SweepOutcome struct {
	Timeframe string
	Result    *sweep.Result
	// Best holds the top combinations by Sharpe, zero-trade rows excluded.
	Best []*domain.SweepRow
	// Recommendation is nil when no combination traded.
	Recommendation *domain.Recommendation
	CSVPath        string
}

// RunSweep evaluates the configured parameter grid on one timeframe.
// onTotal, when non-nil, receives the combination count before any
// combination runs. On cancellation the finished rows are still
// persisted and exported, and ctx.Err() is returned with the outcome.
func (o *Orchestrator) RunSweep(ctx context.Context, timeframe string, topN int, onTotal func(int)) (*SweepOutcome, error) {
	m, err := o.build(ctx, timeframe)
	if err != nil {
		return nil, err
	}

	grid := o.bundle.Grid
	if onTotal != nil {
		onTotal(grid.Count())
	}

	driver := &sweep.Driver{Workers: o.bundle.Workers, Logger: o.logger, Metrics: o.metrics}
	sweepID := o.newRunID()
	res, runErr := driver.Run(ctx, sweepID, m.Inputs, o.bundle.Params, grid, o.backtestOptions(m, timeframe))

	out := &SweepOutcome{Timeframe: timeframe, Result: res}
	if res == nil {
		return out, runErr
	}

	// Persistence and export use a fresh context so partial rows survive
	// cancellation.
	saveCtx := context.WithoutCancel(ctx)
	if o.sweepStore != nil && len(res.Rows) > 0 {
		if err := o.sweepStore.InsertBulk(saveCtx, res.Rows); err != nil {
			return out, fmt.Errorf("store sweep rows: %w", err)
		}
	}

	path, err := o.export(SweepFile(timeframe), func(w io.Writer) error {
		return reporting.WriteSweep(w, res.Rows)
	})
	if err != nil {
		return out, fmt.Errorf("export sweep: %w", err)
	}
	out.CSVPath = path

	out.Best = sweep.FindBest(res.Rows, topN)
	if rec, ok := sweep.Recommend(res.Rows); ok {
		out.Recommendation = rec
	}

	o.logger.Info("sweep complete",
		zap.String("sweep_id", sweepID),
		zap.String("timeframe", timeframe),
		zap.Int("total", res.Total),
		zap.Int("completed", len(res.Rows)),
		zap.Int("failed", res.Failed),
	)
	return out, runErr
}
