package orchestrator

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/backtest"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/reporting"
)

// SummaryFile is the leaderboard export of a bulk run.
const SummaryFile = "summary_bulk.csv"

// TimeframeResult is one portfolio backtest of a bulk run.
type TimeframeResult struct {
	Run      *domain.BacktestRun
	Trades   []*domain.TradeRecord
	Skipped  map[string]error // symbol -> reason it was left out
	TradeLog string           // path of the exported trade log, if any
}

// RunResult contains results from a bulk run.
type RunResult struct {
	Timeframes []*TimeframeResult
	// Leaderboard is sorted by Sharpe ratio DESC, then timeframe.
	Leaderboard []reporting.LeaderboardRow
	SummaryPath string
	Errors      []string
}

// TradeLogFile returns the trade log export name for a timeframe.
func TradeLogFile(timeframe string) string {
	return fmt.Sprintf("trades_PORTFOLIO_%s.csv", timeframe)
}

// RunBulk runs one portfolio backtest per timeframe over all configured
// symbols. A failing timeframe is recorded in Errors and the others
// continue; only context cancellation aborts the run.
func (o *Orchestrator) RunBulk(ctx context.Context, timeframes []string) (*RunResult, error) {
	result := &RunResult{}

	for _, tf := range timeframes {
		o.logger.Info("backtesting timeframe", zap.String("timeframe", tf), zap.Int("symbols", len(o.symbols)))

		tr, err := o.runTimeframe(ctx, tf)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			o.logger.Error("timeframe failed", zap.String("timeframe", tf), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", tf, err))
			continue
		}

		result.Timeframes = append(result.Timeframes, tr)
		result.Leaderboard = append(result.Leaderboard, reporting.RowFromRun(tr.Run))
		o.logger.Info("timeframe complete",
			zap.String("timeframe", tf),
			zap.String("run_id", tr.Run.RunID),
			zap.Int("assets", len(tr.Run.Symbols)),
			zap.Int("trades", tr.Run.Metrics.TotalTrades),
			zap.Float64("sharpe", tr.Run.Metrics.SharpeRatio),
		)
	}

	sortLeaderboard(result.Leaderboard)

	path, err := o.export(SummaryFile, func(w io.Writer) error {
		return reporting.WriteLeaderboard(w, result.Leaderboard)
	})
	if err != nil {
		return result, fmt.Errorf("export summary: %w", err)
	}
	result.SummaryPath = path
	return result, nil
}

// runTimeframe backtests one timeframe, persists the run and its trades,
// and exports the trade log.
func (o *Orchestrator) runTimeframe(ctx context.Context, timeframe string) (*TimeframeResult, error) {
	m, err := o.build(ctx, timeframe)
	if err != nil {
		return nil, err
	}

	runID := o.newRunID()
	opts := o.backtestOptions(m, timeframe)
	opts.RunID = runID

	start := time.Now()
	res, err := backtest.Run(ctx, m.Inputs, o.bundle.Params, opts)
	o.metrics.RecordBacktest(timeframe, err == nil, time.Since(start).Seconds(), len(res.Trades))
	if err != nil {
		return nil, err
	}

	run := &domain.BacktestRun{
		RunID:          runID,
		Timeframe:      timeframe,
		Symbols:        m.Symbols,
		Params:         o.bundle.Params,
		Metrics:        res.Metrics,
		InitialCapital: opts.InitialCapital,
		Commission:     opts.Commission,
		Bars:           len(m.Timestamps),
		StartTime:      m.Timestamps[0],
		EndTime:        m.Timestamps[len(m.Timestamps)-1],
		CreatedAt:      o.now().UnixMilli(),
	}
	if run.InitialCapital == 0 {
		run.InitialCapital = backtest.DefaultInitialCapital
	}

	if o.runStore != nil {
		if err := o.runStore.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("store run: %w", err)
		}
	}
	if o.tradeStore != nil && len(res.Trades) > 0 {
		if err := o.tradeStore.InsertBulk(ctx, res.Trades); err != nil {
			return nil, fmt.Errorf("store trades: %w", err)
		}
	}

	path, err := o.export(TradeLogFile(timeframe), func(w io.Writer) error {
		return reporting.WriteTradeLog(w, res.Trades)
	})
	if err != nil {
		return nil, fmt.Errorf("export trades: %w", err)
	}

	return &TimeframeResult{Run: run, Trades: res.Trades, Skipped: m.Skipped, TradeLog: path}, nil
}
