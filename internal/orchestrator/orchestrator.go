// Package orchestrator wires price history, the backtest engine, storage
// and exports into the bulk backtest, sweep and signal scan pipelines.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/backtest"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/idhash"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/reporting"
	"rabbit-quant/internal/storage"
	"rabbit-quant/internal/strategy"
)

// ErrNoSeries is returned when none of the configured symbols has bars
// for a timeframe.
var ErrNoSeries = errors.New("no price series available")

// Orchestrator coordinates pipeline execution.
// Flow: price history → matrices → backtest → storage + exports
type Orchestrator struct {
	// Stores
	provider    storage.PriceSeriesProvider
	runStore    storage.BacktestRunStore
	tradeStore  storage.TradeRecordStore
	sweepStore  storage.SweepResultStore
	signalStore storage.SignalStore

	bundle    *strategy.Bundle
	symbols   []string
	outputDir string

	logger   *zap.Logger
	metrics  *observability.Metrics
	newRunID func() string
	now      func() time.Time
}

// Options for creating Orchestrator. Stores other than Provider are
// optional; a nil store skips persistence of that record type.
type Options struct {
	Provider    storage.PriceSeriesProvider
	RunStore    storage.BacktestRunStore
	TradeStore  storage.TradeRecordStore
	SweepStore  storage.SweepResultStore
	SignalStore storage.SignalStore

	Bundle    *strategy.Bundle
	Symbols   []string
	OutputDir string // CSV exports are skipped when empty

	Logger   *zap.Logger
	Metrics  *observability.Metrics
	NewRunID func() string
	Now      func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		provider:    opts.Provider,
		runStore:    opts.RunStore,
		tradeStore:  opts.TradeStore,
		sweepStore:  opts.SweepStore,
		signalStore: opts.SignalStore,
		bundle:      opts.Bundle,
		symbols:     opts.Symbols,
		outputDir:   opts.OutputDir,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		newRunID:    opts.NewRunID,
		now:         opts.Now,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = observability.DefaultMetrics
	}
	if o.newRunID == nil {
		o.newRunID = idhash.NewRunID
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// LoadSeries fetches every configured symbol for timeframe. Symbols
// without data are returned in missing and do not fail the call.
func (o *Orchestrator) LoadSeries(ctx context.Context, timeframe string) ([]domain.PriceSeries, map[string]error, error) {
	missing := make(map[string]error)
	series := make([]domain.PriceSeries, 0, len(o.symbols))

	for _, sym := range o.symbols {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		s, err := o.provider.GetOHLCV(ctx, sym, timeframe)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				missing[sym] = err
				continue
			}
			return nil, nil, fmt.Errorf("load %s/%s: %w", sym, timeframe, err)
		}
		if s.Len() == 0 {
			missing[sym] = storage.ErrNotFound
			continue
		}
		series = append(series, *s)
	}

	if len(series) == 0 {
		return nil, missing, fmt.Errorf("%s: %w", timeframe, ErrNoSeries)
	}
	return series, missing, nil
}

// build loads a timeframe and computes its simulation matrices.
func (o *Orchestrator) build(ctx context.Context, timeframe string) (*backtest.Matrices, error) {
	series, missing, err := o.LoadSeries(ctx, timeframe)
	if err != nil {
		return nil, err
	}
	for sym := range missing {
		o.logger.Warn("symbol has no data", zap.String("symbol", sym), zap.String("timeframe", timeframe))
	}

	mopts := o.bundle.Matrix
	mopts.Logger = o.logger
	return backtest.BuildMatrices(ctx, series, mopts)
}

func (o *Orchestrator) backtestOptions(m *backtest.Matrices, timeframe string) backtest.Options {
	opts := o.bundle.Backtest
	opts.Timeframe = timeframe
	opts.Timestamps = m.Timestamps
	opts.Symbols = m.Symbols
	return opts
}

func (o *Orchestrator) export(name string, write func(io.Writer) error) (string, error) {
	if o.outputDir == "" {
		return "", nil
	}
	return reporting.SaveFile(o.outputDir, name, write)
}

func sortLeaderboard(rows []reporting.LeaderboardRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SharpeRatio != rows[j].SharpeRatio {
			return rows[i].SharpeRatio > rows[j].SharpeRatio
		}
		return rows[i].Timeframe < rows[j].Timeframe
	})
}
