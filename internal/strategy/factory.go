// Package strategy turns a strategy file into the parameter sets consumed
// by signal generation, matrix building, backtests and sweeps.
package strategy

import (
	"errors"
	"fmt"
	"time"

	"rabbit-quant/internal/backtest"
	"rabbit-quant/internal/config"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/signal"
	"rabbit-quant/internal/sweep"
)

// Factory errors
var (
	ErrUnknownMacroFilter = errors.New("unknown macro filter")
	ErrMissingConfig      = errors.New("strategy config is nil")
)

// Bundle is every parameter set derived from one strategy file.
type Bundle struct {
	Params   domain.StrategyParams
	Signal   signal.Options
	Matrix   backtest.MatrixOptions
	Backtest backtest.Options
	Grid     sweep.Grid
	Workers  int
}

// FromConfig builds a Bundle from a strategy file.
func FromConfig(cfg *config.Strategy) (*Bundle, error) {
	if cfg == nil {
		return nil, ErrMissingConfig
	}

	params, err := Params(cfg)
	if err != nil {
		return nil, err
	}
	grid, err := Grid(cfg)
	if err != nil {
		return nil, err
	}

	cycle := signal.CycleOptions{
		MinPeriod:      cfg.Cycle.MinPeriod,
		MaxPeriod:      cfg.Cycle.MaxPeriod,
		ProjectionBars: cfg.Cycle.ProjectionBars,
		LowpassCutoff:  cfg.Cycle.LowpassCutoff,
		Filtered:       !cfg.Cycle.Unfiltered,
	}
	minBars := max(cfg.Hurst.MinDataPoints, signal.MinCycleBars)

	return &Bundle{
		Params: params,
		Signal: signal.Options{
			Cycle:           cycle,
			HurstThreshold:  cfg.Hurst.Threshold,
			MinBars:         minBars,
			IndicatorPeriod: cfg.Filters.IndicatorPeriod,
			ZScoreWindow:    cfg.Filters.ZScoreWindow,
			Now:             time.Now,
		},
		Matrix: backtest.MatrixOptions{
			Cycle:            cycle,
			MinBars:          minBars,
			IndicatorPeriod:  cfg.Filters.IndicatorPeriod,
			ZScoreWindow:     cfg.Filters.ZScoreWindow,
			HTFPeriod:        cfg.Filters.HTFMAPeriod,
			MomentumLookback: cfg.Filters.MomentumLookback,
			HurstWindow:      cfg.Hurst.Window,
			Workers:          cfg.Backtest.Workers,
		},
		Backtest: backtest.Options{
			InitialCapital: cfg.Backtest.InitialCapital,
			Commission:     cfg.Backtest.Commission,
		},
		Grid:    grid,
		Workers: max(cfg.Backtest.Workers, 1),
	}, nil
}

// Params maps the strategy file onto the engine parameter tuple.
func Params(cfg *config.Strategy) (domain.StrategyParams, error) {
	filter, err := domain.ParseMacroFilter(cfg.Filters.MacroFilterType)
	if err != nil {
		return domain.StrategyParams{}, fmt.Errorf("%w: %q", ErrUnknownMacroFilter, cfg.Filters.MacroFilterType)
	}

	return domain.StrategyParams{
		HurstThreshold:     cfg.Hurst.Threshold,
		ChopThreshold:      sweep.ChopThreshold(cfg.Hurst.Threshold),
		PhaseLong:          cfg.Filters.PhaseLongCenter,
		PhaseShort:         cfg.Filters.PhaseShortCenter,
		PhaseTolerance:     cfg.Filters.PhaseTolerance,
		TrailingMultiplier: cfg.Risk.TrailingMultiplier,
		BreakevenThreshold: cfg.Risk.BreakevenThreshold,
		MaxConcurrent:      cfg.Risk.MaxConcurrentTrades,
		RiskPerTrade:       cfg.Risk.RiskPerTrade,
		VetoThreshold:      cfg.Filters.VetoThreshold,
		MacroFilter:        filter,
	}, nil
}

// Grid maps the backtest ranges onto a sweep grid.
func Grid(cfg *config.Strategy) (sweep.Grid, error) {
	filters := make([]domain.MacroFilter, 0, len(cfg.Backtest.MacroFilterRange))
	for _, name := range cfg.Backtest.MacroFilterRange {
		f, err := domain.ParseMacroFilter(name)
		if err != nil {
			return sweep.Grid{}, fmt.Errorf("%w: %q", ErrUnknownMacroFilter, name)
		}
		filters = append(filters, f)
	}

	return sweep.Grid{
		HurstThresholds:     cfg.Backtest.HurstRange,
		PhaseLong:           cfg.Backtest.PhaseLongRange,
		PhaseShort:          cfg.Backtest.PhaseShortRange,
		TrailingMultipliers: cfg.Backtest.TrailingMultiplierRange,
		MacroFilters:        filters,
	}, nil
}
