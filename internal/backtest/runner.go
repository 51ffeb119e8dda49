// Package backtest turns engine signals into a sized, costed portfolio and
// summarises its performance.
package backtest

import (
	"context"
	"fmt"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/metrics"
	"rabbit-quant/internal/simulation"
)

// Default accounting settings.
const (
	DefaultInitialCapital = 100_000.0
	DefaultCommission     = 0.001
)

// Options configures a backtest run.
type Options struct {
	InitialCapital float64
	Commission     float64
	Timeframe      string // bar frequency, used to annualise Sharpe
	Timestamps     []int64
	Symbols        []string
	RunID          string
}

func (o Options) withDefaults() Options {
	if o.InitialCapital == 0 {
		o.InitialCapital = DefaultInitialCapital
	}
	return o
}

// Run executes the engine on prepared inputs, sizes the entries, accounts
// for the portfolio and summarises it.
//
// When accounting fails, the returned result has every metric zeroed,
// Failed set and Error populated, and the error is returned as well, so a
// failed run is never mistaken for a run with zero trades.
func Run(ctx context.Context, in simulation.Inputs, p domain.StrategyParams, opts Options) (*domain.BacktestResult, error) {
	if err := ctx.Err(); err != nil {
		return failed(err), err
	}
	opts = opts.withDefaults()

	barsPerYear, err := market.BarsPerYear(opts.Timeframe)
	if err != nil {
		return failed(err), fmt.Errorf("backtest: %w", err)
	}

	sig := simulation.Simulate(in, p)
	size := simulation.Sizing(in.Close, in.ATR, p.RiskPerTrade, p.TrailingMultiplier, sig.LongEntries, sig.ShortEntries)

	ledger, err := Account(in.Close, sig, size, AccountOptions{
		InitialCapital: opts.InitialCapital,
		Commission:     opts.Commission,
		Timestamps:     opts.Timestamps,
		Symbols:        opts.Symbols,
		RunID:          opts.RunID,
	})
	if err != nil {
		return failed(err), fmt.Errorf("backtest: accounting: %w", err)
	}

	return &domain.BacktestResult{
		Metrics:     metrics.Summarize(ledger.Equity, ledger.Trades, barsPerYear),
		Trades:      ledger.Trades,
		EquityCurve: ledger.Equity,
	}, nil
}

func failed(err error) *domain.BacktestResult {
	return &domain.BacktestResult{Failed: true, Error: err.Error()}
}
