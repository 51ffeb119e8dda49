// Command sweep evaluates the strategy parameter grid on one timeframe and
// optionally writes the best combination back to the strategy file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/app"
	"rabbit-quant/internal/config"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/orchestrator"
	"rabbit-quant/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframe := flag.String("timeframe", "1d", "Timeframe to sweep")
	assetType := flag.String("asset-type", "all", "Asset class: crypto, stock, all")
	topN := flag.Int("top", 3, "Number of best combinations to print")
	apply := flag.Bool("apply", false, "Write the recommended parameters back to the strategy file")
	outputDir := flag.String("output-dir", "", "Directory for CSV exports (default: backtest.output_dir)")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("sweep")
	defer logger.Sync()

	symbols, err := env.Strategy.Assets.Select(*assetType)
	if err != nil {
		logger.Fatal("invalid --asset-type", zap.Error(err))
	}
	if len(symbols) == 0 {
		logger.Fatal("no symbols configured", zap.String("asset_type", *assetType))
	}

	bundle, err := strategy.FromConfig(env.Strategy)
	if err != nil {
		logger.Fatal("build strategy", zap.Error(err))
	}

	dir := *outputDir
	if dir == "" {
		dir = env.Strategy.Backtest.OutputDir
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := env.OpenStores(ctx, storeFlags, []string{*timeframe})
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	orch := orchestrator.New(orchestrator.Options{
		Provider:   stores.OHLCV,
		SweepStore: stores.Sweeps,
		Bundle:     bundle,
		Symbols:    symbols,
		OutputDir:  dir,
		Logger:     logger,
		Metrics:    observability.DefaultMetrics,
	})

	outcome, err := orch.RunSweep(ctx, *timeframe, *topN, func(total int) {
		fmt.Printf("Sweeping %d parameter combinations on %s (%d symbols, %d workers)\n",
			total, *timeframe, len(symbols), bundle.Workers)
	})
	if errors.Is(err, context.Canceled) {
		logger.Warn("sweep interrupted, partial results kept")
	} else if err != nil {
		logger.Fatal("sweep failed", zap.Error(err))
	}
	if outcome == nil || outcome.Result == nil {
		return
	}

	printOutcome(outcome)

	if *apply {
		if outcome.Recommendation == nil {
			logger.Warn("no combination produced trades, strategy file left unchanged")
			return
		}
		path := *configPath
		if path == "" {
			path = env.Settings.StrategyFile
		}
		if err := config.ApplyRecommendation(path, outcome.Recommendation); err != nil {
			logger.Fatal("apply recommendation", zap.Error(err))
		}
		logger.Info("recommended parameters written", zap.String("path", path))
	}
}

func printOutcome(o *orchestrator.SweepOutcome) {
	res := o.Result
	fmt.Println()
	fmt.Printf("=== Sweep %s (%s) ===\n", res.SweepID, o.Timeframe)
	fmt.Printf("Combinations: %d total, %d completed, %d failed, %s elapsed\n",
		res.Total, len(res.Rows), res.Failed, res.Elapsed.Round(time.Millisecond))
	if o.CSVPath != "" {
		fmt.Printf("Results: %s\n", o.CSVPath)
	}

	fmt.Println()
	if len(o.Best) == 0 {
		fmt.Println("No combination produced trades.")
		return
	}
	fmt.Println("Top combinations by Sharpe:")
	for i, row := range o.Best {
		printRow(i+1, row)
	}

	if rec := o.Recommendation; rec != nil {
		fmt.Println()
		fmt.Println("Recommended parameters:")
		fmt.Printf("  hurst_threshold:         %.4f\n", rec.HurstThreshold)
		fmt.Printf("  phase_long_center:       %.4f\n", rec.PhaseLong)
		fmt.Printf("  phase_short_center:      %.4f\n", rec.PhaseShort)
		fmt.Printf("  trailing_atr_multiplier: %.2f\n", rec.TrailingMultiplier)
		fmt.Printf("  macro_filter_type:       %s\n", rec.MacroFilter)
	}
}

func printRow(rank int, r *domain.SweepRow) {
	fmt.Printf("%2d. hurst=%.2f chop=%.2f phase_long=%.3f phase_short=%.3f trail=%.2f filter=%-5s | sharpe=%.4f return=%.2f%% maxdd=%.2f%% trades=%d\n",
		rank, r.HurstThreshold, r.ChopThreshold, r.PhaseLong, r.PhaseShort, r.TrailingMultiplier, r.MacroFilter,
		r.SharpeRatio, r.TotalReturnPct, r.MaxDrawdownPct, r.TotalTrades)
}
