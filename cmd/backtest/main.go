// Command backtest runs the multi-asset portfolio backtest on every
// requested timeframe and writes the trade logs and summary.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"rabbit-quant/internal/app"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/orchestrator"
	"rabbit-quant/internal/reporting"
	"rabbit-quant/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframes := flag.String("timeframes", "", "Comma-separated timeframes (default: strategy timeframes)")
	assetType := flag.String("asset-type", "all", "Asset class: crypto, stock, all")
	outputDir := flag.String("output-dir", "", "Directory for CSV exports (default: backtest.output_dir)")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("backtest")
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

	tfs := app.SplitList(*timeframes, env.Strategy.Timeframes)
	dir := *outputDir
	if dir == "" {
		dir = env.Strategy.Backtest.OutputDir
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := env.OpenStores(ctx, storeFlags, tfs)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	orch := orchestrator.New(orchestrator.Options{
		Provider:   stores.OHLCV,
		RunStore:   stores.Runs,
		TradeStore: stores.Trades,
		Bundle:     bundle,
		Symbols:    symbols,
		OutputDir:  dir,
		Logger:     logger,
		Metrics:    observability.DefaultMetrics,
	})

	logger.Info("running bulk backtest",
		zap.Strings("timeframes", tfs),
		zap.Int("symbols", len(symbols)),
		zap.String("asset_type", *assetType))

	result, err := orch.RunBulk(ctx, tfs)
	if err != nil {
		logger.Fatal("bulk backtest failed", zap.Error(err))
	}

	printLeaderboard(result)
}

func printLeaderboard(result *orchestrator.RunResult) {
	fmt.Println()
	fmt.Println("=== Leaderboard (by Sharpe) ===")
	if len(result.Leaderboard) == 0 {
		fmt.Println("No timeframe produced a result.")
	}
	for i, row := range result.Leaderboard {
		fmt.Printf("%2d. %-4s sharpe=%-8.4f return=%-8.2f%% maxdd=%-7.2f%% winrate=%-6.2f%% trades=%-5d pf=%.4f\n",
			i+1, row.Timeframe, row.SharpeRatio, row.TotalReturnPct, row.MaxDrawdownPct,
			row.WinRatePct, row.TotalTrades, row.ProfitFactor)
	}

	if best := bestOf(result.Leaderboard); best != nil {
		fmt.Printf("\nBest timeframe: %s (run %s)\n", best.Timeframe, best.RunID)
	}
	if result.SummaryPath != "" {
		fmt.Printf("Summary: %s\n", result.SummaryPath)
	}
	for _, tf := range result.Timeframes {
		if tf.TradeLog != "" {
			fmt.Printf("Trade log (%s): %s\n", tf.Run.Timeframe, tf.TradeLog)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Println("\nErrors:")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}

func bestOf(rows []reporting.LeaderboardRow) *reporting.LeaderboardRow {
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}
