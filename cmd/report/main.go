// Command report renders the leaderboard of stored backtest runs to
// Markdown and CSV.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"rabbit-quant/internal/app"
	"rabbit-quant/internal/reporting"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframe := flag.String("timeframe", "", "Only include runs on this timeframe")
	outputDir := flag.String("output-dir", "", "Output directory (default: backtest.output_dir)")
	stdout := flag.Bool("stdout", false, "Print the Markdown report instead of writing files")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("report")
	defer logger.Sync()

	dir := *outputDir
	if dir == "" {
		dir = env.Strategy.Backtest.OutputDir
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	// Runs are read back, never computed here
	stores, err := env.OpenStores(ctx, storeFlags, nil)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	gen := reporting.NewGenerator(stores.Runs, stores.Trades)
	report, err := gen.Generate(ctx, *timeframe)
	if err != nil {
		logger.Fatal("generate report", zap.Error(err))
	}

	if *stdout {
		fmt.Print(reporting.RenderMarkdown(report))
		return
	}

	paths, err := reporting.Save(dir, report)
	if err != nil {
		logger.Fatal("save report", zap.Error(err))
	}
	for _, p := range paths {
		logger.Info("report written", zap.String("path", p))
	}
	if best := report.Best(); best != nil {
		logger.Info("best run",
			zap.String("run_id", best.RunID),
			zap.String("timeframe", best.Timeframe),
			zap.Float64("sharpe", best.SharpeRatio))
	}
}
