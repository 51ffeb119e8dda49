// Command scan computes the latest cycle signal for every configured
// symbol and timeframe.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/app"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/orchestrator"
	"rabbit-quant/internal/signal"
	"rabbit-quant/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframes := flag.String("timeframes", "", "Comma-separated timeframes (default: strategy timeframes)")
	assetType := flag.String("asset-type", "all", "Asset class: crypto, stock, all")
	persist := flag.Bool("persist", false, "Store new signals")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("scan")
	defer logger.Sync()

	symbols, err := env.Strategy.Assets.Select(*assetType)
	if err != nil {
		logger.Fatal("invalid --asset-type", zap.Error(err))
	}

	bundle, err := strategy.FromConfig(env.Strategy)
	if err != nil {
		logger.Fatal("build strategy", zap.Error(err))
	}
	tfs := app.SplitList(*timeframes, env.Strategy.Timeframes)

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := env.OpenStores(ctx, storeFlags, tfs)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	opts := orchestrator.Options{
		Provider: stores.OHLCV,
		Bundle:   bundle,
		Symbols:  symbols,
		Logger:   logger,
		Metrics:  observability.DefaultMetrics,
	}
	if *persist {
		opts.SignalStore = stores.Signals
	}
	orch := orchestrator.New(opts)

	res, err := orch.Scan(ctx, tfs)
	if err != nil {
		logger.Fatal("scan failed", zap.Error(err))
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(res.Records, "", "  ")
		fmt.Println(string(output))
		return
	}
	printResult(res)
}

func printResult(res *signal.BatchResult) {
	fmt.Println()
	fmt.Printf("%-12s %-4s %-7s %7s %6s %6s %7s %14s %s\n",
		"SYMBOL", "TF", "SIGNAL", "PERIOD", "PHASE", "HURST", "CHOP", "PRICE", "BAR")
	for _, r := range res.Records {
		fmt.Printf("%-12s %-4s %-7s %7d %6.3f %6.3f %7.2f %14.6f %s\n",
			r.Symbol, r.Timeframe, r.Signal, r.DominantPeriod, r.CurrentPhase, r.Hurst, r.Chop, r.Price,
			time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339))
	}

	counts := make(map[domain.Direction]int)
	for _, r := range res.Records {
		counts[r.Signal]++
	}
	fmt.Printf("\n%d signals: %d long, %d short, %d neutral\n",
		len(res.Records), counts[domain.DirectionLong], counts[domain.DirectionShort], counts[domain.DirectionNeutral])

	if len(res.Failed) > 0 {
		keys := make([]string, 0, len(res.Failed))
		for k := range res.Failed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("\nFailed:")
		for _, k := range keys {
			fmt.Printf("  - %s: %v\n", k, res.Failed[k])
		}
	}
}
