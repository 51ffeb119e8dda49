// Command ingest backfills historical crypto klines from the exchange REST
// API and, with --stream, keeps the OHLCV store current from the kline
// websocket.
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
	"rabbit-quant/internal/ingestion"
	"rabbit-quant/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframes := flag.String("timeframes", "", "Comma-separated timeframes (default: strategy timeframes)")
	symbolsFlag := flag.String("symbols", "", "Comma-separated symbols (default: assets.crypto.symbols)")
	restURL := flag.String("rest-url", "", "Exchange REST base URL (default $EXCHANGE_REST_URL)")
	wsURL := flag.String("ws-url", "", "Exchange websocket URL (default $EXCHANGE_WS_URL)")
	lookback := flag.Int("lookback", 1000, "Bars to fetch for a symbol with no stored history")
	skipBackfill := flag.Bool("skip-backfill", false, "Do not backfill before streaming")
	stream := flag.Bool("stream", false, "Stream closed klines after the backfill")
	flushSize := flag.Int("flush-size", 100, "Streamed bars buffered before a store write")
	flushInterval := flag.Duration("flush-interval", 5*time.Second, "Maximum delay before buffered bars are written")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("ingest")
	defer logger.Sync()

	// Only crypto pairs are available from the exchange
	symbols := app.SplitList(*symbolsFlag, env.Strategy.Assets.Crypto.Symbols)
	if len(symbols) == 0 {
		logger.Fatal("no crypto symbols configured, use --symbols or assets.crypto.symbols")
	}
	tfs := app.SplitList(*timeframes, env.Strategy.Timeframes)

	rest := *restURL
	if rest == "" {
		rest = env.Settings.Exchange.RESTURL
	}
	ws := *wsURL
	if ws == "" {
		ws = env.Settings.Exchange.WSURL
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := env.OpenStores(ctx, storeFlags, nil)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	if !*skipBackfill {
		client := ingestion.NewRESTClient(rest)
		backfiller := ingestion.NewBackfiller(ingestion.BackfillOptions{
			Source:   client,
			Store:    stores.OHLCV,
			Lookback: *lookback,
			Logger:   logger,
		})
		if err := backfill(ctx, backfiller, symbols, tfs, logger); err != nil {
			logger.Fatal("backfill aborted", zap.Error(err))
		}
	}

	if !*stream {
		return
	}

	subs := make([]ingestion.Subscription, 0, len(symbols)*len(tfs))
	for _, sym := range symbols {
		for _, tf := range tfs {
			subs = append(subs, ingestion.Subscription{Symbol: sym, Timeframe: tf})
		}
	}

	klines, err := ingestion.NewKlineStream(ws, subs, nil, logger)
	if err != nil {
		logger.Fatal("create kline stream", zap.Error(err))
	}

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        klines,
		Store:         stores.OHLCV,
		FlushSize:     *flushSize,
		FlushInterval: *flushInterval,
		Logger:        logger,
		Metrics:       observability.DefaultMetrics,
	})

	logger.Info("streaming klines", zap.String("endpoint", ws), zap.Strings("streams", klines.Streams()))
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("ingestion failed", zap.Error(err))
	}
	logger.Info("ingestion stopped")
}

// backfill loads every symbol/timeframe pair. A failing pair is logged and
// skipped; only cancellation stops the loop.
func backfill(ctx context.Context, b *ingestion.Backfiller, symbols, timeframes []string, logger *zap.Logger) error {
	var total, failed int
	for _, sym := range symbols {
		for _, tf := range timeframes {
			res, err := b.Backfill(ctx, sym, tf)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				logger.Error("backfill failed", zap.String("symbol", sym), zap.String("timeframe", tf), zap.Error(err))
				continue
			}
			total += res.Inserted
		}
	}
	logger.Info("backfill complete", zap.Int("inserted", total), zap.Int("failed_pairs", failed))
	return nil
}
