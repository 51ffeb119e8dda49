// Package main provides the unified server:
// - API (continuous): signals, runs, health and metrics over HTTP
// - Signal cache (scheduled): rescans all configured pairs
// - Ingestion (optional, continuous): exchange kline websocket
// - Backtest (optional, scheduled): bulk portfolio backtest per timeframe
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rabbit-quant/internal/api"
	"rabbit-quant/internal/app"
	"rabbit-quant/internal/cache"
	"rabbit-quant/internal/ingestion"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/orchestrator"
	"rabbit-quant/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Strategy file (default $STRATEGY_FILE)")
	timeframes := flag.String("timeframes", "", "Comma-separated timeframes (default: strategy timeframes)")
	httpAddr := flag.String("http-addr", "", "API listen address (default $HTTP_ADDR)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (default $METRICS_ADDR)")
	refreshInterval := flag.Duration("refresh-interval", 5*time.Minute, "Signal cache refresh interval")
	cacheTTL := flag.Duration("cache-ttl", 0, "Signal cache entry lifetime (default 2x refresh interval)")
	persistSignals := flag.Bool("persist-signals", true, "Store new signals on every refresh")
	stream := flag.Bool("stream", false, "Ingest closed crypto klines from the exchange websocket")
	backtestInterval := flag.Duration("backtest-interval", 0, "Bulk backtest interval (0 disables)")
	storeFlags := app.RegisterStoreFlags(flag.CommandLine)

	flag.Parse()

	env, err := app.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	logger := env.Logger.Named("server")
	defer logger.Sync()

	bundle, err := strategy.FromConfig(env.Strategy)
	if err != nil {
		logger.Fatal("build strategy", zap.Error(err))
	}
	tfs := app.SplitList(*timeframes, env.Strategy.Timeframes)
	symbols := env.Strategy.Assets.AllSymbols()
	if len(symbols) == 0 {
		logger.Fatal("no symbols configured")
	}

	apiAddr := *httpAddr
	if apiAddr == "" {
		apiAddr = env.Settings.HTTPAddr
	}
	promAddr := *metricsAddr
	if promAddr == "" {
		promAddr = env.Settings.MetricsAddr
	}
	ttl := *cacheTTL
	if ttl <= 0 {
		ttl = 2 * *refreshInterval
	}

	ctx, cancel := app.SignalContext(logger)
	defer cancel()

	stores, err := env.OpenStores(ctx, storeFlags, tfs)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer stores.Close()

	opts := orchestrator.Options{
		Provider:   stores.OHLCV,
		RunStore:   stores.Runs,
		TradeStore: stores.Trades,
		Bundle:     bundle,
		Symbols:    symbols,
		OutputDir:  env.Strategy.Backtest.OutputDir,
		Logger:     logger,
		Metrics:    observability.DefaultMetrics,
	}
	if *persistSignals {
		opts.SignalStore = stores.Signals
	}
	orch := orchestrator.New(opts)

	signals := cache.New(ttl, orch.RefreshFunc(tfs)).WithMetrics(observability.DefaultMetrics)

	srv := api.NewServer(api.Options{
		Cache:   signals,
		Signals: stores.Signals,
		Runs:    stores.Runs,
		Trades:  stores.Trades,
		Logger:  logger.Named("api"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(gctx, &http.Server{Addr: apiAddr, Handler: srv.Router()}, logger)
	})
	g.Go(func() error {
		return serve(gctx, metricsServer(promAddr), logger)
	})

	g.Go(func() error {
		logger.Info("signal cache started",
			zap.Duration("refresh_interval", *refreshInterval),
			zap.Duration("ttl", ttl),
			zap.Strings("timeframes", tfs))
		signals.Run(gctx, *refreshInterval, func(err error) {
			logger.Error("signal refresh failed", zap.Error(err))
		})
		return nil
	})

	if *stream {
		runner, err := newIngestion(env, stores, tfs, logger)
		if err != nil {
			logger.Fatal("create ingestion", zap.Error(err))
		}
		g.Go(func() error {
			if err := runner.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ingestion: %w", err)
			}
			return nil
		})
	}

	if *backtestInterval > 0 {
		g.Go(func() error {
			runBacktests(gctx, orch, tfs, *backtestInterval, logger)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return nil
}

// metricsServer serves health and Prometheus metrics on their own port.
func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

func newIngestion(env *app.Env, stores *app.Stores, timeframes []string, logger *zap.Logger) (*ingestion.Runner, error) {
	var subs []ingestion.Subscription
	for _, sym := range env.Strategy.Assets.Crypto.Symbols {
		for _, tf := range timeframes {
			subs = append(subs, ingestion.Subscription{Symbol: sym, Timeframe: tf})
		}
	}

	klines, err := ingestion.NewKlineStream(env.Settings.Exchange.WSURL, subs, nil, logger.Named("stream"))
	if err != nil {
		return nil, err
	}
	klines.WithMetrics(observability.DefaultMetrics)

	return ingestion.NewRunner(ingestion.RunnerOptions{
		Source:  klines,
		Store:   stores.OHLCV,
		Logger:  logger.Named("ingestion"),
		Metrics: observability.DefaultMetrics,
	}), nil
}

// runBacktests runs the bulk backtest every interval until ctx is cancelled.
func runBacktests(ctx context.Context, orch *orchestrator.Orchestrator, timeframes []string, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		res, err := orch.RunBulk(ctx, timeframes)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("scheduled backtest failed", zap.Error(err))
			continue
		}
		logger.Info("scheduled backtest complete",
			zap.Int("timeframes", len(res.Timeframes)),
			zap.Int("errors", len(res.Errors)),
			zap.Duration("duration", time.Since(start)))
	}
}
