// Package app holds the start-up plumbing shared by the binaries: config
// loading, logger, signal handling and store selection.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rabbit-quant/internal/config"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
	chstore "rabbit-quant/internal/storage/clickhouse"
	"rabbit-quant/internal/storage/memory"
	"rabbit-quant/internal/storage/migrations"
	pgstore "rabbit-quant/internal/storage/postgres"
)

// ErrMissingDSN is returned when persistent storage is requested without
// a connection string.
var ErrMissingDSN = errors.New("missing DSN")

// Env is the loaded configuration of a binary.
type Env struct {
	Settings *config.Settings
	Strategy *config.Strategy
	Logger   *zap.Logger
}

// Load reads settings (environment plus optional .env) and the strategy
// file, then builds the logger. strategyPath overrides Settings.StrategyFile
// when non-empty.
func Load(strategyPath string) (*Env, error) {
	settings, err := config.LoadSettings(".env")
	if err != nil {
		return nil, err
	}
	if strategyPath == "" {
		strategyPath = settings.StrategyFile
	}

	strat, err := config.LoadStrategy(strategyPath)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(settings.LogLevel, settings.LogFormat)
	if err != nil {
		return nil, err
	}
	return &Env{Settings: settings, Strategy: strat, Logger: logger}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// Stores bundles every store a binary may need.
type Stores struct {
	OHLCV   storage.OHLCVStore
	Signals storage.SignalStore
	Runs    storage.BacktestRunStore
	Trades  storage.TradeRecordStore
	Sweeps  storage.SweepResultStore

	closers []func()
}

// Close releases database connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// StoreOptions selects and configures the storage backend.
type StoreOptions struct {
	UseMemory     bool
	PostgresDSN   string
	ClickHouseDSN string
	Migrate       bool // apply embedded schema before use

	// Fixture seeding for in-memory stores
	FixtureSymbols    []string
	FixtureTimeframes []string
	FixtureBars       int

	Logger *zap.Logger
}

// OpenStores returns in-memory stores seeded with fixtures, or the
// PostgreSQL and ClickHouse stores.
func OpenStores(ctx context.Context, opts StoreOptions) (*Stores, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if opts.UseMemory {
		ohlcv := memory.NewOHLCVStore()
		if len(opts.FixtureSymbols) > 0 {
			if err := market.LoadFixtures(ctx, ohlcv, opts.FixtureSymbols, opts.FixtureTimeframes, opts.FixtureBars); err != nil {
				return nil, err
			}
			logger.Info("in-memory stores seeded with fixtures",
				zap.Int("symbols", len(opts.FixtureSymbols)),
				zap.Strings("timeframes", opts.FixtureTimeframes))
		}
		return &Stores{
			OHLCV:   ohlcv,
			Signals: memory.NewSignalStore(),
			Runs:    memory.NewBacktestRunStore(),
			Trades:  memory.NewTradeRecordStore(),
			Sweeps:  memory.NewSweepResultStore(),
		}, nil
	}

	// Require DSNs when not using memory
	if opts.PostgresDSN == "" {
		return nil, fmt.Errorf("%w: postgres (runs, trades, sweeps)", ErrMissingDSN)
	}
	if opts.ClickHouseDSN == "" {
		return nil, fmt.Errorf("%w: clickhouse (bars, signals)", ErrMissingDSN)
	}

	s := &Stores{}

	// PostgreSQL for runs, trades and sweep rows
	pool, err := pgstore.NewPool(ctx, opts.PostgresDSN)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pool.Close)

	if opts.Migrate {
		if err := migrations.Postgres(ctx, pool, logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}

	// ClickHouse for bars and signals
	var conn *chstore.Conn
	if opts.Migrate {
		conn, err = migrations.ClickHouse(ctx, opts.ClickHouseDSN, logger)
	} else {
		conn, err = chstore.NewConn(ctx, opts.ClickHouseDSN)
	}
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, func() { conn.Close() })

	s.OHLCV = chstore.NewOHLCVStore(conn)
	s.Signals = chstore.NewSignalStore(conn)
	s.Runs = pgstore.NewBacktestRunStore(pool)
	s.Trades = pgstore.NewTradeRecordStore(pool)
	s.Sweeps = pgstore.NewSweepResultStore(pool)
	return s, nil
}
