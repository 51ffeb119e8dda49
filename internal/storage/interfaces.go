package storage

import (
	"context"

	"rabbit-quant/internal/domain"
)

// PriceSeriesProvider supplies complete OHLCV series to the analytics core.
type PriceSeriesProvider interface {
	// GetOHLCV returns all bars for (symbol, timeframe), ordered by timestamp ASC.
	// Returns ErrNotFound if no bars exist.
	GetOHLCV(ctx context.Context, symbol, timeframe string) (*domain.PriceSeries, error)
}

// OHLCVStore provides access to ohlcv storage.
type OHLCVStore interface {
	PriceSeriesProvider

	// InsertBulk adds multiple bars. Fails entire batch on duplicate (symbol, timeframe, timestamp).
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// GetByTimeRange retrieves bars within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end int64) ([]*domain.Bar, error)

	// LatestTimestamp returns the open time of the newest bar. Returns ErrNotFound if none.
	LatestTimestamp(ctx context.Context, symbol, timeframe string) (int64, error)

	// Symbols lists the symbols that have bars for a timeframe, sorted ASC.
	Symbols(ctx context.Context, timeframe string) ([]string, error)
}

// SignalStore provides access to signal record storage.
type SignalStore interface {
	// InsertBulk adds multiple records. Fails entire batch on duplicate (symbol, timeframe, timestamp).
	InsertBulk(ctx context.Context, records []*domain.SignalRecord) error

	// GetLatest returns the newest record for (symbol, timeframe). Returns ErrNotFound if none.
	GetLatest(ctx context.Context, symbol, timeframe string) (*domain.SignalRecord, error)

	// GetBySymbol returns all records for a symbol, ordered by timestamp ASC then timeframe.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.SignalRecord, error)
}

// BacktestRunStore provides access to backtest_runs storage.
type BacktestRunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.BacktestRun) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// GetAll retrieves all runs ordered by Sharpe ratio DESC, then run_id ASC.
	GetAll(ctx context.Context) ([]*domain.BacktestRun, error)
}

// TradeRecordStore provides access to trade_records storage.
type TradeRecordStore interface {
	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate trade_id.
	InsertBulk(ctx context.Context, trades []*domain.TradeRecord) error

	// GetByRunID retrieves all trades of a run, ordered by entry time ASC then trade_id.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TradeRecord, error)
}

// SweepResultStore provides access to sweep_results storage.
type SweepResultStore interface {
	// InsertBulk adds multiple rows atomically. Fails entire batch on duplicate (sweep_id, combo_index).
	InsertBulk(ctx context.Context, rows []*domain.SweepRow) error

	// GetBySweepID retrieves all rows of a sweep ordered by combo_index ASC.
	GetBySweepID(ctx context.Context, sweepID string) ([]*domain.SweepRow, error)

	// GetTop retrieves up to n traded rows ordered by Sharpe DESC, total return DESC, combo_index ASC.
	GetTop(ctx context.Context, sweepID string, n int) ([]*domain.SweepRow, error)
}
