package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/market"
	"rabbit-quant/internal/storage"
)

// KlineSource returns closed bars with open time in [start, end].
type KlineSource interface {
	Klines(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]domain.Bar, error)
}

// Backfiller loads historical klines into the OHLCV store.
type Backfiller struct {
	source   KlineSource
	store    storage.OHLCVStore
	pageSize int
	lookback int
	logger   *zap.Logger
	now      func() time.Time
}

// BackfillOptions contains configuration for creating a Backfiller.
type BackfillOptions struct {
	Source   KlineSource
	Store    storage.OHLCVStore
	PageSize int // Default: MaxKlineLimit
	Lookback int // Bars fetched for a pair with no stored history. Default: 1000
	Logger   *zap.Logger
	Now      func() time.Time
}

// NewBackfiller creates a new historical data backfiller.
func NewBackfiller(opts BackfillOptions) *Backfiller {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > MaxKlineLimit {
		pageSize = MaxKlineLimit
	}

	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 1000
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Backfiller{
		source:   opts.Source,
		store:    opts.Store,
		pageSize: pageSize,
		lookback: lookback,
		logger:   logger,
		now:      now,
	}
}

// BackfillResult summarises one Backfill call.
type BackfillResult struct {
	Pages    int
	Inserted int
	From     int64
	To       int64
}

// Backfill fetches bars after the latest stored bar of symbol/timeframe
// (or the configured lookback for a new pair) up to now, page by page,
// and stores them.
func (b *Backfiller) Backfill(ctx context.Context, symbol, timeframe string) (*BackfillResult, error) {
	dur, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	step := dur.Milliseconds()

	end := b.now().UnixMilli()
	start := end - int64(b.lookback)*step

	latest, err := b.store.LatestTimestamp(ctx, symbol, timeframe)
	switch {
	case err == nil:
		start = latest + step
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("latest timestamp %s/%s: %w", symbol, timeframe, err)
	}

	return b.BackfillRange(ctx, symbol, timeframe, start, end)
}

// BackfillRange fetches and stores bars with open time in [start, end].
// Bars at or before the latest stored bar are skipped.
func (b *Backfiller) BackfillRange(ctx context.Context, symbol, timeframe string, start, end int64) (*BackfillResult, error) {
	dur, err := market.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	step := dur.Milliseconds()

	latest := int64(-1)
	if ts, err := b.store.LatestTimestamp(ctx, symbol, timeframe); err == nil {
		latest = ts
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("latest timestamp %s/%s: %w", symbol, timeframe, err)
	}

	res := &BackfillResult{From: start, To: end}
	cursor := start
	for cursor <= end {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		bars, err := b.source.Klines(ctx, symbol, timeframe, cursor, end, b.pageSize)
		if err != nil {
			return res, fmt.Errorf("fetch %s/%s from %d: %w", symbol, timeframe, cursor, err)
		}
		res.Pages++
		if len(bars) == 0 {
			break
		}

		batch := make([]*domain.Bar, 0, len(bars))
		for i := range bars {
			if bars[i].Timestamp <= latest {
				continue
			}
			batch = append(batch, &bars[i])
		}
		if len(batch) > 0 {
			if err := b.store.InsertBulk(ctx, batch); err != nil {
				return res, fmt.Errorf("store %s/%s: %w", symbol, timeframe, err)
			}
			res.Inserted += len(batch)
			latest = batch[len(batch)-1].Timestamp
		}

		next := bars[len(bars)-1].Timestamp + step
		if next <= cursor || len(bars) < b.pageSize {
			break
		}
		cursor = next
	}

	b.logger.Info("backfill complete",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe),
		zap.Int("pages", res.Pages),
		zap.Int("inserted", res.Inserted),
	)
	return res, nil
}
