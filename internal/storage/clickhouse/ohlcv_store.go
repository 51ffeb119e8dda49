package clickhouse

import (
	"context"
	"fmt"
	"time"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
)

// OHLCVStore implements storage.OHLCVStore using ClickHouse.
type OHLCVStore struct {
	conn *Conn
}

// NewOHLCVStore creates a new OHLCVStore.
func NewOHLCVStore(conn *Conn) *OHLCVStore {
	return &OHLCVStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OHLCVStore = (*OHLCVStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate
// (symbol, timeframe, timestamp); MergeTree does not enforce keys, so
// duplicates are checked before the batch is sent.
func (s *OHLCVStore) InsertBulk(ctx context.Context, bars []*domain.Bar) (err error) {
	if len(bars) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observability.RecordDBQuery("clickhouse", "insert_ohlcv", time.Since(start).Seconds(), err) }()

	type key struct {
		symbol, timeframe string
		ts                int64
	}
	seen := make(map[key]struct{}, len(bars))
	ranges := make(map[[2]string][2]int64)
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Timeframe == "" || b.Timestamp < 0 {
			return storage.ErrInvalidInput
		}
		k := key{b.Symbol, b.Timeframe, b.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		rk := [2]string{b.Symbol, b.Timeframe}
		r, ok := ranges[rk]
		if !ok {
			r = [2]int64{b.Timestamp, b.Timestamp}
		}
		r[0], r[1] = min(r[0], b.Timestamp), max(r[1], b.Timestamp)
		ranges[rk] = r
	}

	// Check for duplicates against existing rows, one range query per series.
	for rk, r := range ranges {
		existing, err := s.GetByTimeRange(ctx, rk[0], rk[1], r[0], r[1])
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, e := range existing {
			if _, dup := seen[key{e.Symbol, e.Timeframe, e.Timestamp}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv (symbol, timeframe, timestamp_ms, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(b.Symbol, b.Timeframe, uint64(b.Timestamp), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetOHLCV returns all bars for (symbol, timeframe). Returns ErrNotFound if none.
func (s *OHLCVStore) GetOHLCV(ctx context.Context, symbol, timeframe string) (*domain.PriceSeries, error) {
	query := `
		SELECT symbol, timeframe, timestamp_ms, open, high, low, close, volume
		FROM ohlcv
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query ohlcv: %w", err)
	}
	defer rows.Close()

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}

	series := &domain.PriceSeries{Symbol: symbol, Timeframe: timeframe, Bars: make([]domain.Bar, len(bars))}
	for i, b := range bars {
		series.Bars[i] = *b
	}
	return series, nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive).
func (s *OHLCVStore) GetByTimeRange(ctx context.Context, symbol, timeframe string, start, end int64) ([]*domain.Bar, error) {
	query := `
		SELECT symbol, timeframe, timestamp_ms, open, high, low, close, volume
		FROM ohlcv
		WHERE symbol = ? AND timeframe = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, timeframe, uint64(max(start, 0)), uint64(max(end, 0)))
	if err != nil {
		return nil, fmt.Errorf("query ohlcv by time range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// LatestTimestamp returns the open time of the newest bar.
func (s *OHLCVStore) LatestTimestamp(ctx context.Context, symbol, timeframe string) (int64, error) {
	query := `
		SELECT count(*), max(timestamp_ms) FROM ohlcv
		WHERE symbol = ? AND timeframe = ?
	`

	var count, latest uint64
	if err := s.conn.QueryRow(ctx, query, symbol, timeframe).Scan(&count, &latest); err != nil {
		return 0, fmt.Errorf("query latest timestamp: %w", err)
	}
	if count == 0 {
		return 0, storage.ErrNotFound
	}
	return int64(latest), nil
}

// Symbols lists the symbols that have bars for a timeframe.
func (s *OHLCVStore) Symbols(ctx context.Context, timeframe string) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT symbol FROM ohlcv WHERE timeframe = ? ORDER BY symbol`, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var b domain.Bar
		var ts uint64
		if err := rows.Scan(&b.Symbol, &b.Timeframe, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan ohlcv row: %w", err)
		}
		b.Timestamp = int64(ts)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ohlcv rows: %w", err)
	}
	return bars, nil
}
