package clickhouse

import (
	"context"
	"fmt"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

// SignalStore implements storage.SignalStore using ClickHouse.
type SignalStore struct {
	conn *Conn
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(conn *Conn) *SignalStore {
	return &SignalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

const signalColumns = `
	symbol, timeframe, timestamp_ms, dominant_period, current_phase, hurst, signal,
	amplitude, price, atr, atr_zscore, chop, projection, computed_at
`

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *SignalStore) InsertBulk(ctx context.Context, records []*domain.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}

	type key struct {
		symbol, timeframe string
		ts                int64
	}
	seen := make(map[key]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Symbol == "" || r.Timeframe == "" || r.Timestamp < 0 {
			return storage.ErrInvalidInput
		}
		k := key{r.Symbol, r.Timeframe, r.Timestamp}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, r := range records {
		exists, err := s.exists(ctx, r.Symbol, r.Timeframe, r.Timestamp)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO signals (`+signalColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		projection := r.Projection
		if projection == nil {
			projection = []float64{}
		}
		err = batch.Append(
			r.Symbol, r.Timeframe, uint64(r.Timestamp), uint32(max(r.DominantPeriod, 0)),
			r.CurrentPhase, r.Hurst, string(r.Signal),
			r.Amplitude, r.Price, r.ATR, r.ATRZScore, r.Chop, projection, uint64(max(r.ComputedAt, 0)),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetLatest returns the newest record for (symbol, timeframe).
func (s *SignalStore) GetLatest(ctx context.Context, symbol, timeframe string) (*domain.SignalRecord, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE symbol = ? AND timeframe = ?
		ORDER BY timestamp_ms DESC
		LIMIT 1`

	rows, err := s.conn.Query(ctx, query, symbol, timeframe)
	if err != nil {
		return nil, fmt.Errorf("query latest signal: %w", err)
	}
	defer rows.Close()

	records, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// GetBySymbol returns all records for a symbol.
func (s *SignalStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.SignalRecord, error) {
	query := `SELECT ` + signalColumns + ` FROM signals
		WHERE symbol = ?
		ORDER BY timestamp_ms ASC, timeframe ASC`

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query signals by symbol: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

func (s *SignalStore) exists(ctx context.Context, symbol, timeframe string, ts int64) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM signals WHERE symbol = ? AND timeframe = ? AND timestamp_ms = ?`,
		symbol, timeframe, uint64(ts),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSignals(rows chRows) ([]*domain.SignalRecord, error) {
	var records []*domain.SignalRecord

	for rows.Next() {
		var r domain.SignalRecord
		var ts, computedAt uint64
		var period uint32
		var signal string

		err := rows.Scan(
			&r.Symbol, &r.Timeframe, &ts, &period, &r.CurrentPhase, &r.Hurst, &signal,
			&r.Amplitude, &r.Price, &r.ATR, &r.ATRZScore, &r.Chop, &r.Projection, &computedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}

		r.Timestamp = int64(ts)
		r.DominantPeriod = int(period)
		r.Signal = domain.Direction(signal)
		r.ComputedAt = int64(computedAt)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return records, nil
}
