package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

// SweepResultStore implements storage.SweepResultStore using PostgreSQL.
type SweepResultStore struct {
	pool *Pool
}

// NewSweepResultStore creates a new SweepResultStore.
func NewSweepResultStore(pool *Pool) *SweepResultStore {
	return &SweepResultStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SweepResultStore = (*SweepResultStore)(nil)

const sweepColumns = `
	sweep_id, combo_index, hurst_threshold, chop_threshold, phase_long, phase_short,
	trailing_multiplier, macro_filter,
	total_return_pct, sharpe_ratio, max_drawdown_pct, win_rate_pct, total_trades, profit_factor,
	failed
`

// InsertBulk adds multiple rows atomically using a single batch.
func (s *SweepResultStore) InsertBulk(ctx context.Context, rows []*domain.SweepRow) (err error) {
	if len(rows) == 0 {
		return nil
	}
	defer observe("insert_sweep_results", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO sweep_results (` + sweepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	batch := &pgx.Batch{}
	for _, r := range rows {
		if r == nil || r.SweepID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query,
			r.SweepID, r.ComboIndex, r.HurstThreshold, r.ChopThreshold, r.PhaseLong, r.PhaseShort,
			r.TrailingMultiplier, string(r.MacroFilter),
			r.TotalReturnPct, r.SharpeRatio, r.MaxDrawdownPct, r.WinRatePct, r.TotalTrades, r.ProfitFactor,
			r.Failed,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert sweep row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySweepID retrieves all rows of a sweep ordered by combo index.
func (s *SweepResultStore) GetBySweepID(ctx context.Context, sweepID string) ([]*domain.SweepRow, error) {
	query := `SELECT ` + sweepColumns + ` FROM sweep_results WHERE sweep_id = $1 ORDER BY combo_index ASC`
	return s.query(ctx, query, sweepID)
}

// GetTop retrieves up to n traded rows, best first.
func (s *SweepResultStore) GetTop(ctx context.Context, sweepID string, n int) ([]*domain.SweepRow, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}
	query := `SELECT ` + sweepColumns + ` FROM sweep_results
		WHERE sweep_id = $1 AND total_trades > 0
		ORDER BY sharpe_ratio DESC, total_return_pct DESC, combo_index ASC
		LIMIT $2`
	return s.query(ctx, query, sweepID, n)
}

func (s *SweepResultStore) query(ctx context.Context, query string, args ...any) ([]*domain.SweepRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweep results: %w", err)
	}
	defer rows.Close()

	var out []*domain.SweepRow
	for rows.Next() {
		var r domain.SweepRow
		var filter string
		err := rows.Scan(
			&r.SweepID, &r.ComboIndex, &r.HurstThreshold, &r.ChopThreshold, &r.PhaseLong, &r.PhaseShort,
			&r.TrailingMultiplier, &filter,
			&r.TotalReturnPct, &r.SharpeRatio, &r.MaxDrawdownPct, &r.WinRatePct, &r.TotalTrades, &r.ProfitFactor,
			&r.Failed,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep row: %w", err)
		}
		r.MacroFilter = domain.MacroFilter(filter)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep rows: %w", err)
	}
	return out, nil
}
