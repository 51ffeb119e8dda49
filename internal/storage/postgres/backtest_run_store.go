package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

// BacktestRunStore implements storage.BacktestRunStore using PostgreSQL.
type BacktestRunStore struct {
	pool *Pool
}

// NewBacktestRunStore creates a new BacktestRunStore.
func NewBacktestRunStore(pool *Pool) *BacktestRunStore {
	return &BacktestRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BacktestRunStore = (*BacktestRunStore)(nil)

const backtestRunColumns = `
	run_id, timeframe, symbols,
	hurst_threshold, chop_threshold, phase_long, phase_short, phase_tolerance,
	trailing_multiplier, breakeven_threshold, max_concurrent, risk_per_trade,
	veto_threshold, macro_filter,
	total_return_pct, sharpe_ratio, max_drawdown_pct, win_rate_pct, total_trades, profit_factor,
	initial_capital, commission, bars, start_time, end_time, created_at
`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *BacktestRunStore) Insert(ctx context.Context, r *domain.BacktestRun) (err error) {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}
	defer observe("insert_backtest_run", time.Now(), &err)

	query := `INSERT INTO backtest_runs (` + backtestRunColumns + `) VALUES (
		$1, $2, $3,
		$4, $5, $6, $7, $8,
		$9, $10, $11, $12,
		$13, $14,
		$15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26
	)`

	symbols := r.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	p, m := r.Params, r.Metrics
	_, err = s.pool.Exec(ctx, query,
		r.RunID, r.Timeframe, symbols,
		p.HurstThreshold, p.ChopThreshold, p.PhaseLong, p.PhaseShort, p.PhaseTolerance,
		p.TrailingMultiplier, p.BreakevenThreshold, p.MaxConcurrent, p.RiskPerTrade,
		p.VetoThreshold, string(p.MacroFilter),
		m.TotalReturnPct, m.SharpeRatio, m.MaxDrawdownPct, m.WinRatePct, m.TotalTrades, m.ProfitFactor,
		r.InitialCapital, r.Commission, r.Bars, r.StartTime, r.EndTime, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *BacktestRunStore) GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error) {
	query := `SELECT ` + backtestRunColumns + ` FROM backtest_runs WHERE run_id = $1`

	r, err := scanBacktestRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run by id: %w", err)
	}
	return r, nil
}

// GetAll retrieves all runs ordered by Sharpe ratio DESC.
func (s *BacktestRunStore) GetAll(ctx context.Context) ([]*domain.BacktestRun, error) {
	query := `SELECT ` + backtestRunColumns + ` FROM backtest_runs ORDER BY sharpe_ratio DESC, run_id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all backtest runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.BacktestRun
	for rows.Next() {
		r, err := scanBacktestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest run rows: %w", err)
	}
	return runs, nil
}

func scanBacktestRun(row pgx.Row) (*domain.BacktestRun, error) {
	var r domain.BacktestRun
	var filter string
	p, m := &r.Params, &r.Metrics

	err := row.Scan(
		&r.RunID, &r.Timeframe, &r.Symbols,
		&p.HurstThreshold, &p.ChopThreshold, &p.PhaseLong, &p.PhaseShort, &p.PhaseTolerance,
		&p.TrailingMultiplier, &p.BreakevenThreshold, &p.MaxConcurrent, &p.RiskPerTrade,
		&p.VetoThreshold, &filter,
		&m.TotalReturnPct, &m.SharpeRatio, &m.MaxDrawdownPct, &m.WinRatePct, &m.TotalTrades, &m.ProfitFactor,
		&r.InitialCapital, &r.Commission, &r.Bars, &r.StartTime, &r.EndTime, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.MacroFilter = domain.MacroFilter(filter)
	return &r, nil
}
