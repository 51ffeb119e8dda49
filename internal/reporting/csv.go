package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"rabbit-quant/internal/domain"
)

// TradeLogHeader is the column order of trade log exports.
var TradeLogHeader = []string{
	"symbol", "entry_time", "exit_time", "direction", "size",
	"entry_price", "entry_value", "exit_price", "pnl", "return_pct",
}

// WriteTradeLog writes closed trades as CSV. Times are RFC 3339 UTC.
func WriteTradeLog(w io.Writer, trades []*domain.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeLogHeader); err != nil {
		return err
	}

	for _, t := range trades {
		err := cw.Write([]string{
			t.Symbol,
			formatTime(t.EntryTime),
			formatTime(t.ExitTime),
			string(t.Direction),
			fixed(t.Size, 8),
			price(t.EntryPrice),
			money(t.EntryValue),
			price(t.ExitPrice),
			money(t.PnL),
			ratio(t.ReturnPct),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSweep writes sweep rows as CSV in the order given.
func WriteSweep(w io.Writer, rows []*domain.SweepRow) error {
	cw := csv.NewWriter(w)
	header := []string{
		"combo", "hurst_threshold", "chop_threshold", "phase_long", "phase_short",
		"trailing_multiplier", "macro_filter", "total_return_pct", "sharpe_ratio",
		"max_drawdown_pct", "win_rate_pct", "total_trades", "profit_factor", "failed",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rows {
		err := cw.Write([]string{
			strconv.Itoa(r.ComboIndex),
			ratio(r.HurstThreshold),
			ratio(r.ChopThreshold),
			ratio(r.PhaseLong),
			ratio(r.PhaseShort),
			ratio(r.TrailingMultiplier),
			string(r.MacroFilter),
			pct(r.TotalReturnPct),
			ratio(r.SharpeRatio),
			pct(r.MaxDrawdownPct),
			pct(r.WinRatePct),
			strconv.Itoa(r.TotalTrades),
			ratio(r.ProfitFactor),
			strconv.FormatBool(r.Failed),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteLeaderboard writes leaderboard rows as CSV.
func WriteLeaderboard(w io.Writer, rows []LeaderboardRow) error {
	cw := csv.NewWriter(w)
	header := []string{
		"rank", "timeframe", "run_id", "assets", "bars", "total_return_pct",
		"sharpe_ratio", "max_drawdown_pct", "win_rate_pct", "total_trades", "profit_factor",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, r := range rows {
		err := cw.Write([]string{
			strconv.Itoa(i + 1),
			r.Timeframe,
			r.RunID,
			strconv.Itoa(r.Assets),
			strconv.Itoa(r.Bars),
			pct(r.TotalReturnPct),
			ratio(r.SharpeRatio),
			pct(r.MaxDrawdownPct),
			pct(r.WinRatePct),
			strconv.Itoa(r.TotalTrades),
			ratio(r.ProfitFactor),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveFile creates dir if needed and writes name through write.
// Returns the full path.
func SaveFile(dir, name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
