package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/metrics"
	"rabbit-quant/internal/storage"
)

type metricsResponse struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalTrades    int     `json:"total_trades"`
	ProfitFactor   float64 `json:"profit_factor"`
}

type runResponse struct {
	RunID          string          `json:"run_id"`
	Timeframe      string          `json:"timeframe"`
	Symbols        []string        `json:"symbols"`
	Bars           int             `json:"bars"`
	InitialCapital float64         `json:"initial_capital"`
	Commission     float64         `json:"commission"`
	Start          string          `json:"start"`
	End            string          `json:"end"`
	CreatedAt      string          `json:"created_at"`
	Metrics        metricsResponse `json:"metrics"`
}

type tradeResponse struct {
	TradeID    string  `json:"trade_id"`
	Symbol     string  `json:"symbol"`
	Direction  string  `json:"direction"`
	EntryTime  string  `json:"entry_time"`
	ExitTime   string  `json:"exit_time"`
	Size       float64 `json:"size"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	ReturnPct  float64 `json:"return_pct"`
}

type runDetailResponse struct {
	runResponse
	Stats  metrics.TradeStats `json:"trade_stats"`
	Trades []tradeResponse    `json:"trades"`
}

func rfc3339(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func toRunResponse(r *domain.BacktestRun) runResponse {
	return runResponse{
		RunID:          r.RunID,
		Timeframe:      r.Timeframe,
		Symbols:        r.Symbols,
		Bars:           r.Bars,
		InitialCapital: r.InitialCapital,
		Commission:     r.Commission,
		Start:          rfc3339(r.StartTime),
		End:            rfc3339(r.EndTime),
		CreatedAt:      rfc3339(r.CreatedAt),
		Metrics: metricsResponse{
			TotalReturnPct: finite(r.Metrics.TotalReturnPct),
			SharpeRatio:    finite(r.Metrics.SharpeRatio),
			MaxDrawdownPct: finite(r.Metrics.MaxDrawdownPct),
			WinRatePct:     finite(r.Metrics.WinRatePct),
			TotalTrades:    r.Metrics.TotalTrades,
			ProfitFactor:   finite(r.Metrics.ProfitFactor),
		},
	}
}

// listRuns returns stored runs by Sharpe ratio DESC. Optional filters:
// ?timeframe= and ?limit=N.
func (s *Server) listRuns(c *gin.Context) {
	if s.runs == nil {
		abort(c, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			abort(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	tf := c.Query("timeframe")

	runs, err := s.runs.GetAll(c.Request.Context())
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		abort(c, http.StatusInternalServerError, "storage error")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		if tf != "" && r.Timeframe != tf {
			continue
		}
		out = append(out, toRunResponse(r))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	c.JSON(http.StatusOK, gin.H{"runs": out, "count": len(out)})
}

// getRun returns one run with its trades and trade statistics.
func (s *Server) getRun(c *gin.Context) {
	if s.runs == nil {
		abort(c, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")

	run, err := s.runs.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		abort(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run", zap.String("run_id", id), zap.Error(err))
		abort(c, http.StatusInternalServerError, "storage error")
		return
	}

	resp := runDetailResponse{runResponse: toRunResponse(run), Trades: make([]tradeResponse, 0)}
	if s.trades != nil {
		trades, err := s.trades.GetByRunID(ctx, id)
		if err != nil {
			s.logger.Error("get trades", zap.String("run_id", id), zap.Error(err))
			abort(c, http.StatusInternalServerError, "storage error")
			return
		}
		resp.Stats = metrics.ComputeTradeStats(trades)
		for _, t := range trades {
			resp.Trades = append(resp.Trades, tradeResponse{
				TradeID:    t.TradeID,
				Symbol:     t.Symbol,
				Direction:  string(t.Direction),
				EntryTime:  rfc3339(t.EntryTime),
				ExitTime:   rfc3339(t.ExitTime),
				Size:       t.Size,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				PnL:        t.PnL,
				ReturnPct:  t.ReturnPct,
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}
