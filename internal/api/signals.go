package api

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rabbit-quant/internal/cache"
	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

type signalResponse struct {
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	Timestamp      string    `json:"timestamp"`
	Signal         string    `json:"signal"`
	DominantPeriod int       `json:"dominant_period"`
	CurrentPhase   float64   `json:"current_phase"`
	Hurst          float64   `json:"hurst"`
	Amplitude      float64   `json:"amplitude"`
	Price          float64   `json:"price"`
	ATR            float64   `json:"atr"`
	ATRZScore      float64   `json:"atr_zscore"`
	Chop           float64   `json:"chop"`
	Projection     []float64 `json:"projection"`
}

func toSignalResponse(r *domain.SignalRecord) signalResponse {
	return signalResponse{
		Symbol:         r.Symbol,
		Timeframe:      r.Timeframe,
		Timestamp:      time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339),
		Signal:         string(r.Signal),
		DominantPeriod: r.DominantPeriod,
		CurrentPhase:   finite(r.CurrentPhase),
		Hurst:          finite(r.Hurst),
		Amplitude:      finite(r.Amplitude),
		Price:          finite(r.Price),
		ATR:            finite(r.ATR),
		ATRZScore:      finite(r.ATRZScore),
		Chop:           finite(r.Chop),
		Projection:     finiteAll(r.Projection),
	}
}

// finite maps NaN and ±Inf to 0; encoding/json rejects them.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func finiteAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, v := range xs {
		out[i] = finite(v)
	}
	return out
}

// listSignals returns cached signals. Optional filters: ?timeframe= and
// ?signal=LONG|SHORT|NEUTRAL.
func (s *Server) listSignals(c *gin.Context) {
	if s.cache == nil {
		abort(c, http.StatusServiceUnavailable, "signal cache not configured")
		return
	}

	tf := c.Query("timeframe")
	dir := strings.ToUpper(c.Query("signal"))

	out := make([]signalResponse, 0)
	for _, rec := range s.cache.All() {
		if tf != "" && rec.Timeframe != tf {
			continue
		}
		if dir != "" && string(rec.Signal) != dir {
			continue
		}
		out = append(out, toSignalResponse(&rec))
	}
	c.JSON(http.StatusOK, gin.H{"signals": out, "count": len(out)})
}

// getSignal serves the cached signal, falling back to the signal store.
func (s *Server) getSignal(c *gin.Context) {
	symbol, tf := c.Param("symbol"), c.Param("timeframe")

	if s.cache != nil {
		if rec, ok := s.cache.Get(symbol, tf); ok {
			c.JSON(http.StatusOK, toSignalResponse(rec))
			return
		}
	}

	if s.signals == nil {
		abort(c, http.StatusNotFound, "signal not found")
		return
	}
	rec, err := s.signals.GetLatest(c.Request.Context(), symbol, tf)
	if errors.Is(err, storage.ErrNotFound) {
		abort(c, http.StatusNotFound, "signal not found")
		return
	}
	if err != nil {
		s.logger.Error("get signal", zap.String("symbol", symbol), zap.String("timeframe", tf), zap.Error(err))
		abort(c, http.StatusInternalServerError, "storage error")
		return
	}
	c.JSON(http.StatusOK, toSignalResponse(rec))
}

// refreshSignals triggers an immediate cache refresh.
func (s *Server) refreshSignals(c *gin.Context) {
	if s.cache == nil {
		abort(c, http.StatusServiceUnavailable, "signal cache not configured")
		return
	}

	n, err := s.cache.Refresh(c.Request.Context())
	if errors.Is(err, cache.ErrNoRefresher) {
		abort(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("signal refresh", zap.Error(err))
		abort(c, http.StatusInternalServerError, "refresh failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}
