// Package api exposes signals, backtest runs, health and metrics over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rabbit-quant/internal/cache"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cache     *cache.SignalCache
	signals   storage.SignalStore
	runs      storage.BacktestRunStore
	trades    storage.TradeRecordStore
	metrics   http.Handler
	logger    *zap.Logger
	startedAt time.Time
	now       func() time.Time
}

// Options for creating Server. Signals, Runs and Trades are optional;
// endpoints backed by a nil store respond 503.
type Options struct {
	Cache   *cache.SignalCache
	Signals storage.SignalStore
	Runs    storage.BacktestRunStore
	Trades  storage.TradeRecordStore
	Metrics http.Handler // Default: observability.Handler()
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	s := &Server{
		cache:   opts.Cache,
		signals: opts.Signals,
		runs:    opts.Runs,
		trades:  opts.Trades,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.metrics == nil {
		s.metrics = observability.Handler()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.startedAt = s.now()
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.UseRawPath = true
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics))

	r.GET("/signals", s.listSignals)
	r.GET("/signals/:symbol/:timeframe", s.getSignal)
	r.POST("/signals/refresh", s.refreshSignals)

	r.GET("/runs", s.listRuns)
	r.GET("/runs/:id", s.getRun)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Signals       int     `json:"signals"`
	LastRefresh   *string `json:"last_refresh"`
	Stale         bool    `json:"stale"`
}

func (s *Server) health(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: s.now().Sub(s.startedAt).Seconds(),
	}
	if s.cache != nil {
		resp.Signals = s.cache.Len()
		resp.Stale = s.cache.Stale()
		if last := s.cache.LastRefresh(); !last.IsZero() {
			ts := last.UTC().Format(time.RFC3339)
			resp.LastRefresh = &ts
		}
	}
	c.JSON(http.StatusOK, resp)
}
