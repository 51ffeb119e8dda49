// Package observability provides Prometheus metrics and structured logging.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	BarsReceived     *prometheus.CounterVec
	BarsStored       prometheus.Counter
	StreamReconnects prometheus.Counter
	IngestionErrors  *prometheus.CounterVec
	BarBufferSize    prometheus.Gauge
	WSMessageLatency prometheus.Histogram
	RESTCallLatency  *prometheus.HistogramVec

	// Signal metrics
	SignalsGenerated   *prometheus.CounterVec
	SignalFailures     prometheus.Counter
	SignalBatchLatency prometheus.Histogram
	CacheRefreshes     *prometheus.CounterVec

	// Backtest metrics
	BacktestRunsTotal *prometheus.CounterVec
	BacktestDuration  *prometheus.HistogramVec
	TradesSimulated   prometheus.Counter
	SweepCombinations *prometheus.CounterVec
	ReportsGenerated  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulIngestion prometheus.Gauge
	LastSignalRefresh       prometheus.Gauge
	UptimeSeconds           prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "rabbit_quant"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		BarsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bars_received_total",
			Help:      "Total number of closed bars received by timeframe",
		}, []string{"timeframe"}),
		BarsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bars_stored_total",
			Help:      "Total number of bars stored to database",
		}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "stream_reconnects_total",
			Help:      "Total number of kline stream reconnects",
		}),
		IngestionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by type",
		}, []string{"error_type"}),
		BarBufferSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "bar_buffer_size",
			Help:      "Current number of bars waiting to be flushed",
		}),
		WSMessageLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RESTCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "rest_call_latency_seconds",
			Help:      "Exchange REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		// Signal metrics
		SignalsGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "generated_total",
			Help:      "Total number of signal records generated by direction",
		}, []string{"direction"}),
		SignalFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "failures_total",
			Help:      "Total number of (symbol, timeframe) pairs that failed generation",
		}),
		SignalBatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "batch_duration_seconds",
			Help:      "Batch signal generation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		CacheRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "cache_refreshes_total",
			Help:      "Total number of signal cache refreshes by status",
		}, []string{"status"}),

		// Backtest metrics
		BacktestRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by timeframe and status",
		}, []string{"timeframe", "status"}),
		BacktestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}, []string{"timeframe"}),
		TradesSimulated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_simulated_total",
			Help:      "Total number of trades simulated",
		}),
		SweepCombinations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "sweep_combinations_total",
			Help:      "Total number of sweep combinations evaluated by status",
		}, []string{"status"}),
		ReportsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "reports_generated_total",
			Help:      "Total number of reports generated",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulIngestion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingestion_timestamp",
			Help:      "Unix timestamp of last successful bar flush",
		}),
		LastSignalRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_signal_refresh_timestamp",
			Help:      "Unix timestamp of last successful signal refresh",
		}),
		UptimeSeconds: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordBarsReceived counts closed bars received for a timeframe.
func (m *Metrics) RecordBarsReceived(timeframe string, n int) {
	m.BarsReceived.WithLabelValues(timeframe).Add(float64(n))
}

// RecordBarsStored counts bars flushed to storage and marks ingestion health.
func (m *Metrics) RecordBarsStored(n int) {
	m.BarsStored.Add(float64(n))
	m.LastSuccessfulIngestion.Set(float64(time.Now().Unix()))
}

// RecordIngestionError records an ingestion error by type.
func (m *Metrics) RecordIngestionError(errorType string) {
	m.IngestionErrors.WithLabelValues(errorType).Inc()
}

// RecordSignal counts one generated signal record.
func (m *Metrics) RecordSignal(direction string) {
	m.SignalsGenerated.WithLabelValues(direction).Inc()
}

// RecordCacheRefresh records a cache refresh and, on success, its time.
func (m *Metrics) RecordCacheRefresh(ok bool, seconds float64) {
	m.CacheRefreshes.WithLabelValues(status(ok)).Inc()
	if ok {
		m.SignalBatchLatency.Observe(seconds)
		m.LastSignalRefresh.Set(float64(time.Now().Unix()))
	}
}

// RecordBacktest records one backtest run.
func (m *Metrics) RecordBacktest(timeframe string, ok bool, seconds float64, trades int) {
	m.BacktestRunsTotal.WithLabelValues(timeframe, status(ok)).Inc()
	m.BacktestDuration.WithLabelValues(timeframe).Observe(seconds)
	m.TradesSimulated.Add(float64(trades))
}

// RecordSweepCombination counts one evaluated sweep combination.
func (m *Metrics) RecordSweepCombination(ok bool) {
	m.SweepCombinations.WithLabelValues(status(ok)).Inc()
}

// RecordRESTLatency records exchange REST call latency.
func RecordRESTLatency(endpoint string, seconds float64) {
	DefaultMetrics.RESTCallLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordReconnect counts a stream reconnect.
func RecordReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// UpdateBarBuffer sets the pending bar buffer gauge.
func UpdateBarBuffer(n int) {
	DefaultMetrics.BarBufferSize.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordReportGenerated counts a generated report.
func RecordReportGenerated() {
	DefaultMetrics.ReportsGenerated.Inc()
}
