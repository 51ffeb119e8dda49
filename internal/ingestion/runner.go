package ingestion

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
)

// BarSource pushes closed bars to out until ctx is cancelled.
type BarSource interface {
	Run(ctx context.Context, out chan<- domain.Bar) error
}

// Runner buffers streamed bars and flushes them to the OHLCV store.
type Runner struct {
	source        BarSource
	store         storage.OHLCVStore
	flushSize     int
	flushInterval time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics

	buffer []*domain.Bar
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source        BarSource
	Store         storage.OHLCVStore
	FlushSize     int           // Default: 100 bars
	FlushInterval time.Duration // Default: 5s - force flush buffered bars periodically
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	flushSize := opts.FlushSize
	if flushSize <= 0 {
		flushSize = 100
	}

	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	return &Runner{
		source:        opts.Source,
		store:         opts.Store,
		flushSize:     flushSize,
		flushInterval: flushInterval,
		logger:        logger,
		metrics:       metrics,
	}
}

// Run consumes the source until ctx is cancelled or the source fails.
// Buffered bars are flushed before returning.
func (r *Runner) Run(ctx context.Context) error {
	bars := make(chan domain.Bar, 1024)
	srcErr := make(chan error, 1)
	go func() {
		srcErr <- r.source.Run(ctx, bars)
	}()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	r.logger.Info("ingestion runner started",
		zap.Int("flush_size", r.flushSize),
		zap.Duration("flush_interval", r.flushInterval),
	)

	for {
		select {
		case <-ctx.Done():
			r.drain(bars)
			r.shutdownFlush()
			r.logger.Info("ingestion runner stopping")
			return ctx.Err()

		case err := <-srcErr:
			r.drain(bars)
			r.shutdownFlush()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err

		case bar := <-bars:
			r.add(bar)
			if len(r.buffer) >= r.flushSize {
				r.flush(ctx)
			}

		case <-ticker.C:
			r.flush(ctx)
		}
	}
}

func (r *Runner) add(bar domain.Bar) {
	b := bar
	r.buffer = append(r.buffer, &b)
	observability.UpdateBarBuffer(len(r.buffer))
}

// drain moves bars already queued on the channel into the buffer.
func (r *Runner) drain(bars <-chan domain.Bar) {
	for {
		select {
		case bar := <-bars:
			r.add(bar)
		default:
			return
		}
	}
}

func (r *Runner) shutdownFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.flush(ctx)
}

// flush writes the buffer. A batch rejected for duplicates is retried bar
// by bar so only the duplicates are dropped. Other failures keep the
// buffer for the next flush.
func (r *Runner) flush(ctx context.Context) {
	if len(r.buffer) == 0 {
		return
	}

	err := r.store.InsertBulk(ctx, r.buffer)
	switch {
	case err == nil:
		r.metrics.RecordBarsStored(len(r.buffer))
	case errors.Is(err, storage.ErrDuplicateKey):
		stored := 0
		for _, bar := range r.buffer {
			if err := r.store.InsertBulk(ctx, []*domain.Bar{bar}); err != nil {
				if !errors.Is(err, storage.ErrDuplicateKey) {
					r.metrics.RecordIngestionError("store")
					r.logger.Error("store bar", zap.String("symbol", bar.Symbol), zap.Error(err))
				}
				continue
			}
			stored++
		}
		if stored > 0 {
			r.metrics.RecordBarsStored(stored)
		}
	default:
		r.metrics.RecordIngestionError("store")
		r.logger.Error("flush bars", zap.Int("buffered", len(r.buffer)), zap.Error(err))
		return
	}

	r.buffer = r.buffer[:0]
	observability.UpdateBarBuffer(0)
}
