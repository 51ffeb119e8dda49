package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
	"rabbit-quant/internal/storage/memory"
)

// sliceSource emits its bars then waits for cancellation, or returns err.
type sliceSource struct {
	bars []domain.Bar
	err  error
}

func (s *sliceSource) Run(ctx context.Context, out chan<- domain.Bar) error {
	for _, b := range s.bars {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func bar(ts int64) domain.Bar {
	return domain.Bar{Symbol: "AAA", Timeframe: "1h", Timestamp: ts, Close: 1}
}

func testMetrics() *observability.Metrics {
	return observability.NewMetricsWith(prometheus.NewRegistry(), "test")
}

func TestRunner_FlushesOnSize(t *testing.T) {
	store := memory.NewOHLCVStore()
	m := testMetrics()
	r := NewRunner(RunnerOptions{
		Source:        &sliceSource{bars: []domain.Bar{bar(0), bar(hourMs), bar(2 * hourMs), bar(3 * hourMs)}},
		Store:         store,
		FlushSize:     2,
		FlushInterval: time.Hour,
		Metrics:       m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		bars, _ := store.GetByTimeRange(context.Background(), "AAA", "1h", 0, 10*hourMs)
		return len(bars) == 4
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BarsStored))
}

func TestRunner_FlushesOnShutdown(t *testing.T) {
	store := memory.NewOHLCVStore()
	boom := errors.New("stream gone")
	r := NewRunner(RunnerOptions{
		Source:        &sliceSource{bars: []domain.Bar{bar(0), bar(hourMs)}, err: boom},
		Store:         store,
		FlushSize:     100,
		FlushInterval: time.Hour,
		Metrics:       testMetrics(),
	})

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, boom)

	bars, err := store.GetByTimeRange(context.Background(), "AAA", "1h", 0, 10*hourMs)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestRunner_DropsOnlyDuplicates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOHLCVStore()
	existing := bar(hourMs)
	require.NoError(t, store.InsertBulk(ctx, []*domain.Bar{&existing}))

	m := testMetrics()
	r := NewRunner(RunnerOptions{Store: store, Metrics: m})
	r.add(bar(0))
	r.add(bar(hourMs))
	r.add(bar(2 * hourMs))
	r.flush(ctx)

	bars, err := store.GetByTimeRange(ctx, "AAA", "1h", 0, 10*hourMs)
	require.NoError(t, err)
	assert.Len(t, bars, 3)
	assert.Empty(t, r.buffer)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarsStored))
}

// failingStore rejects inserts until healed.
type failingStore struct {
	*memory.OHLCVStore
	mu     sync.Mutex
	broken bool
}

func (s *failingStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	s.mu.Lock()
	broken := s.broken
	s.mu.Unlock()
	if broken {
		return errors.New("connection refused")
	}
	return s.OHLCVStore.InsertBulk(ctx, bars)
}

var _ storage.OHLCVStore = (*failingStore)(nil)

func TestRunner_KeepsBufferOnStoreError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{OHLCVStore: memory.NewOHLCVStore(), broken: true}
	m := testMetrics()
	r := NewRunner(RunnerOptions{Store: store, Metrics: m})

	r.add(bar(0))
	r.flush(ctx)
	assert.Len(t, r.buffer, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestionErrors.WithLabelValues("store")))

	store.broken = false
	r.flush(ctx)
	assert.Empty(t, r.buffer)
}
