package memory

import (
	"context"
	"sort"
	"sync"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

type barKey struct {
	symbol    string
	timeframe string
	timestamp int64
}

// OHLCVStore is an in-memory implementation of storage.OHLCVStore.
type OHLCVStore struct {
	mu   sync.RWMutex
	data map[barKey]*domain.Bar
}

// NewOHLCVStore creates a new in-memory OHLCV store.
func NewOHLCVStore() *OHLCVStore {
	return &OHLCVStore{
		data: make(map[barKey]*domain.Bar),
	}
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *OHLCVStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: validate and check duplicates (existing + intra-batch)
	batchKeys := make(map[barKey]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Symbol == "" || b.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := barKey{b.Symbol, b.Timeframe, b.Timestamp}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		barCopy := *b
		s.data[barKey{b.Symbol, b.Timeframe, b.Timestamp}] = &barCopy
	}
	return nil
}

// GetOHLCV returns all bars for (symbol, timeframe). Returns ErrNotFound if none.
func (s *OHLCVStore) GetOHLCV(_ context.Context, symbol, timeframe string) (*domain.PriceSeries, error) {
	bars := s.collect(symbol, timeframe, func(int64) bool { return true })
	if len(bars) == 0 {
		return nil, storage.ErrNotFound
	}

	series := &domain.PriceSeries{Symbol: symbol, Timeframe: timeframe, Bars: make([]domain.Bar, len(bars))}
	for i, b := range bars {
		series.Bars[i] = *b
	}
	return series, nil
}

// GetByTimeRange retrieves bars within [start, end] (inclusive).
func (s *OHLCVStore) GetByTimeRange(_ context.Context, symbol, timeframe string, start, end int64) ([]*domain.Bar, error) {
	return s.collect(symbol, timeframe, func(ts int64) bool { return ts >= start && ts <= end }), nil
}

// LatestTimestamp returns the open time of the newest bar.
func (s *OHLCVStore) LatestTimestamp(_ context.Context, symbol, timeframe string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for k := range s.data {
		if k.symbol == symbol && k.timeframe == timeframe && (!found || k.timestamp > latest) {
			latest = k.timestamp
			found = true
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}
	return latest, nil
}

// Symbols lists the symbols that have bars for a timeframe.
func (s *OHLCVStore) Symbols(_ context.Context, timeframe string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range s.data {
		if k.timeframe == timeframe {
			seen[k.symbol] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (s *OHLCVStore) collect(symbol, timeframe string, keep func(int64) bool) []*domain.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for k, b := range s.data {
		if k.symbol == symbol && k.timeframe == timeframe && keep(k.timestamp) {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result
}

var _ storage.OHLCVStore = (*OHLCVStore)(nil)
