package memory

import (
	"context"
	"sort"
	"sync"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

// SignalStore is an in-memory implementation of storage.SignalStore.
type SignalStore struct {
	mu   sync.RWMutex
	data map[barKey]*domain.SignalRecord
}

// NewSignalStore creates a new in-memory signal store.
func NewSignalStore() *SignalStore {
	return &SignalStore{
		data: make(map[barKey]*domain.SignalRecord),
	}
}

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *SignalStore) InsertBulk(_ context.Context, records []*domain.SignalRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[barKey]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Symbol == "" || r.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := barKey{r.Symbol, r.Timeframe, r.Timestamp}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, r := range records {
		s.data[barKey{r.Symbol, r.Timeframe, r.Timestamp}] = copySignal(r)
	}
	return nil
}

// GetLatest returns the newest record for (symbol, timeframe).
func (s *SignalStore) GetLatest(_ context.Context, symbol, timeframe string) (*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SignalRecord
	for k, r := range s.data {
		if k.symbol == symbol && k.timeframe == timeframe && (latest == nil || r.Timestamp > latest.Timestamp) {
			latest = r
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copySignal(latest), nil
}

// GetBySymbol returns all records for a symbol.
func (s *SignalStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.SignalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalRecord
	for k, r := range s.data {
		if k.symbol == symbol {
			result = append(result, copySignal(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Timeframe < result[j].Timeframe
	})
	return result, nil
}

func copySignal(r *domain.SignalRecord) *domain.SignalRecord {
	c := *r
	c.Projection = append([]float64(nil), r.Projection...)
	return &c
}

var _ storage.SignalStore = (*SignalStore)(nil)
