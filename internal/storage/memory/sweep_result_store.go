package memory

import (
	"context"
	"sort"
	"sync"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/storage"
)

type sweepKey struct {
	sweepID string
	combo   int
}

// SweepResultStore is an in-memory implementation of storage.SweepResultStore.
type SweepResultStore struct {
	mu   sync.RWMutex
	data map[sweepKey]*domain.SweepRow
}

// NewSweepResultStore creates a new in-memory sweep result store.
func NewSweepResultStore() *SweepResultStore {
	return &SweepResultStore{
		data: make(map[sweepKey]*domain.SweepRow),
	}
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *SweepResultStore) InsertBulk(_ context.Context, rows []*domain.SweepRow) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[sweepKey]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.SweepID == "" {
			return storage.ErrInvalidInput
		}
		k := sweepKey{r.SweepID, r.ComboIndex}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, r := range rows {
		rowCopy := *r
		s.data[sweepKey{r.SweepID, r.ComboIndex}] = &rowCopy
	}
	return nil
}

// GetBySweepID retrieves all rows of a sweep ordered by combo index.
func (s *SweepResultStore) GetBySweepID(_ context.Context, sweepID string) ([]*domain.SweepRow, error) {
	result := s.filter(sweepID, func(*domain.SweepRow) bool { return true })
	sort.Slice(result, func(i, j int) bool {
		return result[i].ComboIndex < result[j].ComboIndex
	})
	return result, nil
}

// GetTop retrieves up to n traded rows, best first.
func (s *SweepResultStore) GetTop(_ context.Context, sweepID string, n int) ([]*domain.SweepRow, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}

	result := s.filter(sweepID, func(r *domain.SweepRow) bool { return r.TotalTrades > 0 })
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.SharpeRatio != b.SharpeRatio {
			return a.SharpeRatio > b.SharpeRatio
		}
		if a.TotalReturnPct != b.TotalReturnPct {
			return a.TotalReturnPct > b.TotalReturnPct
		}
		return a.ComboIndex < b.ComboIndex
	})
	return result[:min(n, len(result))], nil
}

func (s *SweepResultStore) filter(sweepID string, keep func(*domain.SweepRow) bool) []*domain.SweepRow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SweepRow
	for k, r := range s.data {
		if k.sweepID == sweepID && keep(r) {
			rowCopy := *r
			result = append(result, &rowCopy)
		}
	}
	return result
}

var _ storage.SweepResultStore = (*SweepResultStore)(nil)
