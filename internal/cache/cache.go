// Package cache holds the latest signal per (symbol, timeframe) with an
// explicit time-to-live and refresh trigger.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/observability"
)

// ErrNoRefresher is returned by Refresh when the cache has no refresh function.
var ErrNoRefresher = errors.New("cache: no refresh function")

// RefreshFunc recomputes the full signal set.
type RefreshFunc func(ctx context.Context) ([]domain.SignalRecord, error)

type key struct {
	symbol    string
	timeframe string
}

type entry struct {
	rec      domain.SignalRecord
	storedAt time.Time
}

// SignalCache is safe for concurrent use. Concurrent Refresh calls share
// one invocation of the refresh function.
type SignalCache struct {
	ttl     time.Duration
	refresh RefreshFunc
	now     func() time.Time
	metrics *observability.Metrics

	group singleflight.Group

	mu          sync.RWMutex
	entries     map[key]entry
	lastRefresh time.Time
}

// New creates a cache whose entries expire after ttl. A zero ttl never
// expires entries.
func New(ttl time.Duration, refresh RefreshFunc) *SignalCache {
	return &SignalCache{
		ttl:     ttl,
		refresh: refresh,
		now:     time.Now,
		entries: make(map[key]entry),
	}
}

// WithClock sets a custom clock function.
func (c *SignalCache) WithClock(now func() time.Time) *SignalCache {
	c.now = now
	return c
}

// WithMetrics records refresh outcomes on m.
func (c *SignalCache) WithMetrics(m *observability.Metrics) *SignalCache {
	c.metrics = m
	return c
}

// TTL returns the configured time-to-live.
func (c *SignalCache) TTL() time.Duration { return c.ttl }

// Get returns the cached signal for (symbol, timeframe). Expired entries
// are reported as missing.
func (c *SignalCache) Get(symbol, timeframe string) (*domain.SignalRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key{symbol, timeframe}]
	if !ok || c.expired(e.storedAt) {
		return nil, false
	}
	rec := copyRecord(e.rec)
	return &rec, true
}

// Set stores rec, replacing any previous signal for its pair.
func (c *SignalCache) Set(rec domain.SignalRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{rec.Symbol, rec.Timeframe}] = entry{rec: copyRecord(rec), storedAt: c.now()}
}

// All returns the unexpired signals ordered by symbol, then timeframe.
func (c *SignalCache) All() []domain.SignalRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.SignalRecord, 0, len(c.entries))
	for _, e := range c.entries {
		if c.expired(e.storedAt) {
			continue
		}
		out = append(out, copyRecord(e.rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out
}

// Len returns the number of stored entries, expired or not.
func (c *SignalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LastRefresh returns the time of the last successful refresh, or the
// zero time if none happened.
func (c *SignalCache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Stale reports whether a refresh is due: never refreshed, or the last
// refresh is older than the TTL.
func (c *SignalCache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastRefresh.IsZero() {
		return true
	}
	return c.expired(c.lastRefresh)
}

// Refresh runs the refresh function and replaces the cache contents with
// its result. On error the previous contents are kept. Returns the number
// of cached signals.
func (c *SignalCache) Refresh(ctx context.Context) (int, error) {
	if c.refresh == nil {
		return 0, ErrNoRefresher
	}

	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		start := c.now()
		recs, err := c.refresh(ctx)
		if c.metrics != nil {
			c.metrics.RecordCacheRefresh(err == nil, c.now().Sub(start).Seconds())
		}
		if err != nil {
			return 0, err
		}

		now := c.now()
		entries := make(map[key]entry, len(recs))
		for _, rec := range recs {
			entries[key{rec.Symbol, rec.Timeframe}] = entry{rec: copyRecord(rec), storedAt: now}
		}

		c.mu.Lock()
		c.entries = entries
		c.lastRefresh = now
		c.mu.Unlock()
		return len(entries), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// RefreshIfStale refreshes only when Stale reports true.
func (c *SignalCache) RefreshIfStale(ctx context.Context) (bool, error) {
	if !c.Stale() {
		return false, nil
	}
	_, err := c.Refresh(ctx)
	return err == nil, err
}

// Run refreshes every interval until ctx is cancelled. Refresh errors are
// passed to onErr when it is non-nil.
func (c *SignalCache) Run(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Refresh(ctx); err != nil && onErr != nil && ctx.Err() == nil {
			onErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *SignalCache) expired(at time.Time) bool {
	return c.ttl > 0 && c.now().Sub(at) >= c.ttl
}

func copyRecord(r domain.SignalRecord) domain.SignalRecord {
	if r.Projection != nil {
		r.Projection = append([]float64(nil), r.Projection...)
	}
	return r
}
