package market

import (
	"errors"
	"fmt"
	"math"

	"rabbit-quant/internal/domain"
)

// ErrGap is returned when a series has missing bars.
var ErrGap = errors.New("gap in bar series")

// CheckContiguous verifies that bars are spaced exactly one timeframe apart.
func CheckContiguous(s *domain.PriceSeries) error {
	d, err := ParseTimeframe(s.Timeframe)
	if err != nil {
		return err
	}
	step := d.Milliseconds()
	for i := 1; i < len(s.Bars); i++ {
		if got := s.Bars[i].Timestamp - s.Bars[i-1].Timestamp; got != step {
			return fmt.Errorf("%s/%s bar %d: spacing %dms, want %dms: %w",
				s.Symbol, s.Timeframe, i, got, step, ErrGap)
		}
	}
	return nil
}

// Resample aggregates a gap-free series into a longer timeframe. Buckets are
// aligned to the Unix epoch and stamped with their open time:
// open=first, high=max, low=min, close=last, volume=sum. A trailing partial
// bucket is kept.
func Resample(s *domain.PriceSeries, target string) (*domain.PriceSeries, error) {
	src, err := ParseTimeframe(s.Timeframe)
	if err != nil {
		return nil, err
	}
	dst, err := ParseTimeframe(target)
	if err != nil {
		return nil, err
	}
	if dst < src || dst%src != 0 {
		return nil, fmt.Errorf("cannot resample %s to %s", s.Timeframe, target)
	}
	if err := CheckContiguous(s); err != nil {
		return nil, err
	}

	out := &domain.PriceSeries{Symbol: s.Symbol, Timeframe: target}
	bucketMs := dst.Milliseconds()

	for _, b := range s.Bars {
		start := b.Timestamp - mod(b.Timestamp, bucketMs)
		n := len(out.Bars)
		if n == 0 || out.Bars[n-1].Timestamp != start {
			out.Bars = append(out.Bars, domain.Bar{
				Symbol:    s.Symbol,
				Timeframe: target,
				Timestamp: start,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
			continue
		}
		agg := &out.Bars[n-1]
		agg.High = math.Max(agg.High, b.High)
		agg.Low = math.Min(agg.Low, b.Low)
		agg.Close = b.Close
		agg.Volume += b.Volume
	}
	return out, nil
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
