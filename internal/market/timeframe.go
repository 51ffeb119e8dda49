// Package market holds bar-series utilities: timeframes, resampling,
// alignment across symbols and synthetic series for fixtures and tests.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownTimeframe is returned for timeframe strings outside SupportedTimeframes.
var ErrUnknownTimeframe = errors.New("unknown timeframe")

var timeframes = []struct {
	name string
	dur  time.Duration
}{
	{"1m", time.Minute},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
	{"1h", time.Hour},
	{"4h", 4 * time.Hour},
	{"1d", 24 * time.Hour},
}

// SupportedTimeframes lists timeframes from shortest to longest.
func SupportedTimeframes() []string {
	out := make([]string, len(timeframes))
	for i, tf := range timeframes {
		out[i] = tf.name
	}
	return out
}

// ParseTimeframe returns the bar duration of a timeframe string.
func ParseTimeframe(tf string) (time.Duration, error) {
	for _, t := range timeframes {
		if t.name == tf {
			return t.dur, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTimeframe, tf)
}

// BarsPerYear returns the number of bars in a 365-day year of continuous
// trading, used to annualise per-bar statistics.
func BarsPerYear(tf string) (float64, error) {
	d, err := ParseTimeframe(tf)
	if err != nil {
		return 0, err
	}
	return float64(365*24*time.Hour) / float64(d), nil
}
