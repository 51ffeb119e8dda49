// Package signal computes trend-persistence, dominant-cycle and filter
// indicators from price arrays and combines them into directional signals.
//
// Every routine is a pure function over its inputs and safe for concurrent use.
package signal

import "errors"

// Markers returned alongside neutral values.
var (
	// ErrInsufficientData is returned when the input is shorter than a routine's minimum.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerate is returned when the input carries no measurable structure
	// (zero variance, no valid regression points).
	ErrDegenerate = errors.New("degenerate input")
)
