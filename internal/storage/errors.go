// Package storage defines the store interfaces for bars, signals, backtest
// runs, trades and sweep rows, and the errors every implementation returns.
package storage

import "errors"

var (
	// ErrNotFound is returned when no bar, signal, run or row matches.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a batch contains a key that is
	// already stored. Stores are append-only; the whole batch is rejected.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned for nil records or empty keys.
	ErrInvalidInput = errors.New("invalid input")
)
