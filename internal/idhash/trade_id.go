// Package idhash derives deterministic and random identifiers for runs,
// trades and sweep rows.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"rabbit-quant/internal/domain"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|symbol|direction|entry_time)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	runID string,
	symbol string,
	direction domain.Direction,
	entryTime int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		runID,
		symbol,
		string(direction),
		entryTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeParamsHash fingerprints a parameter tuple so identical sweep
// combinations map to the same key across runs.
// Formula: SHA256(hurst|chop|long|short|trailing|filter), 16 hex chars.
func ComputeParamsHash(p domain.StrategyParams) string {
	data := fmt.Sprintf("%.6f|%.6f|%.6f|%.6f|%.6f|%s",
		p.HurstThreshold,
		p.ChopThreshold,
		p.PhaseLong,
		p.PhaseShort,
		p.TrailingMultiplier,
		string(p.MacroFilter),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}
