package signal

import (
	"math"

	"rabbit-quant/internal/domain"
)

// Default phase zones: troughs (3π/2) are long, peaks (π/2) are short.
const (
	DefaultLongCenter    = 3 * math.Pi / 2
	DefaultShortCenter   = math.Pi / 2
	DefaultZoneTolerance = math.Pi / 4
)

// PhaseZones holds the phase centres and half-width used to classify a phase.
type PhaseZones struct {
	LongCenter  float64
	ShortCenter float64
	Tolerance   float64
}

// DefaultPhaseZones returns the trough/peak zones used by Combine.
func DefaultPhaseZones() PhaseZones {
	return PhaseZones{
		LongCenter:  DefaultLongCenter,
		ShortCenter: DefaultShortCenter,
		Tolerance:   DefaultZoneTolerance,
	}
}

// InZone reports whether phase lies strictly within tol of center.
// The distance is linear, not circular, matching the engine.
func InZone(phase, center, tol float64) bool {
	return math.Abs(phase-center) < tol
}

// Classify maps a phase to a direction, ignoring persistence. The phase
// is wrapped into [0, 2π) first.
func (z PhaseZones) Classify(phase float64) domain.Direction {
	phase = wrapPhase(phase)
	switch {
	case InZone(phase, z.LongCenter, z.Tolerance):
		return domain.DirectionLong
	case InZone(phase, z.ShortCenter, z.Tolerance):
		return domain.DirectionShort
	default:
		return domain.DirectionNeutral
	}
}

// Combine returns the directional signal for a bar. Series whose Hurst
// exponent is below threshold are treated as mean-reverting noise and
// always yield NEUTRAL.
func Combine(phase, hurst, threshold float64) domain.Direction {
	if hurst < threshold {
		return domain.DirectionNeutral
	}
	return DefaultPhaseZones().Classify(phase)
}
