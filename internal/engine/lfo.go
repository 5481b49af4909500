package engine

import "math"

// VibratoMode selects how the vibrato moves between its extremes.
type VibratoMode int

const (
	VibratoSmooth  VibratoMode = iota // continuous triangle
	VibratoStepped                    // discrete jumps between the extremes
)

func (m VibratoMode) String() string {
	if m == VibratoStepped {
		return "stepped"
	}
	return "smooth"
}

// Vibrato is a low-rate oscillator applying a cents-scale offset to the
// effective fundamental each control tick. Depth 0 (the default) disables
// it entirely. It modulates the pitch of every active voice at once through
// the same recomputation path as CC-driven f1 modulation.
type Vibrato struct {
	DepthCents float64
	RateHz     float64
	Mode       VibratoMode
	phase      float64 // [0, 1)
}

// Active reports whether the vibrato contributes any modulation.
func (v *Vibrato) Active() bool {
	return v.DepthCents != 0 && v.RateHz != 0
}

// Advance moves the phase by dt seconds and returns the multiplicative
// factor to apply to f1: 2^(offset_cents/1200). Returns exactly 1 when
// inactive.
func (v *Vibrato) Advance(dt float64) float64 {
	if !v.Active() {
		return 1.0
	}
	v.phase += v.RateHz * dt
	v.phase -= math.Floor(v.phase)

	// Bipolar triangle: -1 at phase 0, +1 at phase 0.5.
	wave := 2.0*(1.0-math.Abs(2.0*v.phase-1.0)) - 1.0
	if v.Mode == VibratoStepped {
		switch {
		case wave > 0.33:
			wave = 1.0
		case wave < -0.33:
			wave = -1.0
		default:
			wave = 0.0
		}
	}
	return math.Pow(2.0, wave*v.DepthCents/1200.0)
}

// Reset zeros the phase.
func (v *Vibrato) Reset() { v.phase = 0 }
