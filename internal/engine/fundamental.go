package engine

// convergeEps is the band (Hz) within which the smoothed fundamental snaps
// to its target, bounding convergence to a finite number of ticks.
const convergeEps = 0.01

// Fundamental owns the shared base frequency f1. Targets arrive from
// continuous-controller input and the current value approaches them with an
// exponential smoothing step per control tick, so abrupt modulation never
// produces an audible frequency jump. min <= current <= max holds at all
// times; out-of-range targets are clamped, never rejected, since modulation
// hardware routinely sends extreme values.
type Fundamental struct {
	current float64
	target  float64
	min     float64
	max     float64
	rate    float64 // per-tick approach fraction, (0, 1]
}

// NewFundamental builds the controller with a clamped initial value.
func NewFundamental(initial, min, max, rate float64) *Fundamental {
	f := &Fundamental{min: min, max: max, rate: rate}
	f.current = f.clamp(initial)
	f.target = f.current
	return f
}

func (f *Fundamental) clamp(hz float64) float64 {
	if hz < f.min {
		return f.min
	}
	if hz > f.max {
		return f.max
	}
	return hz
}

// SetTarget sets the smoothing target, silently clamped to [min, max].
func (f *Fundamental) SetTarget(hz float64) {
	f.target = f.clamp(hz)
}

// SetTargetFromCC maps a 7-bit controller value (0-127) linearly onto
// [min, max] and sets it as the smoothing target.
func (f *Fundamental) SetTargetFromCC(value int) {
	norm := float64(value) / 127.0
	f.SetTarget(f.min + norm*(f.max-f.min))
}

// Set jumps both current and target instantly (clamped). Used by the anchor
// capture, where a slide would defeat the point of locking onto a sounding
// frequency.
func (f *Fundamental) Set(hz float64) {
	f.current = f.clamp(hz)
	f.target = f.current
}

// Tick advances current one smoothing step toward target and returns the
// new current. The step is current += (target-current)*rate, which is
// monotone and cannot overshoot for rate in (0, 1]; within convergeEps the
// value snaps to the target exactly.
func (f *Fundamental) Tick() float64 {
	d := f.target - f.current
	if d > -convergeEps && d < convergeEps {
		f.current = f.target
		return f.current
	}
	f.current += d * f.rate
	return f.current
}

// Current returns the smoothed value.
func (f *Fundamental) Current() float64 { return f.current }

// Target returns the value current is converging toward.
func (f *Fundamental) Target() float64 { return f.target }

// Stable reports whether current has reached target.
func (f *Fundamental) Stable() bool {
	d := f.target - f.current
	return d > -convergeEps && d < convergeEps
}

// Min and Max expose the clamp bounds.
func (f *Fundamental) Min() float64 { return f.min }
func (f *Fundamental) Max() float64 { return f.max }
