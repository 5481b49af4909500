package engine

import (
	"math"
	"testing"
)

func TestVibratoInactiveReturnsUnity(t *testing.T) {
	v := &Vibrato{}
	for i := 0; i < 10; i++ {
		if f := v.Advance(0.001); f != 1.0 {
			t.Fatalf("inactive vibrato factor: got %v, want 1", f)
		}
	}
	v = &Vibrato{DepthCents: 25, RateHz: 0}
	if f := v.Advance(0.001); f != 1.0 {
		t.Errorf("zero-rate vibrato factor: got %v, want 1", f)
	}
}

func TestVibratoFactorStaysWithinDepth(t *testing.T) {
	v := &Vibrato{DepthCents: 50, RateHz: 5, Mode: VibratoSmooth}
	maxFactor := math.Pow(2.0, 50.0/1200.0)
	minFactor := 1.0 / maxFactor
	for i := 0; i < 1000; i++ {
		f := v.Advance(0.001)
		if f > maxFactor+1e-9 || f < minFactor-1e-9 {
			t.Fatalf("step %d: factor %v outside [%v, %v]", i, f, minFactor, maxFactor)
		}
	}
}

func TestVibratoSweepsThroughFullRange(t *testing.T) {
	v := &Vibrato{DepthCents: 100, RateHz: 1, Mode: VibratoSmooth}
	lo, hi := math.Inf(1), math.Inf(-1)
	// One full cycle at 1 kHz control rate.
	for i := 0; i < 1000; i++ {
		f := v.Advance(0.001)
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	wantHi := math.Pow(2.0, 100.0/1200.0)
	if math.Abs(hi-wantHi) > 0.01 || math.Abs(lo-1.0/wantHi) > 0.01 {
		t.Errorf("sweep range: got [%v, %v], want [%v, %v]", lo, hi, 1.0/wantHi, wantHi)
	}
}

func TestVibratoSteppedQuantizes(t *testing.T) {
	v := &Vibrato{DepthCents: 100, RateHz: 1, Mode: VibratoStepped}
	allowed := map[float64]bool{
		math.Pow(2.0, 100.0/1200.0):  true,
		1.0:                          true,
		math.Pow(2.0, -100.0/1200.0): true,
	}
	for i := 0; i < 500; i++ {
		f := v.Advance(0.001)
		ok := false
		for a := range allowed {
			if math.Abs(f-a) < 1e-9 {
				ok = true
			}
		}
		if !ok {
			t.Fatalf("step %d: factor %v is not one of the three quantized levels", i, f)
		}
	}
}

func TestVibratoReset(t *testing.T) {
	v := &Vibrato{DepthCents: 50, RateHz: 2}
	v.Advance(0.1)
	v.Reset()
	if v.phase != 0 {
		t.Errorf("phase after reset: got %v, want 0", v.phase)
	}
}
