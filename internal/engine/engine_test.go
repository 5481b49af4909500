package engine

import (
	"math"
	"sync"
	"testing"
)

func newTestEngine() (*Engine, *recorder) {
	rec := &recorder{}
	return New(DefaultConfig(), rec, nil), rec
}

func TestKeyboardNoteOnMapsSemitoneOffset(t *testing.T) {
	e, rec := newTestEngine()

	// G2 (43) is offset 7 from the C1 anchor: the perfect fifth, n=3.
	e.NoteOn(43, 100)
	if len(rec.activated) != 1 {
		t.Fatalf("activated: got %d, want 1", len(rec.activated))
	}
	v := rec.activated[0]
	if v.Harmonic != 3 {
		t.Errorf("harmonic: got %d, want 3", v.Harmonic)
	}
	if v.BeaconHz != 162.0 || v.PlayableHz != 81.0 {
		t.Errorf("frequencies: got beacon %v playable %v, want 162/81", v.BeaconHz, v.PlayableHz)
	}
	if len(rec.keyOns) != 1 || rec.keyOns[0] != [2]int{43, 100} {
		t.Errorf("key-on events: got %v", rec.keyOns)
	}
}

func TestNoteOnVelocityZeroIsNoteOff(t *testing.T) {
	e, rec := newTestEngine()
	e.NoteOn(43, 100)
	e.NoteOn(43, 0)
	if e.ActiveVoices() != 0 {
		t.Fatalf("active: got %d, want 0", e.ActiveVoices())
	}
	if len(rec.released) != 1 || len(rec.keyOffs) != 1 {
		t.Errorf("released=%d keyOffs=%d, want 1/1", len(rec.released), len(rec.keyOffs))
	}
}

func TestNoteOffForUnknownNoteIsHarmless(t *testing.T) {
	e, rec := newTestEngine()
	e.NoteOff(43)
	e.NoteOff(43)
	if len(rec.released) != 0 || len(rec.keyOffs) != 0 {
		t.Errorf("no emissions expected, got released=%d keyOffs=%d", len(rec.released), len(rec.keyOffs))
	}
}

func TestNoteOutsideKeyboardRangeIsDropped(t *testing.T) {
	e, rec := newTestEngine()
	e.NoteOn(5, 100)   // below A0
	e.NoteOn(120, 100) // above C8
	if e.ActiveVoices() != 0 || len(rec.activated) != 0 {
		t.Errorf("out-of-range notes must not allocate voices")
	}
}

func TestModeToggleReleasesThenSwapsTable(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	for _, note := range []int{24, 43, 52} {
		e.NoteOn(note, 100)
	}
	if e.ActiveVoices() != 3 {
		t.Fatalf("active: got %d, want 3", e.ActiveVoices())
	}
	rec.reset()

	e.ControlChange(cfg.ModeToggleCC, 127)

	// Exactly 3 voice-released events, then zero active voices.
	if len(rec.released) != 3 {
		t.Fatalf("released events: got %d, want 3", len(rec.released))
	}
	if e.ActiveVoices() != 0 {
		t.Fatalf("active after toggle: got %d, want 0", e.ActiveVoices())
	}
	if e.Mode() != ModePad {
		t.Fatalf("mode: got %v, want pad", e.Mode())
	}
	if len(rec.modes) != 1 || rec.modes[0] != true {
		t.Errorf("mode-changed events: got %v, want [true]", rec.modes)
	}

	// Pad geometry: pad base note is index 0 → harmonic 1; top pad → 64.
	rec.reset()
	e.NoteOn(cfg.PadBaseNote, 100)
	e.NoteOn(cfg.PadBaseNote+63, 100)
	if len(rec.activated) != 2 {
		t.Fatalf("pad activations: got %d, want 2", len(rec.activated))
	}
	if rec.activated[0].Harmonic != 1 || rec.activated[1].Harmonic != 64 {
		t.Errorf("pad harmonics: got %d and %d, want 1 and 64",
			rec.activated[0].Harmonic, rec.activated[1].Harmonic)
	}

	// A press beyond the grid is unmapped.
	rec.reset()
	e.NoteOn(cfg.PadBaseNote-1, 100)
	e.NoteOn(cfg.PadBaseNote+64, 100)
	if len(rec.activated) != 0 {
		t.Errorf("presses beyond the grid must not allocate voices")
	}
}

func TestModeToggleIsEdgeTriggered(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.ControlChange(cfg.ModeToggleCC, 127)
	e.ControlChange(cfg.ModeToggleCC, 127) // held: no retrigger
	e.ControlChange(cfg.ModeToggleCC, 100) // still high: no retrigger
	if len(rec.modes) != 1 {
		t.Fatalf("mode-changed events: got %d, want 1", len(rec.modes))
	}
	e.ControlChange(cfg.ModeToggleCC, 0)   // release the edge
	e.ControlChange(cfg.ModeToggleCC, 127) // second press toggles back
	if len(rec.modes) != 2 || rec.modes[1] != false {
		t.Fatalf("mode-changed events: got %v, want [true false]", rec.modes)
	}
	if e.Mode() != ModeKeyboard {
		t.Errorf("mode: got %v, want keyboard", e.Mode())
	}
}

func TestPanicCCIsEdgeDebounced(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.NoteOn(43, 100)
	rec.reset()

	e.ControlChange(cfg.PanicCC, 127)
	if len(rec.released) != 1 || e.ActiveVoices() != 0 {
		t.Fatalf("panic: released=%d active=%d", len(rec.released), e.ActiveVoices())
	}

	// Held/repeated high values fire nothing further, even with a new voice.
	e.NoteOn(43, 100)
	rec.reset()
	e.ControlChange(cfg.PanicCC, 127)
	e.ControlChange(cfg.PanicCC, 90)
	if len(rec.released) != 0 {
		t.Fatalf("held panic retriggered: %d released", len(rec.released))
	}

	// After the edge drops, the next press fires again.
	e.ControlChange(cfg.PanicCC, 0)
	e.ControlChange(cfg.PanicCC, 127)
	if len(rec.released) != 1 {
		t.Fatalf("re-armed panic: got %d released, want 1", len(rec.released))
	}
}

func TestFundamentalCCSmoothsIntoVoices(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.NoteOn(43, 100) // n=3, beacon 162 at f1=54
	rec.reset()

	e.ControlChange(cfg.FundamentalCC, 127) // target 220 Hz
	if len(rec.fundamentals) != 1 || rec.fundamentals[0] != 220.0 {
		t.Fatalf("fundamental-changed: got %v, want [220]", rec.fundamentals)
	}
	if len(rec.controllers) != 1 || rec.controllers[0] != [2]int{cfg.FundamentalCC, 127} {
		t.Errorf("controller-changed: got %v", rec.controllers)
	}

	// Ticks move the voice smoothly upward, never past the target.
	prev := 162.0
	for i := 0; i < 500; i++ {
		e.Tick(0.001)
	}
	if len(rec.updated) == 0 {
		t.Fatal("no frequency updates after ticking toward a new target")
	}
	for _, v := range rec.updated {
		if v.BeaconHz < prev-1e-9 || v.BeaconHz > 3*220.0+1e-9 {
			t.Fatalf("beacon %v regressed or overshot (prev %v)", v.BeaconHz, prev)
		}
		prev = v.BeaconHz
	}
	final := rec.updated[len(rec.updated)-1]
	if math.Abs(final.BeaconHz-660.0) > 0.1 {
		t.Errorf("final beacon: got %v, want ~660", final.BeaconHz)
	}
	if final.PlayableHz < 220.0-0.1 || final.PlayableHz >= 440.0 {
		t.Errorf("final playable %v outside the fundamental octave", final.PlayableHz)
	}
}

func TestPanicThenTickEmitsNoUpdates(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.NoteOn(43, 100)
	e.ControlChange(cfg.FundamentalCC, 127)
	e.Panic()
	rec.reset()

	for i := 0; i < 200; i++ {
		e.Tick(0.001)
	}
	if len(rec.updated) != 0 {
		t.Fatalf("post-panic updates: got %d, want 0", len(rec.updated))
	}
}

func TestAftertouchCapturesFundamental(t *testing.T) {
	e, rec := newTestEngine()

	e.NoteOn(43, 100) // n=3, beacon 162, inside [27.5, 220]
	rec.reset()

	e.Aftertouch(127)
	if len(rec.fundamentals) != 1 || rec.fundamentals[0] != 162.0 {
		t.Fatalf("captured f1: got %v, want [162]", rec.fundamentals)
	}
	if got := e.Fundamental(); got != 162.0 {
		t.Fatalf("fundamental after capture: got %v, want 162 (instant, no slide)", got)
	}
	// The held voice follows immediately: beacon 162*3 = 486.
	if len(rec.updated) != 1 || math.Abs(rec.updated[0].BeaconHz-486.0) > 1e-9 {
		t.Fatalf("retuned voice: got %v", rec.updated)
	}
	// No anchor movement outside key-anchor mode.
	if len(rec.anchors) != 0 {
		t.Errorf("anchor events: got %v, want none", rec.anchors)
	}
}

func TestAftertouchBelowThresholdIgnored(t *testing.T) {
	e, rec := newTestEngine()
	e.NoteOn(43, 100)
	rec.reset()
	e.Aftertouch(10)
	if len(rec.fundamentals) != 0 {
		t.Errorf("sub-threshold aftertouch changed f1: %v", rec.fundamentals)
	}
}

func TestKeyAnchorModeMovesAnchor(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.ControlChange(cfg.AnchorModeCC, 127)
	e.NoteOn(43, 100)
	rec.reset()

	e.Aftertouch(127)
	if len(rec.anchors) != 1 || rec.anchors[0] != 43 {
		t.Fatalf("anchor-changed: got %v, want [43]", rec.anchors)
	}
	if e.Anchor() != 43 {
		t.Fatalf("anchor: got %d, want 43", e.Anchor())
	}
	// The captured key is now the fundamental: offset 0 → n=1.
	e.NoteOff(43)
	rec.reset()
	e.NoteOn(43, 100)
	if len(rec.activated) != 1 || rec.activated[0].Harmonic != 1 {
		t.Fatalf("re-anchored note: got %v, want n=1", rec.activated)
	}
}

func TestAftertouchDisableToggle(t *testing.T) {
	e, rec := newTestEngine()
	cfg := DefaultConfig()

	e.NoteOn(43, 100)
	e.ControlChange(cfg.AftertouchCC, 0) // disable
	rec.reset()
	e.Aftertouch(127)
	if len(rec.fundamentals) != 0 {
		t.Errorf("disabled aftertouch changed f1: %v", rec.fundamentals)
	}
}

func TestMalformedInputIsDroppedAndCounted(t *testing.T) {
	e, rec := newTestEngine()
	e.NoteOn(300, 100)
	e.NoteOn(43, 200)
	e.ControlChange(-1, 64)
	e.ControlChange(1, 300)
	if len(rec.activated) != 0 || len(rec.controllers) != 0 {
		t.Errorf("malformed input produced events")
	}
	if e.Malformed() != 4 {
		t.Errorf("malformed count: got %d, want 4", e.Malformed())
	}
}

func TestVibratoRateCCDrivesRetuning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VibratoDepthCents = 25
	rec := &recorder{}
	e := New(cfg, rec, nil)

	e.NoteOn(43, 100)
	e.ControlChange(cfg.VibratoRateCC, 64) // mid-range rate
	rec.reset()

	for i := 0; i < 1000; i++ {
		e.Tick(0.001)
	}
	if len(rec.updated) == 0 {
		t.Fatal("active vibrato produced no frequency updates")
	}
	// Every update stays within the vibrato depth around beacon 162.
	lim := math.Pow(2.0, 25.0/1200.0)
	for _, v := range rec.updated {
		if v.BeaconHz > 162.0*lim+1e-6 || v.BeaconHz < 162.0/lim-1e-6 {
			t.Fatalf("beacon %v outside vibrato band", v.BeaconHz)
		}
	}
}

func TestConcurrentIntakeAndPanic(t *testing.T) {
	e, _ := newTestEngine()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.NoteOn(24+(i%12), 100)
			e.NoteOff(24 + (i % 12))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.Tick(0.001)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			e.Panic()
		}
	}()
	wg.Wait()

	// A final panic wins over anything in flight: no voices remain.
	e.Panic()
	if e.ActiveVoices() != 0 {
		t.Fatalf("active after final panic: got %d", e.ActiveVoices())
	}
}
