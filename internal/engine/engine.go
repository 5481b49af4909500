// Package engine implements the real-time harmonic voice engine: the
// mapping from physical control to harmonic number, dual-voice frequency
// derivation, polyphonic voice lifecycle, and continuous glitch-free
// modulation of the shared fundamental.
package engine

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/AlterMundi/NaturalHarmony/internal/harmonic"
)

// -------------------- Mode --------------------

// Mode selects the active control-to-harmonic geometry.
type Mode int

const (
	ModeKeyboard Mode = iota // 12-key table, semitone offset from anchor
	ModePad                  // 8x8 grid, identity harmonics 1..64
)

func (m Mode) String() string {
	if m == ModePad {
		return "pad"
	}
	return "keyboard"
}

// -------------------- Configuration --------------------

// Config is the static configuration the engine consumes at construction.
// It is never re-read at runtime; all later changes arrive through the
// explicit event operations.
type Config struct {
	InitialF1     float64 // default 54 Hz, between A1 and Bb1
	F1Min         float64 // default 27.5 Hz (A0)
	F1Max         float64 // default 220 Hz (A3)
	SmoothingRate float64 // per-tick approach fraction for f1

	AnchorNote   int // MIDI note representing f1 in keyboard mode (C1)
	KeyboardLow  int // lowest mapped note (A0)
	KeyboardHigh int // highest mapped note (C8)
	PadBaseNote  int // note of pad index 0

	FundamentalCC int // f1 modulation (mod wheel)
	PanicCC       int // panic trigger
	ModeToggleCC  int // keyboard/pad toggle
	VibratoRateCC int // vibrato rate
	VibratoModeCC int // smooth/stepped toggle
	AnchorModeCC  int // aftertouch anchor-follow toggle
	AftertouchCC  int // aftertouch enable toggle

	VibratoRateMin float64
	VibratoRateMax float64

	// VibratoDepthCents sets the vibrato excursion; 0 disables the LFO
	// entirely and the rate CC has no audible effect.
	VibratoDepthCents float64

	AftertouchThreshold int // minimum pressure to trigger anchor capture

	InitialMode Mode
}

// DefaultConfig mirrors the hardware setup the beacon was built around
// (KeyLab keyboard, Launchpad-style 8x8 grid).
func DefaultConfig() Config {
	return Config{
		InitialF1:     54.0,
		F1Min:         27.5,
		F1Max:         220.0,
		SmoothingRate: 0.1,

		AnchorNote:   24, // C1
		KeyboardLow:  21, // A0
		KeyboardHigh: 108,
		PadBaseNote:  36,

		FundamentalCC: 1,
		PanicCC:       111,
		ModeToggleCC:  31,
		VibratoRateCC: 68,
		VibratoModeCC: 23,
		AnchorModeCC:  22,
		AftertouchCC:  30,

		VibratoRateMin: 0.1,
		VibratoRateMax: 10.0,

		AftertouchThreshold: 64,

		InitialMode: ModeKeyboard,
	}
}

// -------------------- Engine --------------------

// Engine ties the fundamental controller, voice allocator, mode controller
// and panic handling behind a single mutual-exclusion boundary. The MIDI
// intake path (NoteOn/NoteOff/ControlChange/Aftertouch) and the fixed-rate
// control tick may run on different goroutines; no caller ever observes a
// torn intermediate state.
type Engine struct {
	mu sync.Mutex

	cfg  Config
	log  *slog.Logger
	emit Emitter

	fundamental *Fundamental
	voices      *Allocator
	vibrato     Vibrato

	mode   Mode
	table  *harmonic.Table
	anchor int

	keyAnchorMode bool // aftertouch also moves the keyboard anchor
	aftertouchOn  bool

	// Edge state for the debounced triggers: a held or repeated high value
	// fires only once until it drops low again.
	panicHigh bool
	modeHigh  bool

	// Last f1 (with vibrato applied) the voices were computed from.
	lastEffective float64

	malformed int // dropped malformed input events
}

// New constructs the engine. emit receives every resulting event; it must
// not block.
func New(cfg Config, emit Emitter, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg:          cfg,
		log:          log,
		emit:         emit,
		fundamental:  NewFundamental(cfg.InitialF1, cfg.F1Min, cfg.F1Max, cfg.SmoothingRate),
		mode:         cfg.InitialMode,
		anchor:       cfg.AnchorNote,
		aftertouchOn: true,
	}
	e.vibrato.DepthCents = cfg.VibratoDepthCents
	e.vibrato.RateHz = cfg.VibratoRateMin
	e.voices = NewAllocator(emit)
	e.table = tableFor(e.mode)
	e.lastEffective = e.fundamental.Current()
	return e
}

func tableFor(m Mode) *harmonic.Table {
	if m == ModePad {
		return harmonic.PadTable()
	}
	return harmonic.KeyboardTable()
}

// controlIndex maps a MIDI note to the active table's index domain.
func (e *Engine) controlIndex(note int) (int, error) {
	if e.mode == ModePad {
		return note - e.cfg.PadBaseNote, nil
	}
	if note < e.cfg.KeyboardLow || note > e.cfg.KeyboardHigh {
		return 0, harmonic.ErrUnmappedControl
	}
	return ((note-e.anchor)%12 + 12) % 12, nil
}

// -------------------- Intake path --------------------

// NoteOn handles an inbound note-on. Velocity 0 is the running-status
// note-off encoding and is routed accordingly; out-of-range values are
// dropped as malformed.
func (e *Engine) NoteOn(note, velocity int) {
	if velocity == 0 {
		e.NoteOff(note)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if note < 0 || note > 127 || velocity < 0 || velocity > 127 {
		e.malformed++
		e.log.Warn("engine: malformed note-on dropped", "note", note, "velocity", velocity)
		return
	}

	idx, err := e.controlIndex(note)
	var n int
	if err == nil {
		n, err = e.table.Harmonic(idx)
	}
	if err != nil {
		if errors.Is(err, harmonic.ErrUnmappedControl) {
			e.log.Warn("engine: note outside active table",
				"note", harmonic.NoteName(note), "mode", e.mode.String())
		} else {
			e.log.Warn("engine: harmonic lookup failed", "note", note, "err", err)
		}
		return
	}

	e.emit.KeyOn(note, velocity)
	v, retrig := e.voices.NoteOn(note, velocity, n, e.lastEffective)
	if retrig != nil {
		e.log.Info("engine: note retriggered", "note", harmonic.NoteName(note), "err", retrig)
	}
	e.log.Info("engine: voice activated",
		"note", harmonic.NoteName(note),
		"harmonic", v.Harmonic,
		"beacon_hz", v.BeaconHz,
		"playable_hz", v.PlayableHz,
		"gain", v.Gain,
		"voice_id", v.ID,
		"active", e.voices.ActiveCount(),
	)
}

// NoteOff handles an inbound note-off. A note with no active voice is a
// logged no-op.
func (e *Engine) NoteOff(note int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.voices.NoteOff(note)
	if err != nil {
		e.log.Debug("engine: note-off for inactive note", "note", harmonic.NoteName(note), "err", err)
		return
	}
	e.emit.KeyOff(note)
	e.log.Info("engine: voice released",
		"note", harmonic.NoteName(note),
		"voice_id", v.ID,
		"active", e.voices.ActiveCount(),
	)
}

// ControlChange handles an inbound continuous-controller event and routes
// it to the control it is bound to. Every in-range CC is re-broadcast as
// controller-changed regardless of binding.
func (e *Engine) ControlChange(controller, value int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if controller < 0 || controller > 127 || value < 0 || value > 127 {
		e.malformed++
		e.log.Warn("engine: malformed CC dropped", "controller", controller, "value", value)
		return
	}
	e.emit.ControllerChanged(controller, value)

	high := value >= 64
	switch controller {
	case e.cfg.FundamentalCC:
		e.fundamental.SetTargetFromCC(value)
		e.emit.FundamentalChanged(e.fundamental.Target())
		e.log.Debug("engine: f1 target", "target_hz", e.fundamental.Target(), "cc_value", value)

	case e.cfg.PanicCC:
		if high && !e.panicHigh {
			e.panicLocked("panic trigger")
		}
		e.panicHigh = high

	case e.cfg.ModeToggleCC:
		if high && !e.modeHigh {
			e.toggleModeLocked()
		}
		e.modeHigh = high

	case e.cfg.VibratoRateCC:
		norm := float64(value) / 127.0
		e.vibrato.RateHz = e.cfg.VibratoRateMin + norm*(e.cfg.VibratoRateMax-e.cfg.VibratoRateMin)
		e.log.Debug("engine: vibrato rate", "rate_hz", e.vibrato.RateHz)

	case e.cfg.VibratoModeCC:
		mode := VibratoSmooth
		if high {
			mode = VibratoStepped
		}
		if mode != e.vibrato.Mode {
			e.vibrato.Mode = mode
			e.log.Info("engine: vibrato mode", "mode", mode.String())
		}

	case e.cfg.AnchorModeCC:
		if high != e.keyAnchorMode {
			e.keyAnchorMode = high
			e.log.Info("engine: key-anchor mode", "enabled", high)
		}

	case e.cfg.AftertouchCC:
		if high != e.aftertouchOn {
			e.aftertouchOn = high
			e.log.Info("engine: aftertouch", "enabled", high)
		}
	}
}

// Aftertouch handles channel pressure: above the configured threshold it
// captures the most recently played voice's beacon frequency as the new f1,
// folded by octaves into the allowed range and set instantly (no slide).
// In key-anchor mode the pressed note also becomes the keyboard anchor.
func (e *Engine) Aftertouch(value int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.aftertouchOn || value < e.cfg.AftertouchThreshold {
		return
	}
	v, ok := e.voices.LastPlayed()
	if !ok {
		return
	}

	f1 := v.BeaconHz
	for f1 < e.fundamental.Min() {
		f1 *= 2.0
	}
	for f1 > e.fundamental.Max() {
		f1 /= 2.0
	}
	e.fundamental.Set(f1)
	e.emit.FundamentalChanged(f1)

	if e.keyAnchorMode && e.mode == ModeKeyboard {
		e.anchor = v.Note
		e.emit.AnchorChanged(v.Note)
		e.log.Info("engine: anchor captured",
			"anchor", harmonic.NoteName(v.Note), "f1_hz", f1)
	} else {
		e.log.Info("engine: f1 captured", "from", harmonic.NoteName(v.Note), "f1_hz", f1)
	}

	e.refreshVoicesLocked(f1)
}

// -------------------- Control tick --------------------

// Tick runs one fixed-rate control step: advance the f1 smoothing, apply
// the vibrato, and recompute every active voice whose effective fundamental
// moved. dt is the elapsed time since the previous tick in seconds. O(active
// voices), no blocking.
func (e *Engine) Tick(dt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	effective := e.fundamental.Tick() * e.vibrato.Advance(dt)
	e.refreshVoicesLocked(effective)
}

func (e *Engine) refreshVoicesLocked(effective float64) {
	if d := effective - e.lastEffective; d < convergeEps && d > -convergeEps {
		return
	}
	e.lastEffective = effective
	updated := e.voices.OnFundamentalChanged(effective)
	if updated > 0 {
		e.log.Debug("engine: voices retuned", "f1_hz", effective, "updated", updated)
	}
}

// -------------------- Panic and mode --------------------

// Panic releases every active voice immediately. Safe to call from any
// goroutine (the MIDI bridge invokes it on device unplug) and always takes
// precedence over racing note events: afterwards the voice is absent.
func (e *Engine) Panic() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.panicLocked("external")
}

func (e *Engine) panicLocked(reason string) {
	released := e.voices.Panic()
	e.log.Info("engine: panic — all voices released", "reason", reason, "released", released)
}

func (e *Engine) toggleModeLocked() {
	// Panic first: voices allocated from the outgoing table must not
	// survive into a geometry that no longer maps them.
	e.panicLocked("mode change")

	if e.mode == ModeKeyboard {
		e.mode = ModePad
	} else {
		e.mode = ModeKeyboard
	}
	e.table = tableFor(e.mode)
	e.emit.ModeChanged(e.mode == ModePad)
	e.log.Info("engine: mode changed", "mode", e.mode.String(), "table_size", e.table.Size())
}

// -------------------- Snapshots --------------------

// Mode returns the active mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// ActiveVoices returns the number of currently active voices.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices.ActiveCount()
}

// Fundamental returns the current smoothed f1.
func (e *Engine) Fundamental() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fundamental.Current()
}

// Anchor returns the keyboard anchor note.
func (e *Engine) Anchor() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anchor
}

// Malformed returns the count of dropped malformed input events.
func (e *Engine) Malformed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.malformed
}
