package engine

import (
	"errors"
	"fmt"

	"github.com/AlterMundi/NaturalHarmony/internal/harmonic"
)

// freqEps bounds broadcast volume during fundamental sweeps: a voice whose
// beacon frequency moved by no more than this emits no update.
const freqEps = 0.001

var (
	// ErrUnknownNote signals a note-off (or lookup) for a note with no
	// active voice. Logged, never fatal; a second note-off for the same
	// note is a no-op.
	ErrUnknownNote = errors.New("no active voice for note")

	// ErrDuplicateNote signals a note-on for an already-active note. The
	// allocator resolves it itself (release then reallocate); callers only
	// see it for logging.
	ErrDuplicateNote = errors.New("note already has an active voice")
)

// VoiceState is the lifecycle state of a voice slot.
type VoiceState int

const (
	VoiceActive VoiceState = iota
	VoiceReleasing
	VoiceFree
)

func (s VoiceState) String() string {
	switch s {
	case VoiceActive:
		return "active"
	case VoiceReleasing:
		return "releasing"
	default:
		return "free"
	}
}

// Voice is the dual-frequency voice pair driven by one held note. BeaconHz
// is the raw harmonic (f1 × n); PlayableHz is the same harmonic folded into
// the octave above the fundamental. Harmonic n is fixed for the voice's
// lifetime; only f1 moves the frequencies.
type Voice struct {
	ID         int
	Note       int
	Harmonic   int
	BeaconHz   float64
	PlayableHz float64
	Gain       float64
	State      VoiceState
}

// Allocator owns the voice collection exclusively. At most one active voice
// exists per physical note; all reads hand out copies, never aliases.
type Allocator struct {
	active   map[int]Voice // note → voice
	nextID   int
	lastNote int // most recently activated note, -1 when none
	emit     Emitter
}

// NewAllocator builds an empty allocator emitting into emit.
func NewAllocator(emit Emitter) *Allocator {
	return &Allocator{
		active:   make(map[int]Voice),
		lastNote: -1,
		emit:     emit,
	}
}

// NoteOn allocates a voice for note with harmonic n at fundamental f1 and
// emits voice-activated. A note that is already active is retriggered:
// the old voice is released (with its own voice-released emission) and a
// fresh voice allocated, so rapid on/on sequences can never leak or
// duplicate voices. The returned error is ErrDuplicateNote in that case,
// as a signal for logging only; the retrigger has already happened.
func (a *Allocator) NoteOn(note, velocity, n int, f1 float64) (Voice, error) {
	var retrig error
	if old, ok := a.active[note]; ok {
		old.State = VoiceFree
		delete(a.active, note)
		a.emit.VoiceReleased(old)
		retrig = fmt.Errorf("note %d: %w", note, ErrDuplicateNote)
	}

	v := Voice{
		ID:         a.nextID,
		Note:       note,
		Harmonic:   n,
		BeaconHz:   harmonic.BeaconFrequency(f1, n),
		PlayableHz: harmonic.PlayableFrequency(f1, n),
		Gain:       float64(velocity) / 127.0,
		State:      VoiceActive,
	}
	a.nextID++
	a.active[note] = v
	a.lastNote = note
	a.emit.VoiceActivated(v)
	return v, retrig
}

// NoteOff releases the voice for note and emits voice-released. Releasing a
// note with no active voice returns ErrUnknownNote and emits nothing, so a
// duplicate note-off is a harmless no-op.
func (a *Allocator) NoteOff(note int) (Voice, error) {
	v, ok := a.active[note]
	if !ok {
		return Voice{}, fmt.Errorf("note %d: %w", note, ErrUnknownNote)
	}
	v.State = VoiceFree
	delete(a.active, note)
	if a.lastNote == note {
		a.lastNote = -1
	}
	a.emit.VoiceReleased(v)
	return v, nil
}

// OnFundamentalChanged recomputes both frequencies of every active voice
// from the new f1 (each voice's harmonic is fixed) and emits one
// voice-frequency-updated per voice that actually moved by more than
// freqEps. Both frequencies of a voice always derive from the same f1; no
// caller can observe a half-updated pair.
func (a *Allocator) OnFundamentalChanged(f1 float64) int {
	updated := 0
	for note, v := range a.active {
		beacon := harmonic.BeaconFrequency(f1, v.Harmonic)
		if diff := beacon - v.BeaconHz; diff < freqEps && diff > -freqEps {
			continue
		}
		v.BeaconHz = beacon
		v.PlayableHz = harmonic.PlayableFrequency(f1, v.Harmonic)
		a.active[note] = v
		a.emit.VoiceFrequencyUpdated(v)
		updated++
	}
	return updated
}

// Panic releases every active voice unconditionally, emitting one
// voice-released per voice. O(active voices); cannot fail.
func (a *Allocator) Panic() int {
	released := len(a.active)
	for note, v := range a.active {
		v.State = VoiceFree
		delete(a.active, note)
		a.emit.VoiceReleased(v)
	}
	a.lastNote = -1
	return released
}

// ActiveCount returns the number of active voices (== held notes).
func (a *Allocator) ActiveCount() int { return len(a.active) }

// Active returns a copy of the voice for note, if one is active.
func (a *Allocator) Active(note int) (Voice, bool) {
	v, ok := a.active[note]
	return v, ok
}

// LastPlayed returns a copy of the most recently activated voice that is
// still active.
func (a *Allocator) LastPlayed() (Voice, bool) {
	if a.lastNote < 0 {
		return Voice{}, false
	}
	v, ok := a.active[a.lastNote]
	return v, ok
}
