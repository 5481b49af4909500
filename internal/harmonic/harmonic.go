// Package harmonic implements the natural-harmonic-series math at the core
// of the beacon: control-index → harmonic lookup tables, beacon/playable
// frequency derivation, and MIDI/Hz conversion helpers.
package harmonic

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnmappedControl is returned when a control index falls outside the
// active table's domain (e.g. a pad press beyond the 8x8 grid).
var ErrUnmappedControl = errors.New("control index outside table domain")

// Reference for MIDI note ↔ frequency conversion.
const (
	MIDIA4 = 69
	FreqA4 = 440.0
)

// -------------------- Lookup tables --------------------

// Table is an immutable control-index → harmonic-number mapping. A table is
// built once and swapped wholesale on mode change; it is never mutated, so
// voices already in flight keep the harmonic they were allocated with.
type Table struct {
	name      string
	harmonics []int
}

// Name returns the table's display name ("keyboard" or "pad").
func (t *Table) Name() string { return t.name }

// Size returns the number of mappable control indices.
func (t *Table) Size() int { return len(t.harmonics) }

// Harmonic maps a control index to its harmonic number n (n >= 1).
// Total over [0, Size); fails with ErrUnmappedControl otherwise.
func (t *Table) Harmonic(index int) (int, error) {
	if index < 0 || index >= len(t.harmonics) {
		return 0, fmt.Errorf("%s table index %d: %w", t.name, index, ErrUnmappedControl)
	}
	return t.harmonics[index], nil
}

// keyboardHarmonics maps a semitone offset from the anchor key (0-11) to a
// harmonic number, placing the odd harmonics on the keys whose equal-tempered
// pitch lies nearest the just interval:
//
//	C→1  C#→17  D→9  Eb→19  E→5  F→21  F#→11  G→3  Ab→13  A→27  Bb→7  B→15
var keyboardHarmonics = [12]int{1, 17, 9, 19, 5, 21, 11, 3, 13, 27, 7, 15}

// intervalNames names the just interval each keyboard offset lands on.
// Display/logging only.
var intervalNames = [12]string{
	"Fundamental", "Minor Second", "Major Second", "Harmonic m3",
	"Major Third", "Narrow Fourth", "Mystic Tritone", "Perfect Fifth",
	"Harmonic m6", "Major Sixth", "Harmonic Seventh", "Major Seventh",
}

// IntervalName returns the interval name for a keyboard offset (0-11).
func IntervalName(offset int) string {
	if offset < 0 || offset > 11 {
		return "?"
	}
	return intervalNames[offset]
}

// KeyboardTable returns the 12-entry keyboard mapping (semitone offset from
// the anchor key → harmonic).
func KeyboardTable() *Table {
	return &Table{name: "keyboard", harmonics: keyboardHarmonics[:]}
}

// PadTable returns the 64-entry pad mapping: grid position i → harmonic i+1.
func PadTable() *Table {
	h := make([]int, 64)
	for i := range h {
		h[i] = i + 1
	}
	return &Table{name: "pad", harmonics: h}
}

// -------------------- Frequency derivation --------------------

// BeaconFrequency is the raw harmonic frequency: f1 × n.
func BeaconFrequency(f1 float64, n int) float64 {
	return f1 * float64(n)
}

// OctaveReduce folds a harmonic number into [1, 2): it returns the reduced
// ratio n/2^x and the number of octaves x removed. n must be >= 1.
func OctaveReduce(n int) (ratio float64, octaves int) {
	ratio = float64(n)
	for ratio >= 2.0 {
		ratio /= 2.0
		octaves++
	}
	return ratio, octaves
}

// PlayableFrequency folds the harmonic into the octave directly above the
// fundamental: f1 × n / 2^x with n/2^x in [1, 2). For n a power of two the
// result is exactly f1.
func PlayableFrequency(f1 float64, n int) float64 {
	ratio, _ := OctaveReduce(n)
	return f1 * ratio
}

// -------------------- MIDI / Hz helpers --------------------

// FrequencyToMIDI converts a frequency to a fractional MIDI note number
// (69.5 = A4 + 50 cents). hz must be positive.
func FrequencyToMIDI(hz float64) float64 {
	return MIDIA4 + 12.0*math.Log2(hz/FreqA4)
}

// MIDIToFrequency converts a (fractional) MIDI note number to Hz.
func MIDIToFrequency(note float64) float64 {
	return FreqA4 * math.Pow(2.0, (note-MIDIA4)/12.0)
}

// Cents returns the signed distance from a to b in cents
// (1 cent = 1/100 semitone). Both must be positive.
func Cents(a, b float64) float64 {
	return 1200.0 * math.Log2(b/a)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats a MIDI note number as e.g. "C1" (MIDI 24).
func NoteName(note int) string {
	if note < 0 {
		return fmt.Sprintf("?\"%d\"", note)
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], (note/12)-1)
}
