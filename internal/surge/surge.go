// Package surge drives the Surge XT synthesizer over its OSC interface
// (v1.3+), using frequency-based notes for exact microtonal control:
//
//	/fnote frequency velocity noteID      → note on at frequency
//	/fnote/rel frequency velocity noteID  → note off
//	/ne/pitch noteID semitones            → per-note pitch expression
//	/allnotesoff                          → release everything sounding
//
// All numeric arguments must be float32.
package surge

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/AlterMundi/NaturalHarmony/internal/engine"
	"github.com/AlterMundi/NaturalHarmony/internal/harmonic"
)

const (
	addrNoteOn      = "/fnote"
	addrNoteOff     = "/fnote/rel"
	addrPitch       = "/ne/pitch"
	addrAllNotesOff = "/allnotesoff"
)

const queueDepth = 256

// Sender implements engine.Emitter toward Surge XT. Each engine voice fans
// out to two Surge notes, the beacon at note ID 2*voice and the playable at
// 2*voice+1, which is where the "two synthesized voices per key" live.
// Fundamental sweeps are delivered as pitch expressions relative to each
// note's onset frequency, so sounding notes slide instead of retriggering.
type Sender struct {
	client  *osc.Client
	queue   chan *osc.Message
	done    chan struct{}
	dropped atomic.Uint64
	log     *slog.Logger

	mu    sync.Mutex
	onset map[int][2]float64 // voice id → beacon/playable Hz at note-on
}

var _ engine.Emitter = (*Sender)(nil)

// New starts a sender targeting Surge XT at host:port.
func New(host string, port int, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	s := &Sender{
		client: osc.NewClient(host, port),
		queue:  make(chan *osc.Message, queueDepth),
		done:   make(chan struct{}),
		log:    log,
		onset:  make(map[int][2]float64),
	}
	go s.run()
	log.Info("surge: targeting synthesizer", "host", host, "port", port)
	return s
}

// Close flushes and stops the sender goroutine.
func (s *Sender) Close() {
	close(s.queue)
	<-s.done
	if n := s.dropped.Load(); n > 0 {
		s.log.Warn("surge: messages dropped during session", "count", n)
	}
}

// AllNotesOff tells Surge to release everything sounding. Used on shutdown
// so no note outlives the process.
func (s *Sender) AllNotesOff() {
	s.send(osc.NewMessage(addrAllNotesOff))
}

func (s *Sender) run() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.client.Send(msg); err != nil {
			s.log.Debug("surge: send failed", "addr", msg.Address, "err", err)
		}
	}
}

func (s *Sender) send(msg *osc.Message) {
	select {
	case s.queue <- msg:
	default:
		s.dropped.Add(1)
	}
}

func beaconNoteID(voiceID int) float32   { return float32(2 * voiceID) }
func playableNoteID(voiceID int) float32 { return float32(2*voiceID + 1) }

func (s *Sender) fnote(addr string, noteID, hz, velocity float32) {
	msg := osc.NewMessage(addr)
	msg.Append(hz)
	msg.Append(velocity)
	msg.Append(noteID)
	s.send(msg)
}

// -------------------- engine.Emitter --------------------

// FundamentalChanged is broadcast-only; sounding notes follow through
// per-voice frequency updates instead.
func (s *Sender) FundamentalChanged(float64) {}

func (s *Sender) AnchorChanged(int) {}

func (s *Sender) VoiceActivated(v engine.Voice) {
	s.mu.Lock()
	s.onset[v.ID] = [2]float64{v.BeaconHz, v.PlayableHz}
	s.mu.Unlock()

	vel := float32(v.Gain * 127.0)
	s.fnote(addrNoteOn, beaconNoteID(v.ID), float32(v.BeaconHz), vel)
	s.fnote(addrNoteOn, playableNoteID(v.ID), float32(v.PlayableHz), vel)
}

func (s *Sender) VoiceReleased(v engine.Voice) {
	s.mu.Lock()
	delete(s.onset, v.ID)
	s.mu.Unlock()

	s.fnote(addrNoteOff, beaconNoteID(v.ID), float32(v.BeaconHz), 0)
	s.fnote(addrNoteOff, playableNoteID(v.ID), float32(v.PlayableHz), 0)
}

func (s *Sender) VoiceFrequencyUpdated(v engine.Voice) {
	s.mu.Lock()
	onset, ok := s.onset[v.ID]
	s.mu.Unlock()
	if !ok {
		return
	}

	// Semitone offsets from the onset frequencies; both voices of the pair
	// share the same ratio, but Surge addresses them per note ID.
	beaconOffset := harmonic.FrequencyToMIDI(v.BeaconHz) - harmonic.FrequencyToMIDI(onset[0])
	playableOffset := harmonic.FrequencyToMIDI(v.PlayableHz) - harmonic.FrequencyToMIDI(onset[1])

	s.pitch(beaconNoteID(v.ID), float32(beaconOffset))
	s.pitch(playableNoteID(v.ID), float32(playableOffset))
}

func (s *Sender) pitch(noteID, semitones float32) {
	msg := osc.NewMessage(addrPitch)
	msg.Append(noteID)
	msg.Append(semitones)
	s.send(msg)
}

func (s *Sender) KeyOn(int, int)             {}
func (s *Sender) KeyOff(int)                 {}
func (s *Sender) ControllerChanged(int, int) {}
func (s *Sender) ModeChanged(bool)           {}
