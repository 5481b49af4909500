// Package broadcast publishes every engine state change to the visualizer
// over OSC/UDP. The visualizer is a pure reflector of this stream; the
// addresses and argument layouts here are the contract it depends on.
package broadcast

import (
	"log/slog"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/AlterMundi/NaturalHarmony/internal/engine"
)

// OSC address patterns of the broadcast contract.
const (
	AddrFundamental = "/beacon/f1"
	AddrAnchor      = "/beacon/anchor"
	AddrVoiceOn     = "/beacon/voice/on"
	AddrVoiceOff    = "/beacon/voice/off"
	AddrVoiceFreq   = "/beacon/voice/freq"
	AddrKeyOn       = "/beacon/key/on"
	AddrKeyOff      = "/beacon/key/off"
	AddrCC          = "/beacon/cc"
	AddrPadMode     = "/beacon/mode/pad"
)

// queueDepth bounds how many pending messages a slow consumer can pile up
// before the broadcaster starts dropping.
const queueDepth = 256

// -------------------- Message encoding --------------------

func message(addr string, args ...interface{}) *osc.Message {
	msg := osc.NewMessage(addr)
	for _, a := range args {
		msg.Append(a)
	}
	return msg
}

func fundamentalMsg(hz float64) *osc.Message {
	return message(AddrFundamental, float32(hz))
}

func anchorMsg(note int) *osc.Message {
	return message(AddrAnchor, int32(note))
}

func voiceOnMsg(v engine.Voice) *osc.Message {
	return message(AddrVoiceOn,
		int32(v.ID), float32(v.BeaconHz), float32(v.PlayableHz),
		float32(v.Gain), int32(v.Note), int32(v.Harmonic))
}

func voiceOffMsg(v engine.Voice) *osc.Message {
	return message(AddrVoiceOff, int32(v.ID))
}

func voiceFreqMsg(v engine.Voice) *osc.Message {
	return message(AddrVoiceFreq, int32(v.ID), float32(v.BeaconHz), float32(v.PlayableHz))
}

func keyOnMsg(note, velocity int) *osc.Message {
	return message(AddrKeyOn, int32(note), int32(velocity))
}

func keyOffMsg(note int) *osc.Message {
	return message(AddrKeyOff, int32(note))
}

func ccMsg(controller, value int) *osc.Message {
	return message(AddrCC, int32(controller), int32(value))
}

func padModeMsg(pad bool) *osc.Message {
	enabled := int32(0)
	if pad {
		enabled = 1
	}
	return message(AddrPadMode, enabled)
}

// -------------------- Broadcaster --------------------

// Broadcaster implements engine.Emitter over a UDP OSC client. Emits are
// queued to a sender goroutine and dropped when the queue is full, so a
// slow or absent visualizer can never stall the engine's control tick.
type Broadcaster struct {
	client  *osc.Client
	queue   chan *osc.Message
	done    chan struct{}
	dropped atomic.Uint64
	log     *slog.Logger
}

var _ engine.Emitter = (*Broadcaster)(nil)

// New starts a broadcaster targeting host:port.
func New(host string, port int, log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	b := &Broadcaster{
		client: osc.NewClient(host, port),
		queue:  make(chan *osc.Message, queueDepth),
		done:   make(chan struct{}),
		log:    log,
	}
	go b.run()
	log.Info("broadcast: publishing state", "host", host, "port", port)
	return b
}

// Close stops the sender goroutine. Messages still queued are flushed.
func (b *Broadcaster) Close() {
	close(b.queue)
	<-b.done
	if n := b.dropped.Load(); n > 0 {
		b.log.Warn("broadcast: messages dropped during session", "count", n)
	}
}

// Dropped returns the number of messages discarded because the queue was
// full.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) run() {
	defer close(b.done)
	for msg := range b.queue {
		if err := b.client.Send(msg); err != nil {
			// UDP to an absent consumer: keep going.
			b.log.Debug("broadcast: send failed", "addr", msg.Address, "err", err)
		}
	}
}

// send enqueues without ever blocking the caller.
func (b *Broadcaster) send(msg *osc.Message) {
	select {
	case b.queue <- msg:
	default:
		b.dropped.Add(1)
	}
}

// -------------------- engine.Emitter --------------------

func (b *Broadcaster) FundamentalChanged(hz float64)        { b.send(fundamentalMsg(hz)) }
func (b *Broadcaster) AnchorChanged(note int)               { b.send(anchorMsg(note)) }
func (b *Broadcaster) VoiceActivated(v engine.Voice)        { b.send(voiceOnMsg(v)) }
func (b *Broadcaster) VoiceReleased(v engine.Voice)         { b.send(voiceOffMsg(v)) }
func (b *Broadcaster) VoiceFrequencyUpdated(v engine.Voice) { b.send(voiceFreqMsg(v)) }
func (b *Broadcaster) KeyOn(note, velocity int)             { b.send(keyOnMsg(note, velocity)) }
func (b *Broadcaster) KeyOff(note int)                      { b.send(keyOffMsg(note)) }
func (b *Broadcaster) ControllerChanged(cc, value int)      { b.send(ccMsg(cc, value)) }
func (b *Broadcaster) ModeChanged(pad bool)                 { b.send(padModeMsg(pad)) }
