// Package midibridge connects the physical MIDI controller to the engine.
// It owns the rtmidi driver, auto-connects to a preferred device, survives
// hot-plug and hot-unplug, and forwards note/CC/aftertouch events in
// arrival order, one at a time.
package midibridge

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Handler receives decoded MIDI events. The engine implements it; Panic is
// invoked when the device disappears so no voice is left stranded.
type Handler interface {
	NoteOn(note, velocity int)
	NoteOff(note int)
	ControlChange(controller, value int)
	Aftertouch(value int)
	Panic()
}

// defaultPreferred: devices matching any of these are picked first.
var defaultPreferred = []string{"KeyLab", "Launchpad", "Launchkey"}

// defaultExcluded: virtual/system ports that are never auto-connected.
var defaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

const rescanInterval = 1000 * time.Millisecond

// Watcher monitors available MIDI inputs and maintains a connection to the
// preferred device, dispatching everything it hears into the Handler.
type Watcher struct {
	mu           sync.Mutex
	drv          *rtmididrv.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	preferred []string
	excluded  []string

	handler Handler
	log     *slog.Logger
}

// NewWatcher creates a watcher and initialises the underlying rtmidi
// driver. portPattern, when non-empty, is prepended to the preferred
// device patterns. Call Close when done.
func NewWatcher(handler Handler, portPattern string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	preferred := defaultPreferred
	if portPattern != "" {
		preferred = append([]string{portPattern}, defaultPreferred...)
	}
	return &Watcher{
		drv:       drv,
		preferred: preferred,
		excluded:  defaultExcluded,
		handler:   handler,
		log:       log,
	}, nil
}

// Close shuts down the active MIDI connection and the rtmidi driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	w.drv.Close()
}

// ListPorts returns the names of all currently available MIDI inputs.
func (w *Watcher) ListPorts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ins, err := w.drv.Ins()
	if err != nil {
		w.log.Error("midi: list inputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// Connected reports whether a device is currently attached, and its name.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedName, w.connected
}

// Tick should be called on a regular interval from the main loop. It scans
// for devices, auto-connects to a preferred one, and detects
// disappearances.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < rescanInterval {
		return
	}
	w.lastRescanAt = now

	inputs := w.listInputs()

	if w.connected {
		for _, n := range inputs {
			if n == w.selectedName {
				return // still there, nothing to do
			}
		}
		// Device disappeared.
		w.log.Warn("midi: device disappeared", "device", w.selectedName)
		w.closeConn()
		w.lastRescanAt = time.Time{} // rescan immediately next tick
		go w.handler.Panic()
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := w.pickPreferred(inputs)
	if !ok {
		return
	}
	if err := w.openByName(cand); err != nil {
		w.log.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// -------------------- internal --------------------

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.log.Error("midi: list inputs failed", "err", err)
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		excluded := false
		for _, pat := range w.excluded {
			if containsCI(name, pat) {
				excluded = true
				break
			}
		}
		if excluded {
			w.log.Debug("midi: input excluded", "device", name)
		} else {
			names = append(names, name)
		}
	}
	w.log.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (w *Watcher) pickPreferred(inputs []string) (string, bool) {
	for _, pat := range w.preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.selectedName = ""
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		w.dispatch(msg)
	}, midi.HandleError(func(listenErr error) {
		w.log.Warn("midi: listener error", "device", name, "err", listenErr)
		// Must not call closeConn from within the listener goroutine, so
		// we dispatch to a new goroutine and re-acquire the mutex.
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.connected && w.selectedName == name {
				w.closeConn()
				w.lastRescanAt = time.Time{} // trigger immediate rescan
				go w.handler.Panic()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.inPort = found
	w.stopFn = stop
	w.connected = true
	w.selectedName = name
	w.log.Info("midi: connected", "device", name)
	return nil
}

// dispatch decodes one inbound message. Runs on the listener goroutine;
// the engine's own lock serialises it against the control tick.
func (w *Watcher) dispatch(msg midi.Message) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		w.log.Debug("midi: note on", "ch", ch, "key", key, "vel", vel)
		w.handler.NoteOn(int(key), int(vel))
	case msg.GetNoteEnd(&ch, &key):
		w.log.Debug("midi: note off", "ch", ch, "key", key)
		w.handler.NoteOff(int(key))
	case msg.GetControlChange(&ch, &cc, &val):
		w.log.Debug("midi: control change", "ch", ch, "cc", cc, "value", val)
		w.handler.ControlChange(int(cc), int(val))
	case msg.GetAfterTouch(&ch, &val):
		w.log.Debug("midi: aftertouch", "ch", ch, "value", val)
		w.handler.Aftertouch(int(val))
	default:
		w.log.Debug("midi: unhandled message", "msg", msg.String())
	}
}

// -------------------- utility --------------------

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
