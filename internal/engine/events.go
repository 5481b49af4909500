package engine

// Emitter receives every state change the engine produces, one call per
// event. Implementations must not block: the engine invokes these from the
// intake path and the control tick while holding its lock, so a slow
// collaborator has to buffer or drop on its own side.
type Emitter interface {
	FundamentalChanged(hz float64)
	AnchorChanged(note int)
	VoiceActivated(v Voice)
	VoiceReleased(v Voice)
	VoiceFrequencyUpdated(v Voice)
	KeyOn(note, velocity int)
	KeyOff(note int)
	ControllerChanged(controller, value int)
	ModeChanged(pad bool)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) FundamentalChanged(float64)  {}
func (NopEmitter) AnchorChanged(int)           {}
func (NopEmitter) VoiceActivated(Voice)        {}
func (NopEmitter) VoiceReleased(Voice)         {}
func (NopEmitter) VoiceFrequencyUpdated(Voice) {}
func (NopEmitter) KeyOn(int, int)              {}
func (NopEmitter) KeyOff(int)                  {}
func (NopEmitter) ControllerChanged(int, int)  {}
func (NopEmitter) ModeChanged(bool)            {}

type multiEmitter []Emitter

// Fanout combines several emitters into one; every event is delivered to
// each in order.
func Fanout(emitters ...Emitter) Emitter {
	if len(emitters) == 1 {
		return emitters[0]
	}
	return multiEmitter(emitters)
}

func (m multiEmitter) FundamentalChanged(hz float64) {
	for _, e := range m {
		e.FundamentalChanged(hz)
	}
}

func (m multiEmitter) AnchorChanged(note int) {
	for _, e := range m {
		e.AnchorChanged(note)
	}
}

func (m multiEmitter) VoiceActivated(v Voice) {
	for _, e := range m {
		e.VoiceActivated(v)
	}
}

func (m multiEmitter) VoiceReleased(v Voice) {
	for _, e := range m {
		e.VoiceReleased(v)
	}
}

func (m multiEmitter) VoiceFrequencyUpdated(v Voice) {
	for _, e := range m {
		e.VoiceFrequencyUpdated(v)
	}
}

func (m multiEmitter) KeyOn(note, velocity int) {
	for _, e := range m {
		e.KeyOn(note, velocity)
	}
}

func (m multiEmitter) KeyOff(note int) {
	for _, e := range m {
		e.KeyOff(note)
	}
}

func (m multiEmitter) ControllerChanged(controller, value int) {
	for _, e := range m {
		e.ControllerChanged(controller, value)
	}
}

func (m multiEmitter) ModeChanged(pad bool) {
	for _, e := range m {
		e.ModeChanged(pad)
	}
}
