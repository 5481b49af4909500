package engine

// recorder is an Emitter that captures every event for assertions.
type recorder struct {
	fundamentals []float64
	anchors      []int
	activated    []Voice
	released     []Voice
	updated      []Voice
	keyOns       [][2]int
	keyOffs      []int
	controllers  [][2]int
	modes        []bool
}

func (r *recorder) FundamentalChanged(hz float64) { r.fundamentals = append(r.fundamentals, hz) }
func (r *recorder) AnchorChanged(note int)        { r.anchors = append(r.anchors, note) }
func (r *recorder) VoiceActivated(v Voice)        { r.activated = append(r.activated, v) }
func (r *recorder) VoiceReleased(v Voice)         { r.released = append(r.released, v) }
func (r *recorder) VoiceFrequencyUpdated(v Voice) { r.updated = append(r.updated, v) }
func (r *recorder) KeyOn(note, velocity int)      { r.keyOns = append(r.keyOns, [2]int{note, velocity}) }
func (r *recorder) KeyOff(note int)               { r.keyOffs = append(r.keyOffs, note) }
func (r *recorder) ControllerChanged(cc, val int) { r.controllers = append(r.controllers, [2]int{cc, val}) }
func (r *recorder) ModeChanged(pad bool)          { r.modes = append(r.modes, pad) }

func (r *recorder) reset() { *r = recorder{} }
