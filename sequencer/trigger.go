package sequencer

// Trigger is what one track emits on one tick
type Trigger struct {
	Track    int
	Kind     TriggerKind
	Machine  MachineKind
	Channel  uint8
	Note     uint8
	Velocity uint8
	Length   float64 // steps until release; 0 for one-shots
	Offset   float64 // fraction of a step, negative is early

	// Release is set when this trigger supersedes a held one-shot note,
	// which the sink must release first.
	Release     bool
	ReleaseNote uint8

	// Params holds the effective value of every parameter, modulation
	// included. Locked marks the ones the step overrides.
	Params [NumParams]float32
	Locked [NumParams]bool
}

// Modulation is a track's modulator output for one tick
type Modulation struct {
	Channel     uint8
	Destination int
	Offset      float32 // bipolar, already scaled by Amount
	Value       float32 // destination value with Offset applied, 0..1
}

// TickResult is the output of one Engine.Tick. It is owned by the engine and
// overwritten by the next Tick; copy out what must outlive it.
type TickResult struct {
	Running   bool
	Stopped   bool // the engine stopped during this tick; release all voices
	Started   bool // Start was applied during this tick
	Tick      uint64
	Position  int
	Tempo     float64
	NumTracks int

	Triggers   []Trigger // only tracks that fired, in track order
	Modulation [MaxTracks]Modulation
	Fired      [MaxTracks]bool

	triggerBuf [MaxTracks]Trigger
}

// StepSeconds returns the duration of one step at the result's tempo.
// A step is a sixteenth note.
func (r *TickResult) StepSeconds() float64 {
	if r.Tempo <= 0 {
		return 0
	}
	return 60 / (r.Tempo * 4)
}
