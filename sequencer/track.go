package sequencer

// Subtrack holds the steps of one voice layer. Tracks currently carry exactly
// one subtrack.
type Subtrack struct {
	Voice int    `json:"voice"`
	Steps []Step `json:"steps"`
}

// Track represents one row of the pattern: a machine, its default parameters,
// its steps and its modulators.
type Track struct {
	ID         int                `json:"id"`
	Machine    MachineKind        `json:"machine"`
	Channel    uint8              `json:"channel"` // MIDI output channel (1-16)
	Length     int                `json:"length"`  // 1..StepsPerLoop, polymeter
	Muted      bool               `json:"muted"`
	Defaults   [NumParams]float32 `json:"defaults"`
	Subtracks  []Subtrack         `json:"subtracks"`
	Modulators []Modulator        `json:"modulators"`
}

// newTrack creates a track with default values and storage for MaxSteps steps
func newTrack(id, steps int) Track {
	t := Track{
		Subtracks:  []Subtrack{{Steps: make([]Step, steps, MaxSteps)}},
		Modulators: make([]Modulator, 1),
	}
	t.reset(id, steps)
	return t
}

// reset restores defaults in place, reusing the step storage
func (t *Track) reset(id, steps int) {
	t.ID = id
	t.Machine = MachineOneShot
	t.Channel = uint8(id%16 + 1)
	t.Length = steps
	t.Muted = false
	for i := range t.Defaults {
		t.Defaults[i] = DefaultParamValue
	}
	st := &t.Subtracks[0]
	st.Voice = id
	st.Steps = st.Steps[:steps]
	for i := range st.Steps {
		st.Steps[i].Clear()
	}
	t.Modulators[0] = NewModulator()
}

// Steps returns the steps of the first subtrack
func (t *Track) Steps() []Step {
	if len(t.Subtracks) == 0 {
		return nil
	}
	return t.Subtracks[0].Steps
}

// Step returns the step at idx, or nil when out of range
func (t *Track) Step(idx int) *Step {
	steps := t.Steps()
	if idx < 0 || idx >= len(steps) {
		return nil
	}
	return &steps[idx]
}

// Modulator returns the active modulator, or nil if the track has none
func (t *Track) Modulator() *Modulator {
	if len(t.Modulators) == 0 {
		return nil
	}
	return &t.Modulators[0]
}

// Resolve writes the effective parameter values for step idx into out:
// the step's lock where set, otherwise the track default.
func (t *Track) Resolve(idx int, out *[NumParams]float32) {
	s := t.Step(idx)
	for i := range out {
		if s != nil && s.Locks[i].Set {
			out[i] = s.Locks[i].Value
		} else {
			out[i] = t.Defaults[i]
		}
	}
}

func (t *Track) normalize(id, steps int) {
	t.ID = id
	if !t.Machine.Valid() {
		t.Machine = MachineOneShot
	}
	t.Channel = uint8(clampInt(int(t.Channel), 1, 16))
	t.Length = clampInt(t.Length, 1, steps)
	for i := range t.Defaults {
		t.Defaults[i] = clampUnit(float64(t.Defaults[i]))
	}

	var src []Step
	voice := id
	if len(t.Subtracks) > 0 {
		src = t.Subtracks[0].Steps
		voice = t.Subtracks[0].Voice
	}
	dst := make([]Step, steps, MaxSteps)
	for i := range dst {
		if i < len(src) {
			dst[i] = src[i]
			dst[i].normalize()
		} else {
			dst[i] = NewStep()
		}
	}
	t.Subtracks = []Subtrack{{Voice: voice, Steps: dst}}

	if len(t.Modulators) == 0 {
		t.Modulators = []Modulator{NewModulator()}
	}
	t.Modulators = t.Modulators[:1]
	t.Modulators[0].normalize()
}

func (t *Track) clone() Track {
	c := *t
	c.Subtracks = make([]Subtrack, len(t.Subtracks))
	for i, st := range t.Subtracks {
		steps := make([]Step, len(st.Steps), max(len(st.Steps), MaxSteps))
		copy(steps, st.Steps)
		c.Subtracks[i] = Subtrack{Voice: st.Voice, Steps: steps}
	}
	c.Modulators = append([]Modulator(nil), t.Modulators...)
	return c
}
