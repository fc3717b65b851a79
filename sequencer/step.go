package sequencer

import "fmt"

// TriggerKind is what a step does when the playhead reaches it
type TriggerKind uint8

const (
	TriggerNone     TriggerKind = iota // inert
	TriggerNote                        // new note, released after Length steps
	TriggerLock                        // update the sounding voice, no new note
	TriggerTrigless                    // stage parameters silently
	TriggerOneShot                     // new note, held until superseded
	numTriggerKinds
)

var triggerNames = [numTriggerKinds]string{"none", "note", "lock", "trigless", "one-shot"}

func (k TriggerKind) String() string {
	if k >= numTriggerKinds {
		return "unknown"
	}
	return triggerNames[k]
}

// Valid reports whether k is one of the known trigger kinds
func (k TriggerKind) Valid() bool {
	return k < numTriggerKinds
}

// Starts reports whether the trigger starts a new note
func (k TriggerKind) Starts() bool {
	return k == TriggerNote || k == TriggerOneShot
}

// ParseTriggerKind maps a name from String back to its kind
func ParseTriggerKind(name string) (TriggerKind, bool) {
	for i, n := range triggerNames {
		if n == name {
			return TriggerKind(i), true
		}
	}
	return TriggerNone, false
}

// TriggerKinds lists every trigger kind in order
func TriggerKinds() []TriggerKind {
	out := make([]TriggerKind, numTriggerKinds)
	for i := range out {
		out[i] = TriggerKind(i)
	}
	return out
}

func (k TriggerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *TriggerKind) UnmarshalText(b []byte) error {
	v, ok := ParseTriggerKind(string(b))
	if !ok {
		return fmt.Errorf("unknown trigger kind %q", b)
	}
	*k = v
	return nil
}

// Lock is an optional per-step override of a track default
type Lock struct {
	Set   bool    `json:"set,omitempty"`
	Value float32 `json:"value,omitempty"`
}

// Step is a single cell of a track
type Step struct {
	Trigger     TriggerKind     `json:"trigger"`
	Pitch       uint8           `json:"pitch"`
	Velocity    uint8           `json:"velocity"`
	Length      float32         `json:"length"`      // in steps, 0.1-4.0
	Offset      int8            `json:"offset"`      // -23 to +23, 1/24 of a step
	Probability uint8           `json:"probability"` // 0-100 percent
	Locks       [NumParams]Lock `json:"locks"`
}

// NewStep returns an empty step with default note values
func NewStep() Step {
	return Step{
		Trigger:     TriggerNone,
		Pitch:       60,
		Velocity:    100,
		Length:      1.0,
		Offset:      0,
		Probability: MaxProbability,
	}
}

// Clear resets the step in place
func (s *Step) Clear() {
	*s = NewStep()
}

// Param returns the locked value for id, or def when the slot is unset
func (s *Step) Param(id int, def float32) float32 {
	if !validParam(id) || !s.Locks[id].Set {
		return def
	}
	return s.Locks[id].Value
}

// HasLocks reports whether any parameter is locked on this step
func (s *Step) HasLocks() bool {
	for i := range s.Locks {
		if s.Locks[i].Set {
			return true
		}
	}
	return false
}

func (s *Step) normalize() {
	if !s.Trigger.Valid() {
		s.Trigger = TriggerNone
	}
	s.Pitch = uint8(clampInt(int(s.Pitch), 0, MaxMIDIValue))
	s.Velocity = uint8(clampInt(int(s.Velocity), 0, MaxMIDIValue))
	s.Length = float32(clampFloat(float64(s.Length), MinLength, MaxLength))
	s.Offset = int8(clampInt(int(s.Offset), MinOffset, MaxOffset))
	s.Probability = uint8(clampInt(int(s.Probability), 0, MaxProbability))
	for i := range s.Locks {
		if s.Locks[i].Set {
			s.Locks[i].Value = clampUnit(float64(s.Locks[i].Value))
		} else {
			s.Locks[i].Value = 0
		}
	}
}
