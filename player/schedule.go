package player

import (
	"time"

	"flux-sequence/midi"
	"flux-sequence/sequencer"
)

// Scheduler turns tick results into timed MIDI events. It remembers which
// channels have sounded and the last modulation value sent per track.
type Scheduler struct {
	lastCC   [sequencer.MaxTracks]int16 // -1 until the modulator first moves
	channels uint16                     // bit n set once channel n+1 sounded
}

// NewScheduler returns a scheduler with no modulation sent yet
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.resetCC()
	return s
}

func (s *Scheduler) resetCC() {
	for i := range s.lastCC {
		s.lastCC[i] = -1
	}
}

// Schedule appends the events for r to out. at is when the step starts;
// micro-timing offsets and note lengths are placed relative to it.
func (s *Scheduler) Schedule(r *sequencer.TickResult, at time.Time, out []midi.Event) []midi.Event {
	// a restart forgets held one-shots, so silence whatever is still sounding
	if r.Started || r.Stopped {
		out = s.silence(at, out)
		s.resetCC()
	}
	if r.Stopped {
		return out
	}
	if !r.Running {
		return out
	}

	step := time.Duration(r.StepSeconds() * float64(time.Second))
	for i := range r.Triggers {
		out = s.trigger(&r.Triggers[i], at, step, out)
	}

	for i := 0; i < r.NumTracks; i++ {
		m := &r.Modulation[i]
		if m.Offset == 0 && s.lastCC[i] < 0 {
			continue
		}
		v := midi.Value7(m.Value)
		if int16(v) == s.lastCC[i] {
			continue
		}
		s.lastCC[i] = int16(v)
		out = append(out, midi.Event{At: at, Type: midi.CC, Track: i, Channel: m.Channel, Note: uint8(m.Destination), Velocity: v})
	}
	return out
}

// silence sends all-notes-off to every channel that has sounded
func (s *Scheduler) silence(at time.Time, out []midi.Event) []midi.Event {
	for ch := uint8(1); ch <= 16; ch++ {
		if s.channels&(1<<(ch-1)) != 0 {
			out = append(out, midi.Event{At: at, Type: midi.CC, Track: -1, Channel: ch, Note: midi.CCAllNotesOff})
		}
	}
	s.channels = 0
	return out
}

func (s *Scheduler) trigger(tr *sequencer.Trigger, at time.Time, step time.Duration, out []midi.Event) []midi.Event {
	t0 := at.Add(time.Duration(tr.Offset * float64(step)))
	base := midi.Event{At: t0, Track: tr.Track, Channel: tr.Channel}

	switch tr.Kind {
	case sequencer.TriggerTrigless, sequencer.TriggerNone:
		return out
	case sequencer.TriggerLock:
		return s.locks(tr, base, out)
	}

	if tr.Release {
		off := base
		off.Type = midi.NoteOff
		off.Note = tr.ReleaseNote
		out = append(out, off)
	}
	out = s.locks(tr, base, out)

	on := base
	on.Type = midi.NoteOn
	on.Note = tr.Note
	on.Velocity = tr.Velocity
	out = append(out, on)
	s.channels |= 1 << (tr.Channel - 1)

	if tr.Kind == sequencer.TriggerNote {
		off := base
		off.At = t0.Add(time.Duration(tr.Length * float64(step)))
		off.Type = midi.NoteOff
		off.Note = tr.Note
		out = append(out, off)
	}
	return out
}

// locks sends the step's locked parameters as controller changes
func (s *Scheduler) locks(tr *sequencer.Trigger, base midi.Event, out []midi.Event) []midi.Event {
	for id, set := range tr.Locked {
		if !set {
			continue
		}
		cc := base
		cc.Type = midi.CC
		cc.Note = uint8(id)
		cc.Velocity = midi.Value7(tr.Params[id])
		out = append(out, cc)
	}
	return out
}
