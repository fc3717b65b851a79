package audio

import (
	"testing"

	"flux-sequence/midi"
	"flux-sequence/sequencer"
)

func peak(buf []float32, offset int) float32 {
	var m float32
	for i := offset; i < len(buf); i += Channels {
		if buf[i] > m {
			m = buf[i]
		} else if -buf[i] > m {
			m = -buf[i]
		}
	}
	return m
}

func TestSynthNoteDecays(t *testing.T) {
	s := NewSynth()
	buf := make([]float32, 2*512)

	s.Render(buf)
	if peak(buf, 0) != 0 {
		t.Fatal("silent synth made sound")
	}

	_ = s.Send(midi.Event{Type: midi.NoteOn, Track: 2, Channel: 3, Note: 69, Velocity: 127})
	s.Render(buf)
	first := peak(buf, 0)
	if first < 0.1 {
		t.Fatalf("note peak %v", first)
	}

	_ = s.Send(midi.Event{Type: midi.NoteOff, Track: 2, Channel: 3, Note: 69})
	for i := 0; i < 4; i++ {
		s.Render(buf)
	}
	if s.Active() != 0 {
		t.Errorf("%d voices still active after release", s.Active())
	}
}

func TestSynthPanAndAllNotesOff(t *testing.T) {
	s := NewSynth()
	buf := make([]float32, 2*256)
	_ = s.Send(midi.Event{Type: midi.CC, Track: 0, Channel: 1, Note: sequencer.ParamPan, Velocity: 0})
	_ = s.Send(midi.Event{Type: midi.NoteOn, Track: 0, Channel: 1, Note: 60, Velocity: 100})
	s.Render(buf)
	if peak(buf, 0) == 0 || peak(buf, 1) > 1e-6 {
		t.Errorf("hard left pan: left %v right %v", peak(buf, 0), peak(buf, 1))
	}

	_ = s.Send(midi.Event{Type: midi.CC, Track: -1, Channel: 1, Note: midi.CCAllNotesOff})
	if s.Active() != 0 {
		t.Error("all notes off left a voice running")
	}
}

func TestSynthRenderDoesNotAllocate(t *testing.T) {
	s := NewSynth()
	buf := make([]float32, 2*1024)
	for tr := 0; tr < 8; tr++ {
		_ = s.Send(midi.Event{Type: midi.NoteOn, Track: tr, Channel: 1, Note: uint8(48 + tr), Velocity: 90})
	}
	s.Render(buf)
	if allocs := testing.AllocsPerRun(50, func() { s.Render(buf) }); allocs != 0 {
		t.Errorf("Render allocated %v times", allocs)
	}
}
