package midi

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

func TestInputDecodes(t *testing.T) {
	in := newInput("test")
	in.handle(gomidi.NoteOn(2, 64, 90))
	in.handle(gomidi.NoteOn(2, 64, 0)) // note off in disguise
	in.handle(gomidi.ControlChange(0, 7, 100))
	in.handle(gomidi.Start())
	in.handle(gomidi.Stop())
	in.handle(gomidi.Continue())
	in.Close()

	want := []InputEvent{
		{Kind: InputNote, Channel: 3, Note: 64, Velocity: 90},
		{Kind: InputStart},
		{Kind: InputStop},
		{Kind: InputContinue},
	}
	var got []InputEvent
	for e := range in.Events() {
		got = append(got, e)
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestInputDropsWhenFull(t *testing.T) {
	in := newInput("test")
	for range inputBuffer + 5 {
		in.handle(gomidi.Start())
	}
	if in.Dropped() != 5 {
		t.Errorf("dropped = %d, want 5", in.Dropped())
	}
	in.Close()
	in.Close()
}
