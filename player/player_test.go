package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"flux-sequence/midi"
	"flux-sequence/sequencer"
)

func started(t *testing.T, p *sequencer.Pattern) *sequencer.Engine {
	t.Helper()
	e := sequencer.NewEngine(sequencer.Options{Seed: 7, Pattern: p})
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestScheduleNoteWithOffsetAndLength(t *testing.T) {
	p := sequencer.NewPattern(1, 4)
	p.SetTempo(150) // 100ms steps
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerNote))
	p.Apply(sequencer.SetStepField(0, 0, sequencer.FieldOffset, 6))
	p.Apply(sequencer.SetStepField(0, 0, sequencer.FieldLength, 2))
	p.Apply(sequencer.SetParameterLock(0, 0, sequencer.ParamCutoff, 1))
	e := started(t, p)

	at := time.Unix(100, 0)
	evts := NewScheduler().Schedule(e.Tick(), at, nil)
	if len(evts) != 3 {
		t.Fatalf("got %d events: %v", len(evts), evts)
	}

	cc, on, off := evts[0], evts[1], evts[2]
	if cc.Type != midi.CC || cc.Note != sequencer.ParamCutoff || cc.Velocity != 127 {
		t.Errorf("lock cc = %s", cc)
	}
	if on.Type != midi.NoteOn || on.Note != 60 || on.Channel != 1 {
		t.Errorf("note on = %s", on)
	}
	if want := at.Add(25 * time.Millisecond); !on.At.Equal(want) || !cc.At.Equal(want) {
		t.Errorf("note on at %v, want %v", on.At.Sub(at), want.Sub(at))
	}
	if want := at.Add(225 * time.Millisecond); off.Type != midi.NoteOff || !off.At.Equal(want) {
		t.Errorf("note off = %s at %v", off, off.At.Sub(at))
	}
}

func TestScheduleOneShotReleaseAndStop(t *testing.T) {
	p := sequencer.NewPattern(1, 2)
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerOneShot))
	p.Apply(sequencer.SetTriggerKind(0, 1, sequencer.TriggerOneShot))
	p.Apply(sequencer.SetStepField(0, 1, sequencer.FieldPitch, 62))
	p.Apply(sequencer.SetChannel(0, 3))
	e := started(t, p)
	s := NewScheduler()
	at := time.Unix(0, 0)

	if evts := s.Schedule(e.Tick(), at, nil); len(evts) != 1 || evts[0].Type != midi.NoteOn {
		t.Fatalf("one-shot: %v", evts)
	}
	evts := s.Schedule(e.Tick(), at, nil)
	if len(evts) != 2 || evts[0].Type != midi.NoteOff || evts[0].Note != 60 || evts[1].Note != 62 {
		t.Fatalf("superseding one-shot: %v", evts)
	}

	_ = e.Stop()
	evts = s.Schedule(e.Tick(), at, nil)
	if len(evts) != 1 || !evts[0].IsAllNotesOff() || evts[0].Channel != 3 {
		t.Errorf("stop: %v", evts)
	}
}

func TestRestartSilencesHeldOneShot(t *testing.T) {
	p := sequencer.NewPattern(1, 4)
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerOneShot))
	p.Apply(sequencer.SetStepField(0, 0, sequencer.FieldPitch, 50))
	p.Apply(sequencer.SetTriggerKind(0, 1, sequencer.TriggerOneShot))
	p.Apply(sequencer.SetStepField(0, 1, sequencer.FieldPitch, 40))
	e := started(t, p)
	s := NewScheduler()
	at := time.Unix(0, 0)

	s.Schedule(e.Tick(), at, nil)
	s.Schedule(e.Tick(), at, nil) // 40 is now held

	_ = e.Start()
	evts := s.Schedule(e.Tick(), at, nil)
	if len(evts) != 2 || !evts[0].IsAllNotesOff() || evts[0].Channel != 1 {
		t.Fatalf("restart: %v", evts)
	}
	if evts[1].Type != midi.NoteOn || evts[1].Note != 50 {
		t.Errorf("restart played %s", evts[1])
	}

	// nothing left sounding from before the restart
	evts = s.Schedule(e.Tick(), at, nil)
	if len(evts) != 2 || evts[0].Type != midi.NoteOff || evts[0].Note != 50 {
		t.Errorf("after restart: %v", evts)
	}
}

func TestScheduleModulationOnlyOnChange(t *testing.T) {
	p := sequencer.NewPattern(2, 4)
	p.Apply(sequencer.SetModulator(1, sequencer.ModWaveform, float64(sequencer.WaveSquare)))
	p.Apply(sequencer.SetModulator(1, sequencer.ModAmount, 0.5))
	e := started(t, p)
	s := NewScheduler()

	var ccs []midi.Event
	for i := 0; i < 4; i++ {
		ccs = s.Schedule(e.Tick(), time.Time{}, ccs)
	}
	// square: high, low, low, high (phase wrapped to 0)
	if len(ccs) != 3 {
		t.Fatalf("got %d cc events: %v", len(ccs), ccs)
	}
	for i, want := range []uint8{127, 0, 127} {
		if ccs[i].Track != 1 || ccs[i].Note != sequencer.ParamCutoff || ccs[i].Velocity != want {
			t.Errorf("cc %d = %s, want value %d", i, ccs[i], want)
		}
	}
}

func TestScheduleTriglessIsSilent(t *testing.T) {
	p := sequencer.NewPattern(1, 1)
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerTrigless))
	p.Apply(sequencer.SetParameterLock(0, 0, sequencer.ParamDecay, 0.1))
	e := started(t, p)
	if evts := NewScheduler().Schedule(e.Tick(), time.Time{}, nil); len(evts) != 0 {
		t.Errorf("trigless produced %v", evts)
	}
}

func TestEventQueueOrder(t *testing.T) {
	var q eventQueue
	base := time.Unix(0, 0)
	q.add(midi.Event{At: base.Add(2), Note: 3})
	q.add(midi.Event{At: base, Note: 1})
	q.add(midi.Event{At: base, Note: 2, Channel: 5})
	q.add(midi.Event{At: base.Add(1), Channel: 5})

	if n := q.dropChannel(5); n != 2 {
		t.Errorf("dropped %d", n)
	}
	var got []uint8
	for q.Len() > 0 {
		got = append(got, q.next().Note)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("order = %v", got)
	}
}

func TestRender(t *testing.T) {
	p := sequencer.NewPattern(1, 4)
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerNote))
	e := started(t, p)
	evts := Render(e, time.Unix(0, 0), 8)
	ons := 0
	for _, ev := range evts {
		if ev.Type == midi.NoteOn {
			ons++
		}
	}
	if ons != 2 {
		t.Errorf("rendered %d note ons over two loops", ons)
	}
}

type recorder struct {
	mu   sync.Mutex
	evts []midi.Event
	when []time.Time
}

func (r *recorder) Send(e midi.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evts = append(r.evts, e)
	r.when = append(r.when, time.Now())
	return nil
}

func TestPlayerRun(t *testing.T) {
	p := sequencer.NewPattern(1, 4)
	p.SetTempo(300) // 50ms steps
	for i := 0; i < 4; i++ {
		p.Apply(sequencer.SetTriggerKind(0, i, sequencer.TriggerNote))
		p.Apply(sequencer.SetStepField(0, i, sequencer.FieldLength, 0.5))
	}
	e := started(t, p)
	rec := &recorder{}
	pl := New(e, Options{Lookahead: 10 * time.Millisecond}, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	if err := pl.Run(ctx); err != nil && err != context.DeadlineExceeded {
		t.Fatal(err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	ons := 0
	for i, ev := range rec.evts {
		if ev.Type == midi.NoteOn {
			ons++
		}
		if rec.when[i].Before(ev.At) {
			t.Errorf("%s delivered %v early", ev, ev.At.Sub(rec.when[i]))
		}
		if i > 0 && ev.At.Before(rec.evts[i-1].At) {
			t.Errorf("%s delivered out of order", ev)
		}
	}
	if ons < 4 {
		t.Errorf("only %d notes in 400ms at 50ms steps", ons)
	}
	if pl.Dropped() != 0 {
		t.Errorf("dropped %d events", pl.Dropped())
	}
}
