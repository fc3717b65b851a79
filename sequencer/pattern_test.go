package sequencer_test

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"flux-sequence/sequencer"
)

func TestDefaultPattern(t *testing.T) {
	p := sequencer.DefaultPattern()
	if len(p.Tracks) != 4 || p.StepsPerLoop != 16 || p.Tempo != 120 {
		t.Fatalf("default pattern = %d tracks, %d steps, %v bpm", len(p.Tracks), p.StepsPerLoop, p.Tempo)
	}
	for i, tr := range p.Tracks {
		if tr.ID != i {
			t.Errorf("track %d has id %d", i, tr.ID)
		}
		if len(tr.Subtracks) != 1 || len(tr.Steps()) != 16 {
			t.Errorf("track %d: want one subtrack of 16 steps", i)
		}
		if len(tr.Modulators) != 1 {
			t.Errorf("track %d: want one modulator, got %d", i, len(tr.Modulators))
		}
		if tr.Defaults[sequencer.ParamCutoff] != sequencer.DefaultParamValue {
			t.Errorf("track %d: cutoff default %v", i, tr.Defaults[sequencer.ParamCutoff])
		}
		for j, s := range tr.Steps() {
			if s.Trigger != sequencer.TriggerNone || s.HasLocks() {
				t.Errorf("track %d step %d is not empty", i, j)
			}
		}
	}
}

func TestApplyClampsEveryScalar(t *testing.T) {
	tests := []struct {
		name  string
		cmd   sequencer.Command
		check func(p *sequencer.Pattern) bool
	}{
		{"pitch high", sequencer.SetStepField(0, 0, sequencer.FieldPitch, 300),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Pitch == 127 }},
		{"pitch low", sequencer.SetStepField(0, 0, sequencer.FieldPitch, -5),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Pitch == 0 }},
		{"velocity", sequencer.SetStepField(0, 0, sequencer.FieldVelocity, 200),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Velocity == 127 }},
		{"length low", sequencer.SetStepField(0, 0, sequencer.FieldLength, 0),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Length == 0.1 }},
		{"length high", sequencer.SetStepField(0, 0, sequencer.FieldLength, 9),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Length == 4 }},
		{"offset low", sequencer.SetStepField(0, 0, sequencer.FieldOffset, -99),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Offset == -23 }},
		{"offset high", sequencer.SetStepField(0, 0, sequencer.FieldOffset, 24),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Offset == 23 }},
		{"probability", sequencer.SetStepField(0, 0, sequencer.FieldProbability, 150),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Probability == 100 }},
		{"lock", sequencer.SetParameterLock(0, 0, 2, 1.5),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Locks[2] == sequencer.Lock{Set: true, Value: 1} }},
		{"default", sequencer.SetTrackDefault(1, 3, -0.2),
			func(p *sequencer.Pattern) bool { return p.Tracks[1].Defaults[3] == 0 }},
		{"mod amount", sequencer.SetModulator(0, sequencer.ModAmount, -3),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Amount == -1 }},
		{"mod rate", sequencer.SetModulator(0, sequencer.ModRate, 10),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Rate == 4 }},
		{"mod destination", sequencer.SetModulator(0, sequencer.ModDestination, 500),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Destination == 127 }},
		{"mod point", sequencer.SetModulatorPoint(0, 3, 2),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Table[3] == 1 }},
		{"tempo high", sequencer.SetTempo(1000),
			func(p *sequencer.Pattern) bool { return p.Tempo == 300 }},
		{"tempo low", sequencer.SetTempo(1),
			func(p *sequencer.Pattern) bool { return p.Tempo == 20 }},
		{"track length", sequencer.SetTrackLength(0, 99),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Length == 16 }},
		{"channel", sequencer.SetChannel(0, 40),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Channel == 16 }},
		{"velocity huge", sequencer.SetStepField(0, 0, sequencer.FieldVelocity, 1e20),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Velocity == 127 }},
		{"velocity +inf", sequencer.SetStepField(0, 0, sequencer.FieldVelocity, math.Inf(1)),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Velocity == 127 }},
		{"pitch -inf", sequencer.SetStepField(0, 0, sequencer.FieldPitch, math.Inf(-1)),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Pitch == 0 }},
		{"pitch nan", sequencer.SetStepField(0, 0, sequencer.FieldPitch, math.NaN()),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Pitch == 0 }},
		{"offset huge", sequencer.SetStepField(0, 0, sequencer.FieldOffset, 1e20),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Offset == 23 }},
		{"offset +inf", sequencer.SetStepField(0, 0, sequencer.FieldOffset, math.Inf(1)),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Offset == 23 }},
		{"offset -inf", sequencer.SetStepField(0, 0, sequencer.FieldOffset, math.Inf(-1)),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Offset == -23 }},
		{"probability +inf", sequencer.SetStepField(0, 0, sequencer.FieldProbability, math.Inf(1)),
			func(p *sequencer.Pattern) bool { return p.Step(0, 0).Probability == 100 }},
		{"mod destination huge", sequencer.SetModulator(0, sequencer.ModDestination, 1e20),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Destination == 127 }},
		{"mod waveform +inf", sequencer.SetModulator(0, sequencer.ModWaveform, math.Inf(1)),
			func(p *sequencer.Pattern) bool { return p.Tracks[0].Modulator().Waveform == sequencer.WaveCustom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sequencer.DefaultPattern()
			p.Apply(tt.cmd)
			if !tt.check(p) {
				t.Errorf("%s was not clamped", tt.cmd.Kind)
			}
		})
	}
}

func TestApplyIgnoresStaleIndices(t *testing.T) {
	p := sequencer.DefaultPattern()
	want := p.Clone()
	for _, c := range []sequencer.Command{
		sequencer.SetTriggerKind(9, 0, sequencer.TriggerNote),
		sequencer.SetTriggerKind(0, 99, sequencer.TriggerNote),
		sequencer.SetStepField(-1, 0, sequencer.FieldPitch, 1),
		sequencer.SetParameterLock(0, 0, 500, 0.3),
		sequencer.SetTrackDefault(0, -1, 0.3),
		sequencer.SetModulator(12, sequencer.ModAmount, 1),
		sequencer.ToggleStep(0, 16),
		sequencer.RemoveTrack(7),
		sequencer.SetMachine(0, sequencer.MachineKind(99)),
		{Kind: sequencer.CommandKind(200)},
	} {
		p.Apply(c)
	}
	if !reflect.DeepEqual(p.Tracks, want.Tracks) || p.Tempo != want.Tempo {
		t.Error("stale commands changed the pattern")
	}
}

func TestRemoveTrack(t *testing.T) {
	p := sequencer.NewPattern(1, 16)
	err := p.RemoveTrack(0)
	if !errors.Is(err, sequencer.ErrInvariantViolation) {
		t.Fatalf("removing the only track: got %v", err)
	}
	if len(p.Tracks) != 1 {
		t.Fatal("pattern lost its only track")
	}

	p = sequencer.NewPattern(4, 16)
	for i := range p.Tracks {
		p.Apply(sequencer.SetStepField(i, 0, sequencer.FieldPitch, float64(40+i)))
	}
	if err := p.RemoveTrack(1); err != nil {
		t.Fatal(err)
	}
	if len(p.Tracks) != 3 {
		t.Fatalf("want 3 tracks, got %d", len(p.Tracks))
	}
	for i, want := range []uint8{40, 42, 43} {
		if p.Tracks[i].ID != i {
			t.Errorf("track %d has id %d", i, p.Tracks[i].ID)
		}
		if got := p.Step(i, 0).Pitch; got != want {
			t.Errorf("track %d pitch = %d, want %d", i, got, want)
		}
	}

	// editing a track after removal must not leak into its neighbour
	p.Apply(sequencer.SetStepField(2, 0, sequencer.FieldPitch, 99))
	if p.Step(1, 0).Pitch != 42 {
		t.Error("tracks share step storage after removal")
	}
}

func TestAddTrack(t *testing.T) {
	p := sequencer.NewPattern(sequencer.MaxTracks-1, 8)
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerNote))

	i, err := p.AddTrack()
	if err != nil {
		t.Fatal(err)
	}
	if i != sequencer.MaxTracks-1 || p.Tracks[i].ID != i || len(p.Tracks[i].Steps()) != 8 {
		t.Errorf("added track %d is malformed", i)
	}
	if _, err := p.AddTrack(); !errors.Is(err, sequencer.ErrInvariantViolation) {
		t.Errorf("adding past the maximum: got %v", err)
	}
}

func TestAddTrackAfterRemoveIsClean(t *testing.T) {
	p := sequencer.NewPattern(2, 16)
	p.Apply(sequencer.SetTriggerKind(1, 3, sequencer.TriggerNote))
	p.Apply(sequencer.SetMute(1, true))
	if err := p.RemoveTrack(1); err != nil {
		t.Fatal(err)
	}
	i, err := p.AddTrack()
	if err != nil {
		t.Fatal(err)
	}
	tr := p.Tracks[i]
	if tr.Muted || tr.Steps()[3].Trigger != sequencer.TriggerNone {
		t.Error("re-added track kept state from the removed one")
	}
}

func TestParameterLockRestoresDefault(t *testing.T) {
	p := sequencer.DefaultPattern()
	p.Apply(sequencer.SetParameterLock(0, 0, 2, 0.8))
	if v, _ := p.EffectiveParam(0, 0, 2); v != 0.8 {
		t.Fatalf("locked value = %v", v)
	}
	p.Apply(sequencer.ClearParameterLock(0, 0, 2))
	v, ok := p.EffectiveParam(0, 0, 2)
	if !ok || v != p.Tracks[0].Defaults[2] {
		t.Errorf("after clear = %v, want default %v", v, p.Tracks[0].Defaults[2])
	}
	if _, ok := p.EffectiveParam(0, 99, 2); ok {
		t.Error("stale step reported a value")
	}
}

func TestToggleAndClearStep(t *testing.T) {
	p := sequencer.DefaultPattern()
	p.Apply(sequencer.ToggleStep(0, 4))
	if p.Step(0, 4).Trigger != sequencer.TriggerNote {
		t.Fatal("toggle did not set a note")
	}
	p.Apply(sequencer.SetStepField(0, 4, sequencer.FieldPitch, 72))
	p.Apply(sequencer.ToggleStep(0, 4))
	if p.Step(0, 4).Trigger != sequencer.TriggerNone {
		t.Fatal("toggle did not clear the note")
	}
	p.Apply(sequencer.ClearStep(0, 4))
	if *p.Step(0, 4) != sequencer.NewStep() {
		t.Error("clear left values behind")
	}
}

func TestLastWriteWins(t *testing.T) {
	p := sequencer.DefaultPattern()
	for _, v := range []float64{10, 20, 30} {
		p.Apply(sequencer.SetStepField(0, 0, sequencer.FieldVelocity, v))
	}
	if got := p.Step(0, 0).Velocity; got != 30 {
		t.Errorf("velocity = %d, want 30", got)
	}
}

func TestPatternJSONRoundTrip(t *testing.T) {
	p := sequencer.DefaultPattern()
	p.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerOneShot))
	p.Apply(sequencer.SetParameterLock(1, 2, sequencer.ParamCutoff, 0.25))
	p.Apply(sequencer.SetModulator(2, sequencer.ModWaveform, float64(sequencer.WaveCustom)))
	p.Apply(sequencer.SetModulatorPoint(2, 5, -0.5))
	p.Apply(sequencer.SetMachine(3, sequencer.MachineFMTone))
	p.Apply(sequencer.SetTrackLength(3, 5))

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var got sequencer.Pattern
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	got.Normalize()
	if !reflect.DeepEqual(got.Tracks, p.Tracks) || got.Tempo != p.Tempo || got.StepsPerLoop != p.StepsPerLoop {
		t.Error("pattern changed across a JSON round trip")
	}
}

func TestNormalizeRepairsDecodedPattern(t *testing.T) {
	var p sequencer.Pattern
	if err := json.Unmarshal([]byte(`{"tempo": 900, "stepsPerLoop": 8, "tracks": [
		{"machine": "werp", "channel": 0, "length": 50,
		 "subtracks": [{"steps": [{"trigger": "note", "pitch": 64, "velocity": 90, "length": 9, "probability": 100}]}]}
	]}`), &p); err != nil {
		t.Fatal(err)
	}
	p.Normalize()

	if p.Tempo != sequencer.MaxTempo {
		t.Errorf("tempo = %v", p.Tempo)
	}
	tr := p.Tracks[0]
	if tr.Machine != sequencer.MachineWerp || tr.Channel != 1 || tr.Length != 8 {
		t.Errorf("track = %v ch %d len %d", tr.Machine, tr.Channel, tr.Length)
	}
	if len(tr.Steps()) != 8 || tr.Steps()[0].Length != 4 || tr.Steps()[1] != sequencer.NewStep() {
		t.Error("steps were not padded and clamped")
	}
	if len(tr.Modulators) != 1 {
		t.Error("modulator missing after normalize")
	}
	if _, err := p.AddTrack(); err != nil {
		t.Errorf("normalized pattern cannot grow: %v", err)
	}
}

func TestUnknownEnumNamesFailToDecode(t *testing.T) {
	var s sequencer.Step
	if err := json.Unmarshal([]byte(`{"trigger": "ratchet"}`), &s); err == nil {
		t.Error("unknown trigger kind decoded")
	}
	if _, ok := sequencer.ParseMachineKind("tonverk-bus"); !ok {
		t.Error("tonverk-bus did not parse")
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := sequencer.DefaultPattern()
	c := p.Clone()
	c.Apply(sequencer.SetTriggerKind(0, 0, sequencer.TriggerNote))
	c.Apply(sequencer.SetModulator(0, sequencer.ModAmount, 1))
	if p.Step(0, 0).Trigger != sequencer.TriggerNone || p.Tracks[0].Modulator().Amount != 0 {
		t.Error("clone shares storage with its source")
	}
}
