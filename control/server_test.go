package control

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"flux-sequence/project"
	"flux-sequence/sequencer"
)

func newTestServer() (*Server, *sequencer.Engine) {
	p := sequencer.DefaultPattern()
	e := sequencer.NewEngine(sequencer.Options{Pattern: p.Clone()})
	return NewServer(e, p, "test"), e
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var text strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			text.WriteString(tc.Text)
		}
	}
	return text.String(), res.IsError
}

func TestStepEditsReachEngine(t *testing.T) {
	s, e := newTestServer()

	if _, isErr := call(t, s.handleSetTrigger, map[string]any{"track": 1.0, "step": 3.0, "kind": "one-shot"}); isErr {
		t.Fatal("set_trigger failed")
	}
	call(t, s.handleSetStepField, map[string]any{"track": 1.0, "step": 3.0, "field": "velocity", "value": 300.0})
	call(t, s.handleSetLock, map[string]any{"track": 1.0, "step": 3.0, "param": 74.0, "value": 0.9})
	call(t, s.handleSetModulator, map[string]any{"track": 1.0, "field": "waveform", "waveform": "square"})
	call(t, s.handleMute, map[string]any{"track": 2.0, "muted": true})

	e.Tick()
	for _, p := range []*sequencer.Pattern{e.Pattern(), s.Pattern()} {
		st := p.Step(1, 3)
		if st.Trigger != sequencer.TriggerOneShot || st.Velocity != 127 {
			t.Errorf("step = %v vel %d", st.Trigger, st.Velocity)
		}
		if v, _ := p.EffectiveParam(1, 3, 74); v != 0.9 {
			t.Errorf("cutoff lock = %v", v)
		}
		if p.Tracks[1].Modulator().Waveform != sequencer.WaveSquare {
			t.Error("waveform not set")
		}
		if !p.Tracks[2].Muted {
			t.Error("track 2 not muted")
		}
	}
}

func TestBadArguments(t *testing.T) {
	s, e := newTestServer()
	for name, tc := range map[string]struct {
		h    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]any
	}{
		"missing step":  {s.handleToggleStep, map[string]any{"track": 0.0}},
		"bad kind":      {s.handleSetTrigger, map[string]any{"track": 0.0, "step": 0.0, "kind": "fill"}},
		"bad field":     {s.handleSetStepField, map[string]any{"track": 0.0, "step": 0.0, "field": "swing", "value": 1.0}},
		"bad machine":   {s.handleSetMachine, map[string]any{"track": 0.0, "machine": "tb-303"}},
		"bad waveform":  {s.handleSetModulator, map[string]any{"track": 0.0, "field": "waveform", "waveform": "saw"}},
		"no such track": {s.handleRemoveTrack, map[string]any{"track": 9.0}},
		"bad json":      {s.handleLoadPattern, map[string]any{"pattern-json": "{"}},
	} {
		if _, isErr := call(t, tc.h, tc.args); !isErr {
			t.Errorf("%s: expected a tool error", name)
		}
	}
	if e.Pending() != 0 {
		t.Errorf("rejected calls queued %d commands", e.Pending())
	}
}

func TestRemoveLastTrackRejected(t *testing.T) {
	s, _ := newTestServer()
	for i := 3; i > 0; i-- {
		if _, isErr := call(t, s.handleRemoveTrack, map[string]any{"track": float64(i)}); isErr {
			t.Fatalf("remove track %d failed", i)
		}
	}
	text, isErr := call(t, s.handleRemoveTrack, map[string]any{"track": 0.0})
	if !isErr || !strings.Contains(text, "at least one track") {
		t.Errorf("got %q, error %v", text, isErr)
	}
}

func TestSnapshotAndPattern(t *testing.T) {
	s, e := newTestServer()
	call(t, s.handleToggleStep, map[string]any{"track": 0.0, "step": 0.0})
	call(t, s.handleStart, nil)
	e.Tick()

	text, _ := call(t, s.handleSnapshot, nil)
	var r snapshotReport
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		t.Fatal(err)
	}
	if !r.Running || r.Tracks != 4 || len(r.Fired) != 1 || r.Fired[0] != 0 {
		t.Errorf("snapshot = %+v", r)
	}

	text, _ = call(t, s.handlePattern, nil)
	var p sequencer.Pattern
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		t.Fatal(err)
	}
	if p.Tracks[0].Steps()[0].Trigger != sequencer.TriggerNote {
		t.Error("pattern tool does not show the toggled step")
	}
}

func TestLoadPattern(t *testing.T) {
	s, e := newTestServer()
	src := sequencer.NewPattern(2, 8)
	src.SetTempo(90)
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	if _, isErr := call(t, s.handleLoadPattern, map[string]any{"pattern-json": string(data)}); isErr {
		t.Fatal("load_pattern failed")
	}
	e.Tick()
	if p := e.Pattern(); len(p.Tracks) != 2 || p.StepsPerLoop != 8 || p.Tempo != 90 {
		t.Errorf("engine pattern: %d tracks, %d steps, %v bpm", len(p.Tracks), p.StepsPerLoop, p.Tempo)
	}
	if len(s.Pattern().Tracks) != 2 {
		t.Error("mirror not replaced")
	}
}

func TestProjectTools(t *testing.T) {
	s, e := newTestServer()
	s.UseStore(&project.Store{Dir: t.TempDir()})

	call(t, s.handleSetTempo, map[string]any{"bpm": 97.0})
	filename, isErr := call(t, s.handleSaveProject, map[string]any{"project": "set", "label": "intro"})
	if isErr || !strings.HasSuffix(filename, "_intro.json") {
		t.Fatalf("save_project = %q", filename)
	}

	text, _ := call(t, s.handleListSaves, map[string]any{"project": "set"})
	if !strings.Contains(text, filename) {
		t.Errorf("list_saves = %s", text)
	}

	call(t, s.handleSetTempo, map[string]any{"bpm": 140.0})
	if _, isErr := call(t, s.handleLoadProject, map[string]any{"project": "set"}); isErr {
		t.Fatal("load_project failed")
	}
	e.Tick()
	if e.Pattern().Tempo != 97 || s.Pattern().Tempo != 97 {
		t.Errorf("tempo after load = %v / %v", e.Pattern().Tempo, s.Pattern().Tempo)
	}

	if _, isErr := call(t, s.handleLoadProject, map[string]any{"project": "empty"}); !isErr {
		t.Error("loading an empty project should fail")
	}
}
