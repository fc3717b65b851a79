// Package control exposes a running engine as MCP tools over stdio
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"flux-sequence/debug"
	"flux-sequence/project"
	"flux-sequence/sequencer"
)

var stepFields = map[string]sequencer.StepField{
	"pitch":       sequencer.FieldPitch,
	"velocity":    sequencer.FieldVelocity,
	"length":      sequencer.FieldLength,
	"offset":      sequencer.FieldOffset,
	"probability": sequencer.FieldProbability,
}

var modFields = map[string]sequencer.ModField{
	"waveform":    sequencer.ModWaveform,
	"amount":      sequencer.ModAmount,
	"rate":        sequencer.ModRate,
	"destination": sequencer.ModDestination,
	"phase":       sequencer.ModPhase,
}

// Server maps MCP tool calls onto engine commands.
//
// Tool calls may arrive on several goroutines while the engine accepts one
// producer and one snapshot reader, so every call holds mu. Accepted
// commands are mirrored onto a control-side copy of the pattern, which
// answers the pattern tool without touching the playing pattern.
type Server struct {
	mu      sync.Mutex
	engine  *sequencer.Engine
	pattern *sequencer.Pattern
	store   *project.Store
	mcp     *server.MCPServer
}

// NewServer registers the tools. pattern must be a copy of the pattern the
// engine was created with.
func NewServer(engine *sequencer.Engine, pattern *sequencer.Pattern, version string) *Server {
	s := &Server{
		engine:  engine,
		pattern: pattern,
		mcp: server.NewMCPServer(
			"flux-sequence",
			version,
			server.WithToolCapabilities(false),
		),
	}
	s.register()
	return s
}

// UseStore adds tools that save and load patterns in store
func (s *Server) UseStore(store *project.Store) {
	s.store = store

	s.mcp.AddTool(mcp.NewTool("list_saves",
		mcp.WithDescription("List the saves of a project, newest first."),
		mcp.WithString("project", mcp.Required()),
	), s.handleListSaves)

	s.mcp.AddTool(mcp.NewTool("save_project",
		mcp.WithDescription("Save the current pattern as a new timestamped file in a project."),
		mcp.WithString("project", mcp.Required()),
		mcp.WithString("label", mcp.Description("Optional name appended to the timestamp.")),
	), s.handleSaveProject)

	s.mcp.AddTool(mcp.NewTool("load_project",
		mcp.WithDescription("Replace the pattern with a save from a project, the newest when no filename is given."),
		mcp.WithString("project", mcp.Required()),
		mcp.WithString("filename"),
	), s.handleLoadProject)
}

// Serve runs the MCP protocol on stdin/stdout until the client disconnects
func (s *Server) Serve() error {
	debug.Log("mcp", "serving on stdio")
	return server.ServeStdio(s.mcp)
}

// Pattern returns a copy of the control-side pattern
func (s *Server) Pattern() *sequencer.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pattern.Clone()
}

func trackArg() mcp.ToolOption {
	return mcp.WithNumber("track", mcp.Required(), mcp.Description("Track index, starting at 0."))
}

func stepArg() mcp.ToolOption {
	return mcp.WithNumber("step", mcp.Required(), mcp.Description("Step index, starting at 0."))
}

func (s *Server) register() {
	s.mcp.AddTool(mcp.NewTool("start",
		mcp.WithDescription("Rewind to the first step and start playing."),
	), s.handleStart)

	s.mcp.AddTool(mcp.NewTool("stop",
		mcp.WithDescription("Stop playing and release sounding notes."),
	), s.handleStop)

	s.mcp.AddTool(mcp.NewTool("continue",
		mcp.WithDescription("Resume playing from the current position."),
	), s.handleContinue)

	s.mcp.AddTool(mcp.NewTool("set_tempo",
		mcp.WithDescription("Set the tempo in BPM (20-300)."),
		mcp.WithNumber("bpm", mcp.Required()),
	), s.handleSetTempo)

	s.mcp.AddTool(mcp.NewTool("toggle_step",
		mcp.WithDescription("Turn an empty step into a note, or any other step back to empty."),
		trackArg(), stepArg(),
	), s.handleToggleStep)

	s.mcp.AddTool(mcp.NewTool("set_trigger",
		mcp.WithDescription("Set the trigger kind of a step."),
		trackArg(), stepArg(),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(names(sequencer.TriggerKinds())...)),
	), s.handleSetTrigger)

	s.mcp.AddTool(mcp.NewTool("set_step_field",
		mcp.WithDescription("Set pitch (0-127), velocity (0-127), length (0.1-4 steps), offset (-23..23 24ths of a step) or probability (0-100) of a step."),
		trackArg(), stepArg(),
		mcp.WithString("field", mcp.Required(), mcp.Enum("pitch", "velocity", "length", "offset", "probability")),
		mcp.WithNumber("value", mcp.Required()),
	), s.handleSetStepField)

	s.mcp.AddTool(mcp.NewTool("set_lock",
		mcp.WithDescription("Lock a parameter (MIDI CC number) to a value 0-1 on one step."),
		trackArg(), stepArg(),
		mcp.WithNumber("param", mcp.Required(), mcp.Description("Parameter id, 0-127.")),
		mcp.WithNumber("value", mcp.Required()),
	), s.handleSetLock)

	s.mcp.AddTool(mcp.NewTool("clear_lock",
		mcp.WithDescription("Remove a parameter lock from a step."),
		trackArg(), stepArg(),
		mcp.WithNumber("param", mcp.Required()),
	), s.handleClearLock)

	s.mcp.AddTool(mcp.NewTool("set_default",
		mcp.WithDescription("Set a track's default value 0-1 for a parameter."),
		trackArg(),
		mcp.WithNumber("param", mcp.Required()),
		mcp.WithNumber("value", mcp.Required()),
	), s.handleSetDefault)

	s.mcp.AddTool(mcp.NewTool("set_modulator",
		mcp.WithDescription("Set a field of the track modulator. Waveform is given by name in 'waveform', other fields by 'value'."),
		trackArg(),
		mcp.WithString("field", mcp.Required(), mcp.Enum("waveform", "amount", "rate", "destination", "phase")),
		mcp.WithNumber("value"),
		mcp.WithString("waveform", mcp.Enum(names(sequencer.Waveforms())...)),
	), s.handleSetModulator)

	s.mcp.AddTool(mcp.NewTool("set_modulator_point",
		mcp.WithDescription("Set one of the 16 points (-1..1) of the custom modulator shape."),
		trackArg(),
		mcp.WithNumber("index", mcp.Required()),
		mcp.WithNumber("value", mcp.Required()),
	), s.handleSetModulatorPoint)

	s.mcp.AddTool(mcp.NewTool("set_machine",
		mcp.WithDescription("Select the machine a track drives."),
		trackArg(),
		mcp.WithString("machine", mcp.Required(), mcp.Enum(names(sequencer.MachineKinds())...)),
	), s.handleSetMachine)

	s.mcp.AddTool(mcp.NewTool("set_length",
		mcp.WithDescription("Set how many steps a track plays before it wraps."),
		trackArg(),
		mcp.WithNumber("length", mcp.Required()),
	), s.handleSetLength)

	s.mcp.AddTool(mcp.NewTool("mute",
		mcp.WithDescription("Mute or unmute a track."),
		trackArg(),
		mcp.WithBoolean("muted", mcp.Required()),
	), s.handleMute)

	s.mcp.AddTool(mcp.NewTool("add_track",
		mcp.WithDescription("Append a track with default settings."),
	), s.handleAddTrack)

	s.mcp.AddTool(mcp.NewTool("remove_track",
		mcp.WithDescription("Remove a track. The last remaining track cannot be removed."),
		trackArg(),
	), s.handleRemoveTrack)

	s.mcp.AddTool(mcp.NewTool("snapshot",
		mcp.WithDescription("Report transport state, playhead position and which tracks fired."),
	), s.handleSnapshot)

	s.mcp.AddTool(mcp.NewTool("pattern",
		mcp.WithDescription("Return the whole pattern as JSON."),
	), s.handlePattern)

	s.mcp.AddTool(mcp.NewTool("load_pattern",
		mcp.WithDescription("Replace the whole pattern with JSON in the format the pattern tool returns."),
		mcp.WithString("pattern-json", mcp.Required()),
	), s.handleLoadPattern)
}

func names[T fmt.Stringer](kinds []T) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

// send pushes c and mirrors it. Errors come back as tool results so the
// client sees them.
func (s *Server) send(c sequencer.Command) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(c)
}

func (s *Server) sendLocked(c sequencer.Command) (*mcp.CallToolResult, error) {
	debug.Log("mcp", "command %s track=%d step=%d", c.Kind, c.Track, c.Step)
	if err := s.engine.Push(c); err != nil {
		if errors.Is(err, sequencer.ErrChannelFull) {
			return mcp.NewToolResultError("engine busy, try again"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.pattern.Apply(c)
	return mcp.NewToolResultText("ok"), nil
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.send(sequencer.Start())
}

func (s *Server) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.send(sequencer.Stop())
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.send(sequencer.Continue())
}

func (s *Server) handleSetTempo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bpm, err := request.RequireFloat("bpm")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetTempo(bpm))
}

func trackStep(request mcp.CallToolRequest) (track, step int, err error) {
	if track, err = request.RequireInt("track"); err != nil {
		return
	}
	step, err = request.RequireInt("step")
	return
}

func (s *Server) handleToggleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, step, err := trackStep(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.ToggleStep(track, step))
}

func (s *Server) handleSetTrigger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, step, err := trackStep(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, ok := sequencer.ParseTriggerKind(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown trigger kind %q", name)), nil
	}
	return s.send(sequencer.SetTriggerKind(track, step, kind))
}

func (s *Server) handleSetStepField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, step, err := trackStep(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, ok := stepFields[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown step field %q", name)), nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetStepField(track, step, field, value))
}

func (s *Server) handleSetLock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, step, err := trackStep(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	param, err := request.RequireInt("param")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetParameterLock(track, step, param, value))
}

func (s *Server) handleClearLock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, step, err := trackStep(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	param, err := request.RequireInt("param")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.ClearParameterLock(track, step, param))
}

func (s *Server) handleSetDefault(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	param, err := request.RequireInt("param")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetTrackDefault(track, param, value))
}

func (s *Server) handleSetModulator(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("field")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	field, ok := modFields[name]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown modulator field %q", name)), nil
	}

	var value float64
	if field == sequencer.ModWaveform {
		wave, err := request.RequireString("waveform")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		w, ok := sequencer.ParseWaveform(wave)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown waveform %q", wave)), nil
		}
		value = float64(w)
	} else if value, err = request.RequireFloat("value"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetModulator(track, field, value))
}

func (s *Server) handleSetModulatorPoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := request.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetModulatorPoint(track, index, value))
}

func (s *Server) handleSetMachine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("machine")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m, ok := sequencer.ParseMachineKind(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown machine %q", name)), nil
	}
	return s.send(sequencer.SetMachine(track, m))
}

func (s *Server) handleSetLength(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	length, err := request.RequireInt("length")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetTrackLength(track, length))
}

func (s *Server) handleMute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	muted, err := request.RequireBool("muted")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.send(sequencer.SetMute(track, muted))
}

func (s *Server) handleAddTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pattern.Tracks) >= sequencer.MaxTracks {
		return mcp.NewToolResultError(fmt.Sprintf("pattern already has %d tracks", sequencer.MaxTracks)), nil
	}
	return s.sendLocked(sequencer.AddTrack())
}

func (s *Server) handleRemoveTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Rehearse on a copy to report the rejection the engine would apply silently
	if err := s.pattern.Clone().RemoveTrack(track); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.sendLocked(sequencer.RemoveTrack(track))
}

// snapshotReport is the JSON shape of the snapshot tool
type snapshotReport struct {
	Running  bool    `json:"running"`
	Position int     `json:"position"`
	Tick     uint64  `json:"tick"`
	Tempo    float64 `json:"tempo"`
	Tracks   int     `json:"tracks"`
	Fired    []int   `json:"fired"`
	Steps    []int   `json:"steps"`
}

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	snap := s.engine.Snapshot()
	s.mu.Unlock()

	r := snapshotReport{
		Running:  snap.Running,
		Position: snap.Position,
		Tick:     snap.Tick,
		Tempo:    snap.Tempo,
		Tracks:   snap.NumTracks,
		Fired:    []int{},
		Steps:    snap.Steps[:snap.NumTracks],
	}
	for i, f := range snap.Fired[:snap.NumTracks] {
		if f {
			r.Fired = append(r.Fired, i)
		}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handlePattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.pattern, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("marshal pattern: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleLoadPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("pattern-json")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p := &sequencer.Pattern{}
	if err := json.Unmarshal([]byte(raw), p); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse pattern: %v", err)), nil
	}
	p.Normalize()
	return s.replace(p)
}

// replace hands p to the engine and keeps a copy as the new mirror
func (s *Server) replace(p *sequencer.Pattern) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debug.Log("mcp", "replacing pattern: %d tracks, %d steps", len(p.Tracks), p.StepsPerLoop)
	if err := s.engine.Push(sequencer.ReplacePattern(p)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.pattern = p.Clone()
	return mcp.NewToolResultText("ok"), nil
}

func (s *Server) handleListSaves(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	saves, err := s.store.ListSaves(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.Marshal(saves)
	if err != nil {
		return nil, fmt.Errorf("marshal saves: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleSaveProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	label := request.GetString("label", "")

	s.mu.Lock()
	filename, err := s.store.Save(name, label, s.pattern, time.Now())
	s.mu.Unlock()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(filename), nil
}

func (s *Server) handleLoadProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.store.Load(name, request.GetString("filename", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.replace(p)
}
