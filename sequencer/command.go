package sequencer

// CommandKind selects which mutation a Command carries
type CommandKind uint8

const (
	CmdNone CommandKind = iota
	CmdSetTriggerKind
	CmdSetStepField
	CmdSetParameterLock
	CmdSetTrackDefault
	CmdSetModulator
	CmdAddTrack
	CmdRemoveTrack
	CmdSetTempo
	CmdStart
	CmdContinue
	CmdStop
	CmdSetMachine
	CmdSetTrackLength
	CmdSetMute
	CmdSetChannel
	CmdSetModulatorPoint
	CmdToggleStep
	CmdClearStep
	CmdReplacePattern
)

var commandNames = [...]string{
	"none", "set-trigger", "set-step-field", "set-lock", "set-default",
	"set-modulator", "add-track", "remove-track", "set-tempo", "start",
	"continue", "stop", "set-machine", "set-length", "set-mute",
	"set-channel", "set-mod-point", "toggle-step", "clear-step",
	"replace-pattern",
}

func (k CommandKind) String() string {
	if int(k) >= len(commandNames) {
		return "unknown"
	}
	return commandNames[k]
}

// StepField selects the scalar a SetStepField command writes
type StepField uint8

const (
	FieldPitch StepField = iota
	FieldVelocity
	FieldLength
	FieldOffset
	FieldProbability
)

// Command is one mutation sent from the control side to the tick side. It is
// a plain value so pushing it never allocates; only the fields its Kind
// names are read.
type Command struct {
	Kind    CommandKind
	Track   int
	Step    int
	Param   int     // parameter id, step field, modulator field or table index
	Value   float64 // scalar payload
	Clear   bool    // SetParameterLock: remove the lock; SetMute: unmute
	Trigger TriggerKind
	Machine MachineKind
	Pattern *Pattern // ReplacePattern only, built and normalized by the caller
}

// SetTriggerKind sets the trigger of one step
func SetTriggerKind(track, step int, kind TriggerKind) Command {
	return Command{Kind: CmdSetTriggerKind, Track: track, Step: step, Trigger: kind}
}

// SetStepField sets one scalar of a step
func SetStepField(track, step int, field StepField, value float64) Command {
	return Command{Kind: CmdSetStepField, Track: track, Step: step, Param: int(field), Value: value}
}

// SetParameterLock locks parameter id on a step to value
func SetParameterLock(track, step, id int, value float64) Command {
	return Command{Kind: CmdSetParameterLock, Track: track, Step: step, Param: id, Value: value}
}

// ClearParameterLock removes the lock of parameter id on a step
func ClearParameterLock(track, step, id int) Command {
	return Command{Kind: CmdSetParameterLock, Track: track, Step: step, Param: id, Clear: true}
}

// SetTrackDefault sets the default value of parameter id on a track
func SetTrackDefault(track, id int, value float64) Command {
	return Command{Kind: CmdSetTrackDefault, Track: track, Param: id, Value: value}
}

// SetModulator sets one field of a track's modulator
func SetModulator(track int, field ModField, value float64) Command {
	return Command{Kind: CmdSetModulator, Track: track, Param: int(field), Value: value}
}

// SetModulatorPoint sets one point of a track's custom modulator table
func SetModulatorPoint(track, index int, value float64) Command {
	return Command{Kind: CmdSetModulatorPoint, Track: track, Param: index, Value: value}
}

func AddTrack() Command { return Command{Kind: CmdAddTrack} }

func RemoveTrack(track int) Command { return Command{Kind: CmdRemoveTrack, Track: track} }

func SetTempo(bpm float64) Command { return Command{Kind: CmdSetTempo, Value: bpm} }

// Start rewinds to step 0 and runs
func Start() Command { return Command{Kind: CmdStart} }

// Continue resumes from the current position
func Continue() Command { return Command{Kind: CmdContinue} }

func Stop() Command { return Command{Kind: CmdStop} }

func SetMachine(track int, m MachineKind) Command {
	return Command{Kind: CmdSetMachine, Track: track, Machine: m}
}

// SetTrackLength sets the polymeter length of a track
func SetTrackLength(track, length int) Command {
	return Command{Kind: CmdSetTrackLength, Track: track, Value: float64(length)}
}

func SetMute(track int, muted bool) Command {
	return Command{Kind: CmdSetMute, Track: track, Clear: !muted}
}

// SetChannel routes a track to MIDI channel 1-16
func SetChannel(track, channel int) Command {
	return Command{Kind: CmdSetChannel, Track: track, Value: float64(channel)}
}

// ToggleStep flips a step between None and Note
func ToggleStep(track, step int) Command {
	return Command{Kind: CmdToggleStep, Track: track, Step: step}
}

// ClearStep restores a step to its defaults
func ClearStep(track, step int) Command {
	return Command{Kind: CmdClearStep, Track: track, Step: step}
}

// ReplacePattern swaps in a whole pattern. p must not be touched by the
// caller after pushing.
func ReplacePattern(p *Pattern) Command {
	return Command{Kind: CmdReplacePattern, Pattern: p}
}

// Apply performs one pattern mutation. Stale indices and unknown kinds are
// ignored and every value is clamped to its range. Transport commands and
// ReplacePattern are handled by the engine and are no-ops here.
func (p *Pattern) Apply(c Command) {
	switch c.Kind {
	case CmdSetTriggerKind:
		if s := p.Step(c.Track, c.Step); s != nil && c.Trigger.Valid() {
			s.Trigger = c.Trigger
		}

	case CmdSetStepField:
		s := p.Step(c.Track, c.Step)
		if s == nil {
			return
		}
		switch StepField(c.Param) {
		case FieldPitch:
			s.Pitch = uint8(clampToInt(c.Value, 0, MaxMIDIValue))
		case FieldVelocity:
			s.Velocity = uint8(clampToInt(c.Value, 0, MaxMIDIValue))
		case FieldLength:
			s.Length = float32(clampFloat(c.Value, MinLength, MaxLength))
		case FieldOffset:
			s.Offset = int8(clampToInt(c.Value, MinOffset, MaxOffset))
		case FieldProbability:
			s.Probability = uint8(clampToInt(c.Value, 0, MaxProbability))
		}

	case CmdSetParameterLock:
		s := p.Step(c.Track, c.Step)
		if s == nil || !validParam(c.Param) {
			return
		}
		if c.Clear {
			s.Locks[c.Param] = Lock{}
		} else {
			s.Locks[c.Param] = Lock{Set: true, Value: clampUnit(c.Value)}
		}

	case CmdSetTrackDefault:
		if t := p.Track(c.Track); t != nil && validParam(c.Param) {
			t.Defaults[c.Param] = clampUnit(c.Value)
		}

	case CmdSetModulator:
		if t := p.Track(c.Track); t != nil {
			if m := t.Modulator(); m != nil {
				m.Set(ModField(c.Param), c.Value)
			}
		}

	case CmdSetModulatorPoint:
		if t := p.Track(c.Track); t != nil {
			if m := t.Modulator(); m != nil {
				m.SetPoint(c.Param, c.Value)
			}
		}

	case CmdAddTrack:
		_, _ = p.AddTrack()

	case CmdRemoveTrack:
		_ = p.RemoveTrack(c.Track)

	case CmdSetTempo:
		p.SetTempo(c.Value)

	case CmdSetMachine:
		if t := p.Track(c.Track); t != nil && c.Machine.Valid() {
			t.Machine = c.Machine
		}

	case CmdSetTrackLength:
		if t := p.Track(c.Track); t != nil {
			t.Length = clampToInt(c.Value, 1, len(t.Steps()))
		}

	case CmdSetMute:
		if t := p.Track(c.Track); t != nil {
			t.Muted = !c.Clear
		}

	case CmdSetChannel:
		if t := p.Track(c.Track); t != nil {
			t.Channel = uint8(clampToInt(c.Value, 1, 16))
		}

	case CmdToggleStep:
		if s := p.Step(c.Track, c.Step); s != nil {
			if s.Trigger == TriggerNone {
				s.Trigger = TriggerNote
			} else {
				s.Trigger = TriggerNone
			}
		}

	case CmdClearStep:
		if s := p.Step(c.Track, c.Step); s != nil {
			s.Clear()
		}
	}
}
