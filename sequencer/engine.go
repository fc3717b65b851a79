package sequencer

import (
	"math"
	"math/rand/v2"
)

// Options configures a new Engine
type Options struct {
	Capacity int      // command channel size, rounded up to a power of two
	Seed     uint64   // seed for probability and sample-and-hold draws
	Pattern  *Pattern // initial pattern; DefaultPattern when nil
}

// trackState is the runtime of one track, owned by the tick side
type trackState struct {
	phase float64 // modulator phase, 0..1
	held  float64 // sample-and-hold value for WaveRandom
	voice int     // held one-shot note, -1 when none
}

// Engine owns the pattern and evaluates it one step per Tick.
//
// Tick, and everything it calls, runs on a single goroutine and never blocks
// or allocates. Push, Start, Continue, Stop and Snapshot are for one other
// goroutine, the control side.
type Engine struct {
	commands *Channel
	cell     *SnapshotCell

	// tick side
	pattern  *Pattern
	running  bool
	position int
	tick     uint64
	tracks   [MaxTracks]trackState
	rng      *rand.Rand
	modRng   *rand.Rand
	result   TickResult
	applyFn  func(Command)
}

// NewEngine creates a stopped engine
func NewEngine(opts Options) *Engine {
	p := opts.Pattern
	if p == nil {
		p = DefaultPattern()
	} else {
		p.Normalize()
	}
	e := &Engine{
		commands: NewChannel(opts.Capacity),
		cell:     NewSnapshotCell(),
		pattern:  p,
		rng:      rand.New(rand.NewPCG(opts.Seed, 0x9e3779b97f4a7c15)),
		modRng:   rand.New(rand.NewPCG(opts.Seed, 0xbf58476d1ce4e5b9)),
	}
	e.applyFn = e.apply
	for i := range e.tracks {
		e.resetTrack(i)
	}
	e.cell.Publish(e.snapshot())
	return e
}

// Push queues a command for the next Tick. Control side.
func (e *Engine) Push(c Command) error {
	return e.commands.Push(c)
}

// Start queues a rewind-and-play. Control side.
func (e *Engine) Start() error { return e.Push(Start()) }

// Continue queues a resume from the current position. Control side.
func (e *Engine) Continue() error { return e.Push(Continue()) }

// Stop queues a stop. Control side.
func (e *Engine) Stop() error { return e.Push(Stop()) }

// Snapshot returns the latest published playback state. Control side, one
// reader only.
func (e *Engine) Snapshot() PlaybackSnapshot {
	return e.cell.Read()
}

// Pending is the number of commands waiting for the next Tick
func (e *Engine) Pending() int {
	return e.commands.Len()
}

// Capacity is the size of the command channel
func (e *Engine) Capacity() int {
	return e.commands.Cap()
}

// Pattern returns the live pattern. Only the tick side may use it while the
// engine is ticking; tests and offline renderers call it between ticks.
func (e *Engine) Pattern() *Pattern {
	return e.pattern
}

// Running reports the transport state as seen by the tick side
func (e *Engine) Running() bool {
	return e.running
}

// Tick applies pending commands and, when running, evaluates one step. The
// returned result is reused by the next call.
func (e *Engine) Tick() *TickResult {
	r := &e.result
	r.Stopped = false
	r.Started = false
	r.Triggers = r.triggerBuf[:0]
	r.Fired = [MaxTracks]bool{}

	wasRunning := e.running
	applied := e.commands.DrainInto(e.applyFn)

	p := e.pattern
	r.Tempo = p.Tempo
	r.NumTracks = len(p.Tracks)
	r.Tick = e.tick
	r.Position = e.position

	if !e.running {
		r.Running = false
		r.Stopped = wasRunning
		if wasRunning || applied > 0 {
			e.cell.Publish(e.snapshot())
		}
		return r
	}
	r.Running = true

	var snap PlaybackSnapshot
	for i := range p.Tracks {
		t := &p.Tracks[i]
		ts := &e.tracks[i]

		idx := e.stepIndex(t, p.StepsPerLoop)
		s := t.Step(idx)
		snap.Steps[i] = idx

		off := e.advanceModulator(t, ts, p.StepsPerLoop)
		m := t.Modulator()
		if m != nil {
			base := s.Param(m.Destination, t.Defaults[m.Destination])
			r.Modulation[i] = Modulation{
				Channel:     t.Channel,
				Destination: m.Destination,
				Offset:      float32(off),
				Value:       clampUnit(float64(base) + off),
			}
		}

		if !t.Muted && s.Trigger != TriggerNone && e.passes(s.Probability) {
			r.Fired[i] = true
			e.emit(r, i, idx, t, ts, s, off)
		}
	}
	for i := len(p.Tracks); i < MaxTracks; i++ {
		r.Modulation[i] = Modulation{}
	}

	snap.Running = true
	snap.Position = e.position
	snap.Tick = e.tick
	snap.NumTracks = len(p.Tracks)
	snap.Fired = r.Fired
	snap.Tempo = p.Tempo
	e.cell.Publish(snap)

	e.tick++
	e.position = (e.position + 1) % p.StepsPerLoop
	return r
}

// stepIndex is the step a track plays this tick. Full-length tracks follow
// the loop position; shorter ones wrap the tick counter.
func (e *Engine) stepIndex(t *Track, steps int) int {
	idx := e.position
	if t.Length < steps {
		idx = int(e.tick % uint64(t.Length))
	}
	if idx >= len(t.Steps()) {
		idx = 0
	}
	return idx
}

// emit appends the trigger for track i playing step idx
func (e *Engine) emit(r *TickResult, i, idx int, t *Track, ts *trackState, s *Step, mod float64) {
	r.Triggers = r.Triggers[:len(r.Triggers)+1]
	tr := &r.Triggers[len(r.Triggers)-1]

	tr.Track = i
	tr.Kind = s.Trigger
	tr.Machine = t.Machine
	tr.Channel = t.Channel
	tr.Note = s.Pitch
	tr.Velocity = s.Velocity
	tr.Offset = float64(s.Offset) / OffsetsPerStep
	tr.Length = 0
	tr.Release = false
	tr.ReleaseNote = 0

	t.Resolve(idx, &tr.Params)
	for id := range tr.Locked {
		tr.Locked[id] = s.Locks[id].Set
	}
	if m := t.Modulator(); m != nil {
		d := m.Destination
		tr.Params[d] = clampUnit(float64(tr.Params[d]) + mod)
	}

	if s.Trigger.Starts() {
		if ts.voice >= 0 {
			tr.Release = true
			tr.ReleaseNote = uint8(ts.voice)
			ts.voice = -1
		}
		if s.Trigger == TriggerNote {
			tr.Length = float64(s.Length)
		} else {
			ts.voice = int(s.Pitch)
		}
	}
}

// passes draws against a 0-100 probability
func (e *Engine) passes(prob uint8) bool {
	switch {
	case prob == 0:
		return false
	case prob >= MaxProbability:
		return true
	}
	return e.rng.IntN(MaxProbability)+1 <= int(prob)
}

// advanceModulator moves the phase one step forward and returns the scaled
// sample at the new phase
func (e *Engine) advanceModulator(t *Track, ts *trackState, steps int) float64 {
	m := t.Modulator()
	if m == nil {
		return 0
	}
	ts.phase += float64(m.Rate) / float64(steps)
	if ts.phase >= 1 {
		ts.phase -= math.Floor(ts.phase)
		ts.held = e.modRng.Float64()*2 - 1
	}
	return m.Sample(ts.phase, ts.held)
}

// apply handles one drained command on the tick side
func (e *Engine) apply(c Command) {
	switch c.Kind {
	case CmdStart:
		e.running = true
		e.position = 0
		e.tick = 0
		for i := range e.tracks {
			e.resetTrack(i)
		}
		e.result.Started = true
	case CmdContinue:
		e.running = true
	case CmdStop:
		e.running = false
		for i := range e.tracks {
			e.tracks[i].voice = -1
		}
	// rejected structural changes must not reach the pattern, its errors allocate
	case CmdAddTrack:
		if len(e.pattern.Tracks) >= MaxTracks {
			return
		}
		if i, err := e.pattern.AddTrack(); err == nil {
			e.resetTrack(i)
		}
	case CmdRemoveTrack:
		n := len(e.pattern.Tracks)
		if n <= 1 || c.Track < 0 || c.Track >= n {
			return
		}
		if err := e.pattern.RemoveTrack(c.Track); err == nil {
			removed := e.tracks[c.Track]
			copy(e.tracks[c.Track:n], e.tracks[c.Track+1:n])
			e.tracks[n-1] = removed
		}
	case CmdReplacePattern:
		if !playable(c.Pattern) {
			return
		}
		e.pattern = c.Pattern
		e.position %= e.pattern.StepsPerLoop
		for i := len(e.pattern.Tracks); i < MaxTracks; i++ {
			e.resetTrack(i)
		}
	default:
		e.pattern.Apply(c)
	}
}

func (e *Engine) resetTrack(i int) {
	ts := &e.tracks[i]
	ts.phase = 0
	ts.held = e.modRng.Float64()*2 - 1
	ts.voice = -1
	if i < len(e.pattern.Tracks) {
		if m := e.pattern.Tracks[i].Modulator(); m != nil {
			ts.phase = float64(m.Phase)
		}
	}
}

// playable reports whether the tick loop can run p as is. Anything that
// would index out of range or divide by zero is turned away.
func playable(p *Pattern) bool {
	if p == nil || p.StepsPerLoop < 1 || p.StepsPerLoop > MaxSteps {
		return false
	}
	if len(p.Tracks) == 0 || len(p.Tracks) > MaxTracks || cap(p.Tracks) < MaxTracks {
		return false
	}
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if t.Length < 1 || t.Length > p.StepsPerLoop || len(t.Steps()) < p.StepsPerLoop {
			return false
		}
		if m := t.Modulator(); m != nil && !validParam(m.Destination) {
			return false
		}
	}
	return true
}

// snapshot builds the stopped-state snapshot
func (e *Engine) snapshot() PlaybackSnapshot {
	return PlaybackSnapshot{
		Running:   e.running,
		Position:  e.position,
		Tick:      e.tick,
		NumTracks: len(e.pattern.Tracks),
		Tempo:     e.pattern.Tempo,
	}
}
