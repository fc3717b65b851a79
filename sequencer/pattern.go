package sequencer

import "fmt"

// Pattern is the root of the sequencer data: an ordered list of tracks plus
// the global clock settings. It holds no hidden state, so it round-trips
// through JSON unchanged.
//
// Track storage is allocated up front for MaxTracks tracks of MaxSteps steps,
// so AddTrack and RemoveTrack never allocate once the pattern exists.
type Pattern struct {
	Tempo        float64 `json:"tempo"`
	StepsPerLoop int     `json:"stepsPerLoop"`
	Tracks       []Track `json:"tracks"`
}

// NewPattern creates a pattern with the given number of tracks and steps
func NewPattern(tracks, steps int) *Pattern {
	tracks = clampInt(tracks, 1, MaxTracks)
	steps = clampInt(steps, 1, MaxSteps)

	p := &Pattern{
		Tempo:        DefaultTempo,
		StepsPerLoop: steps,
	}
	all := make([]Track, MaxTracks)
	for i := range all {
		all[i] = newTrack(i, steps)
	}
	p.Tracks = all[:tracks]
	return p
}

// DefaultPattern creates the startup pattern: 4 tracks of 16 steps at 120 BPM
func DefaultPattern() *Pattern {
	return NewPattern(DefaultTracks, DefaultStepsPerLoop)
}

// Track returns the track at idx, or nil when out of range
func (p *Pattern) Track(idx int) *Track {
	if idx < 0 || idx >= len(p.Tracks) {
		return nil
	}
	return &p.Tracks[idx]
}

// Step returns the step at (track, step), or nil when either is out of range
func (p *Pattern) Step(track, step int) *Step {
	t := p.Track(track)
	if t == nil {
		return nil
	}
	return t.Step(step)
}

// AddTrack appends a track with default values and returns its index
func (p *Pattern) AddTrack() (int, error) {
	n := len(p.Tracks)
	if n >= MaxTracks {
		return n, fmt.Errorf("add track: %d tracks is the maximum: %w", MaxTracks, ErrInvariantViolation)
	}
	if n < cap(p.Tracks) {
		p.Tracks = p.Tracks[:n+1]
		if len(p.Tracks[n].Subtracks) == 0 || cap(p.Tracks[n].Subtracks[0].Steps) < p.StepsPerLoop || len(p.Tracks[n].Modulators) == 0 {
			p.Tracks[n] = newTrack(n, p.StepsPerLoop)
		} else {
			p.Tracks[n].reset(n, p.StepsPerLoop)
		}
	} else {
		p.Tracks = append(p.Tracks, newTrack(n, p.StepsPerLoop))
	}
	return n, nil
}

// RemoveTrack removes the track at idx and renumbers the tracks after it. It
// refuses to remove the last remaining track.
func (p *Pattern) RemoveTrack(idx int) error {
	n := len(p.Tracks)
	if idx < 0 || idx >= n {
		return fmt.Errorf("remove track %d: no such track: %w", idx, ErrInvariantViolation)
	}
	if n == 1 {
		return fmt.Errorf("remove track %d: pattern needs at least one track: %w", idx, ErrInvariantViolation)
	}

	// Rotate the removed track to the end so its storage is kept for reuse
	// and no two tracks share a step slice.
	removed := p.Tracks[idx]
	copy(p.Tracks[idx:], p.Tracks[idx+1:])
	p.Tracks[n-1] = removed
	p.Tracks = p.Tracks[:n-1]

	for i := idx; i < len(p.Tracks); i++ {
		p.Tracks[i].ID = i
	}
	return nil
}

// SetTempo sets the BPM, clamped to MinTempo..MaxTempo
func (p *Pattern) SetTempo(bpm float64) {
	p.Tempo = clampFloat(bpm, MinTempo, MaxTempo)
}

// EffectiveParam returns the value a step plays for parameter id: its lock if
// set, otherwise the track default. ok is false for stale indices.
func (p *Pattern) EffectiveParam(track, step, id int) (v float32, ok bool) {
	t := p.Track(track)
	if t == nil || !validParam(id) {
		return 0, false
	}
	s := t.Step(step)
	if s == nil {
		return 0, false
	}
	return s.Param(id, t.Defaults[id]), true
}

// Normalize repairs a pattern built outside NewPattern, typically one decoded
// from JSON: every scalar is clamped, ids are renumbered, steps are padded or
// truncated to StepsPerLoop and track storage is preallocated again.
func (p *Pattern) Normalize() {
	p.Tempo = clampFloat(p.Tempo, MinTempo, MaxTempo)
	if p.StepsPerLoop <= 0 {
		p.StepsPerLoop = DefaultStepsPerLoop
	}
	p.StepsPerLoop = clampInt(p.StepsPerLoop, 1, MaxSteps)

	n := clampInt(len(p.Tracks), 1, MaxTracks)
	all := make([]Track, MaxTracks)
	for i := range all {
		if i < len(p.Tracks) && i < n {
			all[i] = p.Tracks[i]
			all[i].normalize(i, p.StepsPerLoop)
		} else {
			all[i] = newTrack(i, p.StepsPerLoop)
		}
	}
	p.Tracks = all[:n]
}

// Clone returns a deep copy with its own preallocated storage
func (p *Pattern) Clone() *Pattern {
	c := &Pattern{
		Tempo:        p.Tempo,
		StepsPerLoop: p.StepsPerLoop,
	}
	all := make([]Track, max(MaxTracks, len(p.Tracks)))
	for i := range all {
		if i < len(p.Tracks) {
			all[i] = p.Tracks[i].clone()
		} else {
			all[i] = newTrack(i, clampInt(p.StepsPerLoop, 1, MaxSteps))
		}
	}
	c.Tracks = all[:len(p.Tracks)]
	return c
}
