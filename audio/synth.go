// Package audio renders a test-tone preview of the sequencer output: one
// decaying sine voice per track, driven by the same events as the MIDI sink.
package audio

import (
	"math"
	"sync"

	"github.com/viterin/vek/vek32"

	"flux-sequence/midi"
	"flux-sequence/sequencer"
)

const (
	SampleRate = 44100
	Channels   = 2

	minDecay = 0.02 // seconds, decay param 0
	maxDecay = 2.0  // seconds, decay param 1

	releaseTime = 0.01
)

type voice struct {
	channel  uint8
	note     uint8
	phase    float64
	freq     float64
	amp      float32
	decayMul float32 // per-sample envelope factor
	active   bool

	params [sequencer.NumParams]float32
}

func (v *voice) setDecay(seconds float64) {
	v.decayMul = float32(math.Exp(math.Log(0.001) / (seconds * SampleRate)))
}

// Synth is a midi sink that produces audio. Send and Render may be called
// from different goroutines.
type Synth struct {
	mu     sync.Mutex
	voices [sequencer.MaxTracks]voice
	master float32

	// scratch buffers, grown on demand and then reused
	mono  []float32
	tmp   []float32
	left  []float32
	right []float32
}

// NewSynth returns a silent synth
func NewSynth() *Synth {
	s := &Synth{master: 0.5}
	for i := range s.voices {
		for j := range s.voices[i].params {
			s.voices[i].params[j] = sequencer.DefaultParamValue
		}
	}
	return s
}

func noteToFreq(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// Send applies one event
func (s *Synth) Send(e midi.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.IsAllNotesOff() {
		for i := range s.voices {
			if s.voices[i].channel == e.Channel {
				s.voices[i].active = false
			}
		}
		return nil
	}
	if e.Track < 0 || e.Track >= len(s.voices) {
		return nil
	}
	v := &s.voices[e.Track]

	switch e.Type {
	case midi.NoteOn:
		if e.Velocity == 0 {
			if v.note == e.Note {
				v.setDecay(releaseTime)
			}
			return nil
		}
		v.channel = e.Channel
		v.note = e.Note
		v.freq = noteToFreq(e.Note)
		v.phase = 0
		v.amp = float32(e.Velocity) / 127 * v.params[sequencer.ParamVolume] * 2
		d := float64(v.params[sequencer.ParamDecay])
		v.setDecay(minDecay + d*d*(maxDecay-minDecay))
		v.active = true
	case midi.NoteOff:
		if v.active && v.note == e.Note {
			v.setDecay(releaseTime)
		}
	case midi.CC:
		if int(e.Note) < len(v.params) {
			v.params[e.Note] = float32(e.Velocity) / 127
		}
	}
	return nil
}

// Render fills out with interleaved stereo samples
func (s *Synth) Render(out []float32) {
	frames := len(out) / Channels
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grow(frames)
	left := vek32.Zeros_Into(s.left, frames)
	right := vek32.Zeros_Into(s.right, frames)
	mono := s.mono[:frames]
	tmp := s.tmp[:frames]

	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			continue
		}
		v.render(mono)
		pan := v.params[sequencer.ParamPan]
		vek32.MulNumber_Into(tmp, mono, float32(math.Cos(float64(pan)*math.Pi/2)))
		vek32.Add_Inplace(left, tmp)
		vek32.MulNumber_Into(tmp, mono, float32(math.Sin(float64(pan)*math.Pi/2)))
		vek32.Add_Inplace(right, tmp)
	}
	vek32.MulNumber_Inplace(left, s.master)
	vek32.MulNumber_Inplace(right, s.master)

	for i := 0; i < frames; i++ {
		out[2*i] = left[i]
		out[2*i+1] = right[i]
	}
}

func (s *Synth) grow(frames int) {
	if cap(s.mono) >= frames {
		return
	}
	s.mono = make([]float32, frames)
	s.tmp = make([]float32, frames)
	s.left = make([]float32, frames)
	s.right = make([]float32, frames)
}

// render writes the voice into buf, advancing its phase and envelope. The
// cutoff parameter blends in the second harmonic.
func (v *voice) render(buf []float32) {
	inc := v.freq / SampleRate
	bright := float64(v.params[sequencer.ParamCutoff]) * 0.5
	for i := range buf {
		x := math.Sin(2*math.Pi*v.phase) + bright*math.Sin(4*math.Pi*v.phase)
		buf[i] = float32(x) * v.amp
		v.phase += inc
		if v.phase >= 1 {
			v.phase--
		}
		v.amp *= v.decayMul
	}
	if v.amp < 1e-4 {
		v.active = false
	}
}

// Active reports how many voices are sounding
func (s *Synth) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.voices {
		if s.voices[i].active {
			n++
		}
	}
	return n
}
