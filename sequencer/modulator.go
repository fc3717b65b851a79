package sequencer

import (
	"fmt"
	"math"
)

// Waveform is the shape a modulator cycles through
type Waveform uint8

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSquare
	WaveRandom // sample and hold, new value every cycle
	WaveCustom // 16-point table, linearly interpolated
	numWaveforms
)

var waveNames = [numWaveforms]string{"sine", "triangle", "square", "random", "custom"}

func (w Waveform) String() string {
	if w >= numWaveforms {
		return "unknown"
	}
	return waveNames[w]
}

// Valid reports whether w is one of the known waveforms
func (w Waveform) Valid() bool {
	return w < numWaveforms
}

// ParseWaveform maps a name from String back to its waveform
func ParseWaveform(name string) (Waveform, bool) {
	for i, n := range waveNames {
		if n == name {
			return Waveform(i), true
		}
	}
	return WaveSine, false
}

// Waveforms lists every waveform in order
func Waveforms() []Waveform {
	out := make([]Waveform, numWaveforms)
	for i := range out {
		out[i] = Waveform(i)
	}
	return out
}

func (w Waveform) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Waveform) UnmarshalText(b []byte) error {
	v, ok := ParseWaveform(string(b))
	if !ok {
		return fmt.Errorf("unknown waveform %q", b)
	}
	*w = v
	return nil
}

// Modulator is an LFO attached to a track. Its running phase is owned by the
// engine, not stored here.
type Modulator struct {
	Waveform    Waveform             `json:"waveform"`
	Table       [TablePoints]float32 `json:"table"`       // custom shape, -1..1
	Amount      float32              `json:"amount"`      // -1..1
	Rate        float32              `json:"rate"`        // cycles per loop, 0.1-4.0
	Destination int                  `json:"destination"` // parameter id
	Phase       float32              `json:"phase"`       // start phase, 0..1
}

// NewModulator returns a modulator that is wired but silent
func NewModulator() Modulator {
	return Modulator{
		Waveform:    WaveTriangle,
		Amount:      0,
		Rate:        1,
		Destination: ParamCutoff,
		Phase:       0,
	}
}

// ModField selects the modulator attribute a SetModulator command writes
type ModField uint8

const (
	ModWaveform ModField = iota
	ModAmount
	ModRate
	ModDestination
	ModPhase
)

// Set writes one field, clamping to its range
func (m *Modulator) Set(field ModField, value float64) {
	switch field {
	case ModWaveform:
		w := Waveform(clampToInt(value, 0, int(numWaveforms)-1))
		m.Waveform = w
	case ModAmount:
		m.Amount = clampBipolar(value)
	case ModRate:
		m.Rate = float32(clampFloat(value, MinRate, MaxRate))
	case ModDestination:
		m.Destination = clampToInt(value, 0, NumParams-1)
	case ModPhase:
		m.Phase = clampUnit(value)
	}
}

// SetPoint writes one point of the custom table
func (m *Modulator) SetPoint(index int, value float64) {
	if index < 0 || index >= TablePoints {
		return
	}
	m.Table[index] = clampBipolar(value)
}

// Shape returns the raw waveform value in -1..1 at phase (0..1). held is the
// current sample-and-hold value used by WaveRandom.
func (m *Modulator) Shape(phase, held float64) float64 {
	switch m.Waveform {
	case WaveSine:
		return math.Sin(2 * math.Pi * phase)
	case WaveTriangle:
		switch {
		case phase < 0.25:
			return phase * 4
		case phase < 0.75:
			return 1 - (phase-0.25)*4
		default:
			return -1 + (phase-0.75)*4
		}
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveRandom:
		return held
	case WaveCustom:
		pos := phase * TablePoints
		i := int(pos)
		frac := pos - float64(i)
		a := float64(m.Table[i%TablePoints])
		b := float64(m.Table[(i+1)%TablePoints])
		return a + (b-a)*frac
	}
	return 0
}

// Sample is Shape scaled by Amount
func (m *Modulator) Sample(phase, held float64) float64 {
	return m.Shape(phase, held) * float64(m.Amount)
}

func (m *Modulator) normalize() {
	if !m.Waveform.Valid() {
		m.Waveform = WaveTriangle
	}
	for i := range m.Table {
		m.Table[i] = clampBipolar(float64(m.Table[i]))
	}
	m.Amount = clampBipolar(float64(m.Amount))
	m.Rate = float32(clampFloat(float64(m.Rate), MinRate, MaxRate))
	m.Destination = clampInt(m.Destination, 0, NumParams-1)
	m.Phase = clampUnit(float64(m.Phase))
}
