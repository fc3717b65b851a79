package sequencer

import "fmt"

// NumParams is the number of parameter slots per track. Parameter ids double
// as MIDI CC numbers on the MIDI output.
const NumParams = 128

// Named parameter ids, following the MIDI sound controller assignments.
const (
	ParamVolume    = 7
	ParamPan       = 10
	ParamResonance = 71
	ParamRelease   = 72
	ParamAttack    = 73
	ParamCutoff    = 74
	ParamDecay     = 75
)

// DefaultParamValue is the normalized value every track default starts at.
const DefaultParamValue = 0.5

// Pattern and step limits
const (
	MaxTracks           = 16
	MaxSteps            = 64
	DefaultTracks       = 4
	DefaultStepsPerLoop = 16
	DefaultTempo        = 120.0
	MinTempo            = 20.0
	MaxTempo            = 300.0
)

// Step field ranges
const (
	MinLength      = 0.1
	MaxLength      = 4.0
	MinOffset      = -23
	MaxOffset      = 23
	OffsetsPerStep = 24 // micro-timing resolution, 1/24 of a step
	MaxProbability = 100
	MaxMIDIValue   = 127
)

// Modulator ranges
const (
	MinRate     = 0.1
	MaxRate     = 4.0
	TablePoints = 16
)

// MachineKind identifies the synthesis or sample engine a track drives
type MachineKind uint8

const (
	MachineOneShot MachineKind = iota
	MachineWerp
	MachineSlice
	MachineFMTone
	MachineSubtractive
	MachineTonverkBus
	MachineMIDICC
	numMachines
)

var machineNames = [numMachines]string{
	"one-shot", "werp", "slice", "fm-tone", "subtractive", "tonverk-bus", "midi-cc",
}

func (m MachineKind) String() string {
	if m >= numMachines {
		return "unknown"
	}
	return machineNames[m]
}

// Valid reports whether m is one of the known machines
func (m MachineKind) Valid() bool {
	return m < numMachines
}

// ParseMachineKind maps a name from String back to its machine
func ParseMachineKind(name string) (MachineKind, bool) {
	for i, n := range machineNames {
		if n == name {
			return MachineKind(i), true
		}
	}
	return MachineOneShot, false
}

func (m MachineKind) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *MachineKind) UnmarshalText(b []byte) error {
	v, ok := ParseMachineKind(string(b))
	if !ok {
		return fmt.Errorf("unknown machine %q", b)
	}
	*m = v
	return nil
}

// MachineKinds lists every machine in display order
func MachineKinds() []MachineKind {
	out := make([]MachineKind, numMachines)
	for i := range out {
		out[i] = MachineKind(i)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	// NaN compares false against everything; pin it to the low bound
	if v != v || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampToInt clamps in float before converting, so huge and infinite
// values land on the matching bound
func clampToInt(v float64, lo, hi int) int {
	return int(clampFloat(v, float64(lo), float64(hi)))
}

func clampUnit(v float64) float32 {
	return float32(clampFloat(v, 0, 1))
}

func clampBipolar(v float64) float32 {
	return float32(clampFloat(v, -1, 1))
}

func validParam(id int) bool {
	return id >= 0 && id < NumParams
}
