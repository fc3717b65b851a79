package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"flux-sequence/sequencer"
)

// MIDIConfig selects the MIDI ports
type MIDIConfig struct {
	Port  string `json:"port,omitempty" yaml:"port,omitempty"`   // output port name, empty disables MIDI out
	Input string `json:"input,omitempty" yaml:"input,omitempty"` // input port for transport and step recording
}

// AudioConfig controls the built-in preview synth
type AudioConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// EngineConfig sizes the sequencer engine
type EngineConfig struct {
	Tracks       int     `json:"tracks" yaml:"tracks"`
	StepsPerLoop int     `json:"stepsPerLoop" yaml:"stepsPerLoop"`
	Tempo        float64 `json:"tempo" yaml:"tempo"`
	Capacity     int     `json:"capacity" yaml:"capacity"` // command channel slots
	Seed         uint64  `json:"seed" yaml:"seed"`         // 0 picks a random seed
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty" yaml:"palette,omitempty"` // path to a GIMP .gpl palette
}

// Config is the main configuration structure
type Config struct {
	Engine EngineConfig `json:"engine" yaml:"engine"`
	MIDI   MIDIConfig   `json:"midi" yaml:"midi"`
	Audio  AudioConfig  `json:"audio" yaml:"audio"`
	UI     UIConfig     `json:"ui,omitempty" yaml:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Tracks:       sequencer.DefaultTracks,
			StepsPerLoop: sequencer.DefaultStepsPerLoop,
			Tempo:        sequencer.DefaultTempo,
			Capacity:     sequencer.DefaultCapacity,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "flux-sequence"), nil
}

// Load reads config.yaml or config.json from the config directory, or
// returns defaults if neither exists
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return DefaultConfig(), nil
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		cfg, err := LoadFile(filepath.Join(dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return DefaultConfig(), nil
}

// LoadFile reads one config file. YAML is chosen by extension, anything
// else is parsed as JSON. Fields the file leaves out keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.clamp()
	return cfg, nil
}

func (c *Config) clamp() {
	e := &c.Engine
	if e.Tracks < 1 || e.Tracks > sequencer.MaxTracks {
		e.Tracks = sequencer.DefaultTracks
	}
	if e.StepsPerLoop < 1 || e.StepsPerLoop > sequencer.MaxSteps {
		e.StepsPerLoop = sequencer.DefaultStepsPerLoop
	}
	if e.Tempo < sequencer.MinTempo || e.Tempo > sequencer.MaxTempo {
		e.Tempo = sequencer.DefaultTempo
	}
	if e.Capacity <= 0 {
		e.Capacity = sequencer.DefaultCapacity
	}
}

// Save writes the config to config.json in the config directory
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return c.SaveFile(filepath.Join(dir, "config.json"))
}

// SaveFile writes the config as JSON, creating the directory if needed
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// NewPattern builds the startup pattern described by the engine settings
func (c *Config) NewPattern() *sequencer.Pattern {
	p := sequencer.NewPattern(c.Engine.Tracks, c.Engine.StepsPerLoop)
	p.SetTempo(c.Engine.Tempo)
	return p
}
