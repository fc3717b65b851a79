package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"flux-sequence/sequencer"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Step cells by trigger kind
	StepEmpty    rune // · no trigger
	StepNote     rune // ● note
	StepOneShot  rune // ◆ one-shot
	StepLock     rune // ◇ parameter lock only
	StepTrigless rune // ○ trigless
	StepBeyond   rune // - past track length

	Playhead rune // ▶ step playing now
	Cursor   rune // ▷ edit cursor
	Muted    rune // ✕ muted track marker
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepEmpty:    '·',
			StepNote:     '●',
			StepOneShot:  '◆',
			StepLock:     '◇',
			StepTrigless: '○',
			StepBeyond:   '-',

			Playhead: '▶',
			Cursor:   '▷',
			Muted:    '✕',
		},
	}
}

// Step returns the symbol for a step's trigger kind
func (t *Theme) Step(k sequencer.TriggerKind) rune {
	switch k {
	case sequencer.TriggerNote:
		return t.Symbols.StepNote
	case sequencer.TriggerOneShot:
		return t.Symbols.StepOneShot
	case sequencer.TriggerLock:
		return t.Symbols.StepLock
	case sequencer.TriggerTrigless:
		return t.Symbols.StepTrigless
	}
	return t.Symbols.StepEmpty
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleCursor  = 0.6
	RoleActive  = 0.7
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Cursor() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleCursor))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// Track spreads track colors over the bright half of the palette
func (t *Theme) Track(i int) lipgloss.Color {
	norm := 0.4 + 0.6*float64(i%sequencer.MaxTracks)/float64(sequencer.MaxTracks-1)
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

// Level colors a normalized parameter value
func (t *Theme) Level(v float32) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(float64(v)))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
