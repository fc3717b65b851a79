package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StepCell is one cell of a rendered step row
type StepCell struct {
	Symbol  rune
	Color   lipgloss.Color
	Playing bool // playhead is on this step
	Cursor  bool // edit cursor is on this step
}

// RenderStepRow renders cells left to right, with an extra space every group
// steps so bars read at a glance
func RenderStepRow(cells []StepCell, group int) string {
	var out strings.Builder
	for i, c := range cells {
		if i > 0 {
			out.WriteString(" ")
			if group > 0 && i%group == 0 {
				out.WriteString(" ")
			}
		}
		style := lipgloss.NewStyle().Foreground(c.Color)
		if c.Playing {
			style = style.Bold(true)
		}
		if c.Cursor {
			style = style.Reverse(true)
		}
		out.WriteString(style.Render(string(c.Symbol)))
	}
	return out.String()
}

// RenderMeter draws v (0-1) as a bar of width cells
func RenderMeter(v float32, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	v = min(max(v, 0), 1)
	filled := int(v*float32(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// RenderKeyLine packs bindings onto a single line, "key:desc" separated by
// two spaces
func RenderKeyLine(keys []KeyBinding) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Key + ":" + k.Desc
	}
	return strings.Join(parts, "  ")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
