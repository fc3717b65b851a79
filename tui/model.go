package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"flux-sequence/debug"
	"flux-sequence/midi"
	"flux-sequence/project"
	"flux-sequence/sequencer"
	"flux-sequence/theme"
	"flux-sequence/widgets"
)

// refreshInterval is how often the view polls the engine snapshot
const refreshInterval = 33 * time.Millisecond

var keyLine = []widgets.KeyBinding{
	{Key: "space", Desc: "start/stop"},
	{Key: "c", Desc: "continue"},
	{Key: "hjkl", Desc: "move"},
	{Key: "enter", Desc: "toggle"},
	{Key: "tab", Desc: "trigger"},
	{Key: ",.", Desc: "pitch"},
	{Key: "<>", Desc: "length"},
	{Key: "[]", Desc: "machine"},
	{Key: "m", Desc: "mute"},
	{Key: "a/d", Desc: "add/del track"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "s", Desc: "save"},
	{Key: "q", Desc: "quit"},
}

// Model is the transport and step grid view. Edits go to the engine as
// commands and are mirrored onto a control-side copy of the pattern, so the
// view never touches the pattern the engine is playing.
type Model struct {
	Engine *sequencer.Engine
	Theme  *theme.Theme

	pattern  *sequencer.Pattern
	input    <-chan midi.InputEvent
	store    *project.Store
	project  string
	snap     sequencer.PlaybackSnapshot
	track    int
	step     int
	status   string
	quitting bool
	title    cases.Caser
}

type refreshMsg time.Time

type inputMsg midi.InputEvent

// NewModel takes the engine and a copy of the pattern it was started with
func NewModel(engine *sequencer.Engine, pattern *sequencer.Pattern, th *theme.Theme) Model {
	return Model{
		Engine:  engine,
		Theme:   th,
		pattern: pattern,
		snap:    engine.Snapshot(),
		title:   cases.Title(language.English),
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// WithInput makes the model follow MIDI transport messages and record
// incoming notes into the step under the cursor
func (m Model) WithInput(events <-chan midi.InputEvent) Model {
	m.input = events
	return m
}

// WithProject enables saving the pattern into a project of store
func (m Model) WithProject(store *project.Store, name string) Model {
	m.store = store
	m.project = name
	return m
}

func listenForInput(events <-chan midi.InputEvent) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return inputMsg(e)
	}
}

func (m Model) Init() tea.Cmd {
	if m.input != nil {
		return tea.Batch(refresh(), listenForInput(m.input))
	}
	return refresh()
}

// Pattern is the control-side copy of the pattern
func (m Model) Pattern() *sequencer.Pattern {
	return m.pattern
}

// push sends c to the engine and, once accepted, applies it to the mirror
func (m *Model) push(c sequencer.Command) {
	if err := m.Engine.Push(c); err != nil {
		if errors.Is(err, sequencer.ErrChannelFull) {
			m.status = "engine busy, edit dropped"
		} else {
			m.status = err.Error()
		}
		debug.Log("tui", "push %s: %v", c.Kind, err)
		return
	}
	m.status = ""
	m.pattern.Apply(c)
	m.clampCursor()
}

func (m *Model) clampCursor() {
	m.track = min(max(m.track, 0), len(m.pattern.Tracks)-1)
	m.step = min(max(m.step, 0), m.pattern.StepsPerLoop-1)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case refreshMsg:
		m.snap = m.Engine.Snapshot()
		return m, refresh()

	case inputMsg:
		m.handleInput(midi.InputEvent(msg))
		return m, listenForInput(m.input)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	p := m.pattern
	t := p.Track(m.track)
	s := p.Step(m.track, m.step)

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.push(sequencer.Stop())
		return m, tea.Quit

	case " ":
		if m.snap.Running {
			m.push(sequencer.Stop())
		} else {
			m.push(sequencer.Start())
		}

	case "c":
		m.push(sequencer.Continue())

	case "+", "=":
		m.push(sequencer.SetTempo(p.Tempo + 1))

	case "-", "_":
		m.push(sequencer.SetTempo(p.Tempo - 1))

	case "left", "h":
		m.step--
	case "right", "l":
		m.step++
	case "up", "k":
		m.track--
	case "down", "j":
		m.track++

	case "enter":
		m.push(sequencer.ToggleStep(m.track, m.step))

	case "tab":
		if s != nil {
			next := (s.Trigger + 1) % sequencer.TriggerKind(len(sequencer.TriggerKinds()))
			m.push(sequencer.SetTriggerKind(m.track, m.step, next))
		}

	case "x", "backspace":
		m.push(sequencer.ClearStep(m.track, m.step))

	case ",", ".":
		if s != nil {
			d := 1
			if key == "," {
				d = -1
			}
			m.push(sequencer.SetStepField(m.track, m.step, sequencer.FieldPitch, float64(int(s.Pitch)+d)))
		}

	case "<", ">":
		if t != nil {
			d := 1
			if key == "<" {
				d = -1
			}
			m.push(sequencer.SetTrackLength(m.track, t.Length+d))
		}

	case "[", "]":
		if t != nil {
			n := len(sequencer.MachineKinds())
			d := 1
			if key == "[" {
				d = n - 1
			}
			m.push(sequencer.SetMachine(m.track, sequencer.MachineKind((int(t.Machine)+d)%n)))
		}

	case "m":
		if t != nil {
			m.push(sequencer.SetMute(m.track, !t.Muted))
		}

	case "a":
		if _, err := p.Clone().AddTrack(); err != nil {
			m.status = err.Error()
			break
		}
		m.push(sequencer.AddTrack())

	case "d":
		// the engine drops a rejected removal silently; try it on a copy first
		if err := p.Clone().RemoveTrack(m.track); err != nil {
			m.status = err.Error()
			break
		}
		m.push(sequencer.RemoveTrack(m.track))

	case "s":
		m.save()
	}

	m.clampCursor()
	return m, nil
}

func (m *Model) save() {
	if m.store == nil {
		m.status = "no project store"
		return
	}
	name, err := m.store.Save(m.project, "", m.pattern, time.Now())
	if err != nil {
		m.status = fmt.Sprintf("save failed: %v", err)
		debug.Log("tui", "save %s: %v", m.project, err)
		return
	}
	m.status = "saved " + name
}

func (m *Model) handleInput(e midi.InputEvent) {
	switch e.Kind {
	case midi.InputStart:
		m.push(sequencer.Start())
	case midi.InputStop:
		m.push(sequencer.Stop())
	case midi.InputContinue:
		m.push(sequencer.Continue())
	case midi.InputNote:
		// Step recording: write the note and move on
		s := m.pattern.Step(m.track, m.step)
		if s == nil {
			return
		}
		if !s.Trigger.Starts() {
			m.push(sequencer.SetTriggerKind(m.track, m.step, sequencer.TriggerNote))
		}
		m.push(sequencer.SetStepField(m.track, m.step, sequencer.FieldPitch, float64(e.Note)))
		m.push(sequencer.SetStepField(m.track, m.step, sequencer.FieldVelocity, float64(e.Velocity)))
		m.step = (m.step + 1) % m.pattern.StepsPerLoop
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	warnStyle := lipgloss.NewStyle().Foreground(th.Warning())

	playState := "STOP"
	if m.snap.Running {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("flux-sequence  %s  %5.1fbpm  pos:%02d/%02d",
		playState, m.pattern.Tempo, m.snap.Position+1, m.pattern.StepsPerLoop))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	for i := range m.pattern.Tracks {
		out.WriteString(m.trackRow(i))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(m.stepDetail())
	out.WriteString("\n\n")
	if m.status != "" {
		out.WriteString(warnStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render(widgets.RenderKeyLine(keyLine)))

	return out.String()
}

func (m Model) trackRow(i int) string {
	th := m.Theme
	t := &m.pattern.Tracks[i]

	label := lipgloss.NewStyle().Foreground(th.Track(i))
	if i == m.track {
		label = label.Bold(true)
	}
	mute := ' '
	if t.Muted {
		mute = th.Symbols.Muted
	}
	prefix := label.Render(fmt.Sprintf("%c T%-2d %c %-12s ch%02d ",
		m.cursorMark(i), i+1, mute, m.title.String(t.Machine.String()), t.Channel))

	playing := -1
	if m.snap.Running && i < m.snap.NumTracks {
		playing = m.snap.Steps[i]
	}

	steps := t.Steps()
	cells := make([]widgets.StepCell, len(steps))
	for j := range steps {
		c := widgets.StepCell{
			Symbol:  th.Step(steps[j].Trigger),
			Color:   th.Track(i),
			Playing: j == playing,
			Cursor:  i == m.track && j == m.step,
		}
		switch {
		case j >= t.Length:
			c.Symbol = th.Symbols.StepBeyond
			c.Color = th.Muted()
		case j == playing:
			c.Color = th.Active()
		case steps[j].Trigger == sequencer.TriggerNone:
			c.Color = th.Muted()
		}
		cells[j] = c
	}

	return prefix + widgets.RenderStepRow(cells, 4)
}

func (m Model) cursorMark(i int) rune {
	if i == m.track {
		return m.Theme.Symbols.Cursor
	}
	return ' '
}

// stepDetail describes the step under the cursor
func (m Model) stepDetail() string {
	s := m.pattern.Step(m.track, m.step)
	t := m.pattern.Track(m.track)
	if s == nil || t == nil {
		return ""
	}
	cutoff, _ := m.pattern.EffectiveParam(m.track, m.step, sequencer.ParamCutoff)
	locked := ""
	if s.HasLocks() {
		locked = "  locked"
	}
	return fmt.Sprintf("T%d step %02d  %-8s note:%3d vel:%3d len:%.1f off:%+3d prob:%3d%%  cutoff %s%s",
		m.track+1, m.step+1, s.Trigger, s.Pitch, s.Velocity, s.Length, s.Offset, s.Probability,
		widgets.RenderMeter(cutoff, 10, m.Theme.Level(cutoff)), locked)
}
