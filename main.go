package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/sync/errgroup"

	"flux-sequence/audio"
	otoout "flux-sequence/audio/oto"
	"flux-sequence/config"
	"flux-sequence/control"
	"flux-sequence/debug"
	"flux-sequence/midi"
	"flux-sequence/player"
	"flux-sequence/project"
	"flux-sequence/sequencer"
	"flux-sequence/theme"
	"flux-sequence/tui"
)

var version = "dev"

type options struct {
	config  string
	mcp     bool
	midiOut string
	midiIn  string
	audio   bool
	debug   bool
	tempo   float64
	project string
}

func main() {
	var o options
	flag.StringVar(&o.config, "config", "", "config file, .yaml or .json (default ~/.config/flux-sequence/config.yaml)")
	flag.BoolVar(&o.mcp, "mcp", false, "serve MCP tools on stdio instead of the terminal UI")
	flag.StringVar(&o.midiOut, "midi-out", "", "MIDI output port name")
	flag.StringVar(&o.midiIn, "midi-in", "", "MIDI input port name, for transport and step recording")
	flag.BoolVar(&o.audio, "audio", false, "play through the built-in preview synth")
	flag.BoolVar(&o.debug, "debug", false, "write ~/.config/flux-sequence/debug.log")
	flag.Float64Var(&o.tempo, "tempo", 0, "starting tempo in BPM")
	flag.StringVar(&o.project, "project", "untitled", "project to load the latest save from and save into")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.config != "" {
		cfg, err = config.LoadFile(o.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if o.midiOut != "" {
		cfg.MIDI.Port = o.midiOut
	}
	if o.midiIn != "" {
		cfg.MIDI.Input = o.midiIn
	}
	if o.audio {
		cfg.Audio.Enabled = true
	}
	if o.tempo > 0 {
		cfg.Engine.Tempo = o.tempo
	}
	if cfg.Engine.Seed == 0 {
		cfg.Engine.Seed = rand.Uint64()
	}
	return cfg, nil
}

func run(o options) error {
	if o.debug {
		if err := debug.Enable(); err != nil {
			return fmt.Errorf("enable debug log: %w", err)
		}
		defer debug.Disable()
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	debug.Log("main", "config: %+v", *cfg)

	store, err := project.DefaultStore()
	if err != nil {
		return fmt.Errorf("project store: %w", err)
	}
	pattern, err := startPattern(store, o.project, cfg)
	if err != nil {
		return err
	}
	if o.tempo > 0 {
		pattern.SetTempo(o.tempo)
	}

	engine := sequencer.NewEngine(sequencer.Options{
		Capacity: cfg.Engine.Capacity,
		Seed:     cfg.Engine.Seed,
		Pattern:  pattern.Clone(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(signalCh)
		cancel()
	}()
	go func() {
		select {
		case sig := <-signalCh:
			debug.Log("main", "caught signal %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var sinks []player.Sink
	if cfg.MIDI.Port != "" {
		out, err := midi.OpenOutput(ctx, cfg.MIDI.Port)
		if err != nil {
			return err
		}
		defer func() {
			out.Panic()
			if err := out.Close(); err != nil {
				debug.Log("main", "%v", err)
			}
		}()
		sinks = append(sinks, out)
	}

	var synth *audio.Synth
	var device *otoout.Output
	if cfg.Audio.Enabled {
		synth = audio.NewSynth()
		if device, err = otoout.NewOutput(); err != nil {
			return err
		}
		defer device.Close()
		sinks = append(sinks, synth)
	}

	var input *midi.Input
	if cfg.MIDI.Input != "" && !o.mcp {
		if input, err = midi.OpenInput(ctx, cfg.MIDI.Input); err != nil {
			return err
		}
		defer input.Close()
	}

	p := player.New(engine, player.Options{}, sinks...)
	defer func() {
		debug.Log("main", "sent %d events, dropped %d", p.Sent(), p.Dropped())
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if device != nil {
		g.Go(func() error {
			return device.Run(gctx, synth)
		})
	}
	g.Go(func() error {
		// the front end owns the process lifetime
		defer cancel()
		if o.mcp {
			srv := control.NewServer(engine, pattern, version)
			srv.UseStore(store)
			return srv.Serve()
		}
		return runTUI(gctx, engine, pattern, cfg, input, store, o.project)
	})
	return g.Wait()
}

// startPattern resumes the latest save of the project, or builds a fresh
// pattern from the config when the project has none
func startPattern(store *project.Store, name string, cfg *config.Config) (*sequencer.Pattern, error) {
	p, err := store.Load(name, "")
	if errors.Is(err, project.ErrNoSaves) {
		return cfg.NewPattern(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", name, err)
	}
	debug.Log("main", "resumed project %s", name)
	return p, nil
}

func runTUI(ctx context.Context, engine *sequencer.Engine, pattern *sequencer.Pattern, cfg *config.Config, input *midi.Input, store *project.Store, name string) error {
	palette, err := theme.LoadOrDefault(cfg.UI.Palette)
	if err != nil {
		debug.Log("main", "palette: %v, using %s", err, palette.Name)
	}

	m := tui.NewModel(engine, pattern, theme.New(palette)).WithProject(store, name)
	if input != nil {
		m = m.WithInput(input.Events())
	}
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}
