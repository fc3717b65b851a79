package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"flux-sequence/midi"
	"flux-sequence/player"
	"flux-sequence/sequencer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "render":
		render()
	case "send":
		if len(os.Args) < 3 {
			usage()
			return
		}
		send(os.Args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list         - List all MIDI ports")
	fmt.Println("  render       - Print one loop of the demo pattern as events")
	fmt.Println("  send <port>  - Play one loop of the demo pattern to a port")
}

func listPorts() {
	fmt.Println("(waiting up to 3 seconds...)")
	ctx := context.Background()

	ins, err := midi.ListInPorts(ctx)
	if err != nil {
		fmt.Printf("\n%v\n", err)
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range ins {
		fmt.Printf("  %d: %s\n", i, name)
	}

	outs, err := midi.ListOutPorts(ctx)
	if err != nil {
		fmt.Printf("\n%v\n", err)
		return
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range outs {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

// demoPattern is a four-on-the-floor kick with an offbeat one-shot bass and
// a cutoff lock on the last step
func demoPattern() *sequencer.Pattern {
	p := sequencer.DefaultPattern()
	for i := 0; i < p.StepsPerLoop; i += 4 {
		p.Apply(sequencer.SetTriggerKind(0, i, sequencer.TriggerNote))
		p.Apply(sequencer.SetStepField(0, i, sequencer.FieldPitch, 36))
		p.Apply(sequencer.SetTriggerKind(1, i+2, sequencer.TriggerOneShot))
		p.Apply(sequencer.SetStepField(1, i+2, sequencer.FieldPitch, 43))
	}
	p.Apply(sequencer.SetTriggerKind(1, 15, sequencer.TriggerLock))
	p.Apply(sequencer.SetParameterLock(1, 15, sequencer.ParamCutoff, 0.9))
	return p
}

// demoLoop renders one loop of the demo pattern in time order
func demoLoop(start time.Time) []midi.Event {
	engine := sequencer.NewEngine(sequencer.Options{Seed: 1, Pattern: demoPattern()})
	engine.Start()
	events := player.Render(engine, start, sequencer.DefaultStepsPerLoop)

	// one more tick picks up the stop and its All Notes Off
	loop := time.Duration(sequencer.DefaultStepsPerLoop) * 60 * time.Second / (sequencer.DefaultTempo * 4)
	engine.Stop()
	events = append(events, player.Render(engine, start.Add(loop), 1)...)
	slices.SortStableFunc(events, func(a, b midi.Event) int {
		return a.At.Compare(b.At)
	})
	return events
}

func render() {
	start := time.Now()
	events := demoLoop(start)
	for _, e := range events {
		fmt.Printf("%8.1fms  %s\n", float64(e.At.Sub(start).Microseconds())/1000, e)
	}
	fmt.Printf("\n%d events\n", len(events))
}

func send(port string) {
	out, err := midi.OpenOutput(context.Background(), port)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer out.Close()
	fmt.Printf("Using output: %s\n", out.Name())

	for _, e := range demoLoop(time.Now()) {
		time.Sleep(time.Until(e.At))
		if err := out.Send(e); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	out.Panic()
	fmt.Println("Done!")
}
