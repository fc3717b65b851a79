package midi

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"

	"flux-sequence/debug"
)

// InputKind is what an incoming message asks for
type InputKind int

const (
	InputNote InputKind = iota
	InputStart
	InputStop
	InputContinue
)

// InputEvent is a decoded incoming message
type InputEvent struct {
	Kind     InputKind
	Channel  uint8 // 1-16, notes only
	Note     uint8
	Velocity uint8
}

// inputBuffer is how many events may wait for the reader
const inputBuffer = 32

// Input listens to a MIDI input port for transport messages and notes
type Input struct {
	name    string
	stop    func()
	events  chan InputEvent
	dropped atomic.Uint64
	once    sync.Once
}

// OpenInput starts listening on the input port called name, see matchPort
func OpenInput(ctx context.Context, name string) (*Input, error) {
	ports, err := queryPorts(ctx, getInPorts)
	if err != nil {
		return nil, err
	}
	port, ok := matchPort(ports, name)
	if !ok {
		return nil, fmt.Errorf("open input %q: %w", name, ErrNoPort)
	}

	in := newInput(port.String())
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		in.handle(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", name, err)
	}
	in.stop = stop
	debug.Log("midi", "listening on %s", in.name)
	return in, nil
}

func newInput(name string) *Input {
	return &Input{name: name, events: make(chan InputEvent, inputBuffer)}
}

func (in *Input) Name() string { return in.name }

// Events delivers decoded messages. It is closed by Close.
func (in *Input) Events() <-chan InputEvent {
	return in.events
}

// Dropped counts events lost because the reader fell behind
func (in *Input) Dropped() uint64 {
	return in.dropped.Load()
}

// handle decodes msg and hands it on without blocking the driver callback
func (in *Input) handle(msg gomidi.Message) {
	var e InputEvent
	var channel, note, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0:
		e = InputEvent{Kind: InputNote, Channel: channel + 1, Note: note, Velocity: velocity}
	case msg.Is(gomidi.StartMsg):
		e.Kind = InputStart
	case msg.Is(gomidi.StopMsg):
		e.Kind = InputStop
	case msg.Is(gomidi.ContinueMsg):
		e.Kind = InputContinue
	default:
		return
	}

	select {
	case in.events <- e:
	default:
		n := in.dropped.Add(1)
		debug.LogEvery(50, "midi", "input %s: reader behind, %d events dropped", in.name, n)
	}
}

// Close stops listening and closes Events
func (in *Input) Close() error {
	in.once.Do(func() {
		if in.stop != nil {
			in.stop()
		}
		close(in.events)
	})
	return nil
}
