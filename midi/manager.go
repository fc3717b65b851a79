package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"flux-sequence/debug"
)

// ErrPortTimeout is returned when the MIDI driver does not answer a port
// query in time. CoreMIDI is known to hang here.
var ErrPortTimeout = errors.New("midi port query timed out")

// ErrNoPort is returned when no port matches the requested name
var ErrNoPort = errors.New("no matching midi port")

// portTimeout bounds every port query
const portTimeout = 3 * time.Second

// queryPorts calls get without hanging the caller
func queryPorts[P fmt.Stringer](ctx context.Context, get func() []P) ([]P, error) {
	ctx, cancel := context.WithTimeout(ctx, portTimeout)
	defer cancel()

	ch := make(chan []P, 1)
	go func() {
		ch <- get()
	}()

	select {
	case ports := <-ch:
		return ports, nil
	case <-ctx.Done():
		return nil, ErrPortTimeout
	}
}

// matchPort picks the port called name. An exact match wins, otherwise the
// first port whose name contains name, ignoring case.
func matchPort[P fmt.Stringer](ports []P, name string) (P, bool) {
	for _, p := range ports {
		if p.String() == name {
			return p, true
		}
	}
	want := strings.ToLower(name)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, true
		}
	}
	var none P
	return none, false
}

func getOutPorts() []drivers.Out { return gomidi.GetOutPorts() }

func getInPorts() []drivers.In { return gomidi.GetInPorts() }

func portNames[P fmt.Stringer](ports []P) []string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.String()
	}
	return names
}

// ListOutPorts returns the names of all MIDI output ports
func ListOutPorts(ctx context.Context) ([]string, error) {
	ports, err := queryPorts(ctx, getOutPorts)
	if err != nil {
		return nil, err
	}
	return portNames(ports), nil
}

// ListInPorts returns the names of all MIDI input ports
func ListInPorts(ctx context.Context) ([]string, error) {
	ports, err := queryPorts(ctx, getInPorts)
	if err != nil {
		return nil, err
	}
	return portNames(ports), nil
}

// Output sends events to one MIDI output port
type Output struct {
	name string
	send func(msg gomidi.Message) error
	port drivers.Out

	mu     sync.Mutex
	errors int
}

// OpenOutput opens the output port called name, see matchPort
func OpenOutput(ctx context.Context, name string) (*Output, error) {
	ports, err := queryPorts(ctx, getOutPorts)
	if err != nil {
		return nil, err
	}
	port, ok := matchPort(ports, name)
	if !ok {
		return nil, fmt.Errorf("open output %q: %w", name, ErrNoPort)
	}

	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", name, err)
	}
	debug.Log("midi", "opened output %s", port.String())
	return &Output{name: port.String(), send: send, port: port}, nil
}

// NewOutput wraps an existing send function, for tests and virtual ports
func NewOutput(name string, send func(msg gomidi.Message) error) *Output {
	return &Output{name: name, send: send}
}

func (o *Output) Name() string { return o.name }

// Send writes one event. Send errors are counted and logged, not fatal.
func (o *Output) Send(e Event) error {
	msg, err := e.Message()
	if err != nil {
		return err
	}
	if err := o.send(msg); err != nil {
		o.mu.Lock()
		o.errors++
		n := o.errors
		o.mu.Unlock()
		debug.LogEvery(100, "midi", "send to %s failed (%d so far): %v", o.name, n, err)
		return fmt.Errorf("send %s: %w", e, err)
	}
	return nil
}

// Errors is the number of failed sends so far
func (o *Output) Errors() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errors
}

// Panic sends All Notes Off on every channel
func (o *Output) Panic() {
	for ch := uint8(1); ch <= 16; ch++ {
		_ = o.Send(Event{Type: CC, Channel: ch, Note: CCAllNotesOff})
	}
}

// Close releases the port
func (o *Output) Close() error {
	if o.port == nil {
		return nil
	}
	if err := o.port.Close(); err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}
	return nil
}
