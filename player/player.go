package player

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"flux-sequence/debug"
	"flux-sequence/midi"
	"flux-sequence/sequencer"
)

// Sink receives events at their scheduled time
type Sink interface {
	Send(midi.Event) error
}

// Defaults
const (
	DefaultLookahead = 100 * time.Millisecond
	DefaultQueueSize = 1024

	// how often a stopped engine is ticked to pick up commands
	idlePoll = 2 * time.Millisecond
)

// Options configures a Player
type Options struct {
	Lookahead time.Duration // how far ahead of the audible step the engine ticks
	QueueSize int           // events buffered between the clock and dispatch
}

// Player drives an Engine from the wall clock and delivers its output to
// sinks. The clock goroutine is the engine's tick side; it hands events to
// a dispatch goroutine that sleeps until each one is due.
type Player struct {
	engine *sequencer.Engine
	sinks  []Sink
	opts   Options
	sched  *Scheduler
	events chan midi.Event

	dropped atomic.Uint64
	sent    atomic.Uint64
}

// New creates a player. It does nothing until Run.
func New(engine *sequencer.Engine, opts Options, sinks ...Sink) *Player {
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Player{
		engine: engine,
		sinks:  sinks,
		opts:   opts,
		sched:  NewScheduler(),
		events: make(chan midi.Event, opts.QueueSize),
	}
}

// Dropped is the number of events lost to a full dispatch queue
func (p *Player) Dropped() uint64 { return p.dropped.Load() }

// Sent is the number of events delivered to sinks
func (p *Player) Sent() uint64 { return p.sent.Load() }

// Run ticks the engine until ctx is cancelled
func (p *Player) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.clockLoop(ctx)
	})
	g.Go(func() error {
		return p.dispatchLoop(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// clockLoop calls Tick once per step period
func (p *Player) clockLoop(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	timer := time.NewTimer(0)
	defer timer.Stop()

	buf := make([]midi.Event, 0, 256)
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		r := p.engine.Tick()
		if r.Started {
			next = time.Now()
		}
		buf = p.sched.Schedule(r, next.Add(p.opts.Lookahead), buf[:0])
		p.enqueue(buf)

		if !r.Running {
			next = time.Now().Add(idlePoll)
		} else {
			step := time.Duration(r.StepSeconds() * float64(time.Second))
			next = next.Add(step)
			if lag := time.Since(next); lag > step {
				debug.Log("clock", "behind by %v at tick %d, resyncing", lag, r.Tick)
				next = time.Now()
			}
		}
		timer.Reset(time.Until(next))
	}
}

func (p *Player) enqueue(evts []midi.Event) {
	for _, e := range evts {
		select {
		case p.events <- e:
		default:
			n := p.dropped.Add(1)
			debug.LogEvery(50, "clock", "dispatch queue full, dropped=%d", n)
		}
	}
}

// dispatchLoop delivers queued events at their time
func (p *Player) dispatchLoop(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var q eventQueue
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var wait <-chan time.Time
		if e := q.peek(); e != nil {
			d := time.Until(e.At)
			if d <= 0 {
				p.deliver(q.next())
				continue
			}
			timer.Reset(d)
			wait = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-p.events:
			if e.IsAllNotesOff() {
				if n := q.dropChannel(e.Channel); n > 0 {
					debug.Log("dispatch", "ch=%d discarded %d pending events", e.Channel, n)
				}
				p.deliver(e)
				continue
			}
			q.add(e)
		case <-wait:
		}
	}
}

func (p *Player) deliver(e midi.Event) {
	for _, s := range p.sinks {
		if err := s.Send(e); err != nil {
			debug.LogEvery(100, "dispatch", "sink error: %v", err)
		}
	}
	p.sent.Add(1)
	if late := time.Since(e.At); late > 5*time.Millisecond {
		debug.LogEvery(100, "dispatch", "late by %v: %s", late, e)
	}
}

// Render runs the engine offline for n ticks and returns every event with
// times relative to start. No sinks or goroutines are involved.
func Render(engine *sequencer.Engine, start time.Time, n int) []midi.Event {
	sched := NewScheduler()
	var out []midi.Event
	at := start
	for i := 0; i < n; i++ {
		r := engine.Tick()
		out = sched.Schedule(r, at, out)
		if r.Running {
			at = at.Add(time.Duration(r.StepSeconds() * float64(time.Second)))
		}
	}
	return out
}
