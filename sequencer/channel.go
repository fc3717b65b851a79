package sequencer

import "sync/atomic"

// DefaultCapacity is the command channel size used when none is given
const DefaultCapacity = 256

// Channel is a bounded single-producer single-consumer ring of commands.
// One goroutine may Push and one other goroutine may drain; neither blocks.
type Channel struct {
	// head is written only by the consumer, tail only by the producer.
	// Both count up forever; slot = counter & mask.
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte

	mask  uint64
	slots []Command
}

// NewChannel creates a channel holding at least capacity commands. The
// capacity is rounded up to a power of two; zero or less means
// DefaultCapacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	return &Channel{
		mask:  uint64(n - 1),
		slots: make([]Command, n),
	}
}

// Push enqueues c. It returns ErrChannelFull and drops c when every slot is
// taken. Producer side only.
func (ch *Channel) Push(c Command) error {
	tail := ch.tail.Load()
	if tail-ch.head.Load() >= uint64(len(ch.slots)) {
		return ErrChannelFull
	}
	ch.slots[tail&ch.mask] = c
	ch.tail.Store(tail + 1)
	return nil
}

// Pop dequeues the oldest command. Consumer side only.
func (ch *Channel) Pop() (Command, bool) {
	head := ch.head.Load()
	if head == ch.tail.Load() {
		return Command{}, false
	}
	idx := head & ch.mask
	c := ch.slots[idx]
	// drop the pattern reference so a replaced pattern can be collected
	ch.slots[idx].Pattern = nil
	ch.head.Store(head + 1)
	return c, true
}

// DrainInto pops every available command in FIFO order and passes it to fn.
// It returns the number of commands handled. Consumer side only.
func (ch *Channel) DrainInto(fn func(Command)) int {
	head := ch.head.Load()
	tail := ch.tail.Load()
	for i := head; i != tail; i++ {
		idx := i & ch.mask
		c := ch.slots[idx]
		ch.slots[idx].Pattern = nil
		fn(c)
		ch.head.Store(i + 1)
	}
	return int(tail - head)
}

// Len is the number of queued commands; racy by nature, for diagnostics
func (ch *Channel) Len() int {
	return int(ch.tail.Load() - ch.head.Load())
}

func (ch *Channel) Cap() int {
	return len(ch.slots)
}
