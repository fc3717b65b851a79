package sequencer

import "sync/atomic"

// PlaybackSnapshot is what the control side sees of the playhead
type PlaybackSnapshot struct {
	Running   bool
	Position  int
	Tick      uint64 // ticks evaluated since the last Start
	NumTracks int
	Fired     [MaxTracks]bool
	Steps     [MaxTracks]int // step each track played this tick
	Tempo     float64
}

const (
	slotMask  = 0b011
	freshFlag = 0b100
)

// SnapshotCell is a triple buffer carrying PlaybackSnapshot from one writer to
// one reader. The writer owns the back slot, the reader owns the front slot
// and the middle slot is exchanged atomically. Neither side ever waits.
type SnapshotCell struct {
	slots  [3]PlaybackSnapshot
	middle atomic.Uint32 // slot index | freshFlag
	back   uint32        // writer only
	front  uint32        // reader only
}

// NewSnapshotCell returns a cell whose first Read yields the zero snapshot
func NewSnapshotCell() *SnapshotCell {
	c := &SnapshotCell{back: 0, front: 2}
	c.middle.Store(1)
	return c
}

// Publish makes s the newest snapshot. Writer side only.
func (c *SnapshotCell) Publish(s PlaybackSnapshot) {
	c.slots[c.back] = s
	prev := c.middle.Swap(c.back | freshFlag)
	c.back = prev & slotMask
}

// Read returns the newest published snapshot. If nothing was published since
// the last Read, the same value is returned again. Reader side only.
func (c *SnapshotCell) Read() PlaybackSnapshot {
	if c.middle.Load()&freshFlag != 0 {
		prev := c.middle.Swap(c.front)
		c.front = prev & slotMask
	}
	return c.slots[c.front]
}
