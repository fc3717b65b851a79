package player

import (
	"container/heap"

	"flux-sequence/midi"
)

type queued struct {
	evt midi.Event
	seq uint64
}

// eventQueue orders events by time, then by arrival
type eventQueue struct {
	items []queued
	seq   uint64
}

func (q *eventQueue) Len() int { return len(q.items) }

func (q *eventQueue) Less(i, j int) bool {
	a, b := &q.items[i], &q.items[j]
	if !a.evt.At.Equal(b.evt.At) {
		return a.evt.At.Before(b.evt.At)
	}
	return a.seq < b.seq
}

func (q *eventQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *eventQueue) Push(x any) { q.items = append(q.items, x.(queued)) }

func (q *eventQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}

func (q *eventQueue) add(e midi.Event) {
	q.seq++
	heap.Push(q, queued{evt: e, seq: q.seq})
}

func (q *eventQueue) peek() *midi.Event {
	if len(q.items) == 0 {
		return nil
	}
	return &q.items[0].evt
}

func (q *eventQueue) next() midi.Event {
	return heap.Pop(q).(queued).evt
}

// dropChannel removes pending events for a channel, returning how many
func (q *eventQueue) dropChannel(ch uint8) int {
	kept := q.items[:0]
	for _, it := range q.items {
		if it.evt.Channel != ch {
			kept = append(kept, it)
		}
	}
	n := len(q.items) - len(kept)
	q.items = kept
	heap.Init(q)
	return n
}
