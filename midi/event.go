package midi

import (
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// CCAllNotesOff is the channel mode message that silences a channel
const CCAllNotesOff = 123

// Event represents a scheduled MIDI event
type Event struct {
	At       time.Time
	Type     uint8 // NoteOn, NoteOff, CC
	Track    int   // sequencer track that produced it
	Channel  uint8 // 1-16
	Note     uint8 // note number, or controller number for CC
	Velocity uint8 // velocity, or controller value for CC
}

// Message converts the event to a wire message
func (e Event) Message() (gomidi.Message, error) {
	if e.Channel < 1 || e.Channel > 16 {
		return nil, fmt.Errorf("channel %d out of range", e.Channel)
	}
	ch := e.Channel - 1
	switch e.Type {
	case NoteOn:
		return gomidi.NoteOn(ch, e.Note&0x7f, e.Velocity&0x7f), nil
	case NoteOff:
		return gomidi.NoteOff(ch, e.Note&0x7f), nil
	case CC:
		return gomidi.ControlChange(ch, e.Note&0x7f, e.Velocity&0x7f), nil
	}
	return nil, fmt.Errorf("unknown event type %#x", e.Type)
}

// IsAllNotesOff reports whether e silences its channel
func (e Event) IsAllNotesOff() bool {
	return e.Type == CC && e.Note == CCAllNotesOff
}

// Value7 maps a normalized 0..1 parameter onto a 7-bit controller value
func Value7(v float32) uint8 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 1:
		return 127
	}
	return uint8(v*127 + 0.5)
}

func (e Event) String() string {
	switch e.Type {
	case NoteOn:
		return fmt.Sprintf("track=%d ch=%d on note=%d vel=%d", e.Track, e.Channel, e.Note, e.Velocity)
	case NoteOff:
		return fmt.Sprintf("track=%d ch=%d off note=%d", e.Track, e.Channel, e.Note)
	case CC:
		return fmt.Sprintf("track=%d ch=%d cc=%d val=%d", e.Track, e.Channel, e.Note, e.Velocity)
	}
	return fmt.Sprintf("track=%d type=%#x", e.Track, e.Type)
}
