package sequencer

import "errors"

var (
	// ErrChannelFull is returned by Push when the command channel has no free
	// slot. The command is dropped; the caller may retry later.
	ErrChannelFull = errors.New("command channel full")

	// ErrInvariantViolation is returned when a structural change would break a
	// pattern invariant. The pattern is left unchanged.
	ErrInvariantViolation = errors.New("pattern invariant violation")
)
