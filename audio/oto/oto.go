// Package oto plays a Synth through github.com/hajimehoshi/oto
package oto

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hajimehoshi/oto"

	"flux-sequence/audio"
	"flux-sequence/debug"
)

const (
	bitDepthInBytes = 2
	bufferFrames    = 1024
	otoBufferSize   = 8192
)

// Source is anything that can fill an interleaved stereo float buffer
type Source interface {
	Render(out []float32)
}

// Output owns the oto context
type Output struct {
	context *oto.Context
}

// NewOutput opens the default audio device
func NewOutput() (*Output, error) {
	ctx, err := oto.NewContext(audio.SampleRate, audio.Channels, bitDepthInBytes, otoBufferSize)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	return &Output{context: ctx}, nil
}

// Run renders src into the device until ctx is cancelled. Writes block on
// the device, which paces the loop.
func (o *Output) Run(ctx context.Context, src Source) error {
	p := o.context.NewPlayer()
	defer func() {
		if err := p.Close(); err != nil {
			debug.Log("audio", "close player: %v", err)
		}
	}()

	floats := make([]float32, bufferFrames*audio.Channels)
	bytes := make([]byte, 0, len(floats)*bitDepthInBytes)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		src.Render(floats)
		bytes = FloatBufferTo16BitLE(floats, bytes[:0])
		if _, err := p.Write(bytes); err != nil {
			return fmt.Errorf("cannot write to player: %w", err)
		}
	}
}

// Close disposes of the context
func (o *Output) Close() error {
	if err := o.context.Close(); err != nil {
		return fmt.Errorf("cannot close oto context: %w", err)
	}
	return nil
}

// FloatBufferTo16BitLE appends buf as 16-bit little-endian samples to dst,
// clipping to -1..1
func FloatBufferTo16BitLE(buf []float32, dst []byte) []byte {
	for _, v := range buf {
		var s int16
		switch {
		case v <= -1:
			s = -math.MaxInt16
		case v >= 1:
			s = math.MaxInt16
		default:
			s = int16(v * math.MaxInt16)
		}
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}
