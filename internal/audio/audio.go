// Package audio holds the in-memory PCM representation used by the editor:
// the sample format, the stereo float buffer and the pure functions that
// slice, splice, reverse and mix those buffers.
package audio

import (
	"fmt"
	"time"
)

const (
	SampleRate    = 44100
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond // streaming frame length
	BytesPerFrame = Channels * BitDepth / 8
)

// Format describes a sample stream. In-memory buffers are always 16-bit
// stereo; only the sample rate varies between sources.
type Format struct {
	SampleRate float64
	BitDepth   int
	Channels   int
}

// StandardFormat is the project format and the fallback for empty tracks.
var StandardFormat = Format{SampleRate: SampleRate, BitDepth: BitDepth, Channels: Channels}

// NewFormat returns a 16-bit stereo format at the given rate.
func NewFormat(sampleRate float64) Format {
	return Format{SampleRate: sampleRate, BitDepth: BitDepth, Channels: Channels}
}

// FrameBytes is the byte size of one interleaved frame.
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

// Duration converts a per-channel sample count to wall time.
func (f Format) Duration(samples int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / f.SampleRate * float64(time.Second))
}

// Samples converts wall time to a per-channel sample count, rounding down.
func (f Format) Samples(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d.Seconds() * f.SampleRate)
}

// FrameSize is the number of samples per channel in one streaming frame.
func (f Format) FrameSize() int {
	return int(f.SampleRate * FrameDuration.Seconds())
}

func (f Format) String() string {
	return fmt.Sprintf("%g Hz / %d-bit / %d ch", f.SampleRate, f.BitDepth, f.Channels)
}
