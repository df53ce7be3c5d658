package audio

import (
	"encoding/binary"
	"fmt"
)

// toInt16 clamps v to [-1,1] and scales it by 32767.
func toInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}

// Interleave converts a stereo buffer to interleaved int16 [L,R,L,R,...].
func Interleave(b Buffer) []int16 {
	out := make([]int16, b.Len()*Channels)
	for i := range b.Left {
		out[i*2] = toInt16(b.Left[i])
		out[i*2+1] = toInt16(b.Right[i])
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// EncodePCM16 renders a buffer as signed 16-bit little-endian interleaved PCM.
func EncodePCM16(b Buffer) []byte {
	return SamplesToBytes(Interleave(b))
}

// DecodePCM16 parses signed 16-bit little-endian interleaved PCM. Mono input
// is duplicated to both channels; channels beyond the second are dropped.
// A trailing partial frame is ignored.
func DecodePCM16(data []byte, channels int) (Buffer, error) {
	if channels < 1 {
		return Buffer{}, fmt.Errorf("decode pcm16: invalid channel count %d", channels)
	}
	frameBytes := channels * 2
	frames := len(data) / frameBytes
	out := NewBuffer(frames)
	for i := 0; i < frames; i++ {
		off := i * frameBytes
		l := int16(binary.LittleEndian.Uint16(data[off:]))
		out.Left[i] = float32(l) / 32768
		if channels == 1 {
			out.Right[i] = out.Left[i]
			continue
		}
		r := int16(binary.LittleEndian.Uint16(data[off+2:]))
		out.Right[i] = float32(r) / 32768
	}
	return out, nil
}

// FromInterleaved converts interleaved int values (as produced by WAV
// decoders) into a stereo buffer, duplicating mono.
func FromInterleaved(data []int, channels int) Buffer {
	if channels < 1 {
		return NewBuffer(0)
	}
	frames := len(data) / channels
	out := NewBuffer(frames)
	for i := 0; i < frames; i++ {
		out.Left[i] = float32(data[i*channels]) / 32768
		if channels == 1 {
			out.Right[i] = out.Left[i]
		} else {
			out.Right[i] = float32(data[i*channels+1]) / 32768
		}
	}
	return out
}
