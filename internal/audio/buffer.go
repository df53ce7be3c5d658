package audio

import (
	"errors"
	"math"

	"github.com/viterin/vek/vek32"
)

// ErrChannelMismatch reports a stereo buffer whose channels differ in length.
var ErrChannelMismatch = errors.New("audio: left and right channels differ in length")

// Buffer is a stereo sample buffer. Left and Right always have the same
// length; values are nominally in [-1, 1].
//
// Every function in this file returns a freshly allocated Buffer. Callers may
// hand the result to a Segment without worrying about aliasing.
type Buffer struct {
	Left  []float32
	Right []float32
}

// NewBuffer returns a silent buffer of n samples per channel.
func NewBuffer(n int) Buffer {
	if n < 0 {
		n = 0
	}
	return Buffer{Left: make([]float32, n), Right: make([]float32, n)}
}

// Len returns the number of samples per channel.
func (b Buffer) Len() int {
	return len(b.Left)
}

// Validate checks the equal-length invariant.
func (b Buffer) Validate() error {
	if len(b.Left) != len(b.Right) {
		return ErrChannelMismatch
	}
	return nil
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := NewBuffer(b.Len())
	copy(out.Left, b.Left)
	copy(out.Right, b.Right)
	return out
}

// Equal reports whether both channels hold identical samples.
func (b Buffer) Equal(o Buffer) bool {
	if b.Len() != o.Len() || len(b.Right) != len(o.Right) {
		return false
	}
	for i := range b.Left {
		if b.Left[i] != o.Left[i] || b.Right[i] != o.Right[i] {
			return false
		}
	}
	return true
}

// Slice returns a copy of [from, to) clamped to the buffer. Degenerate
// ranges give an empty buffer.
func Slice(src Buffer, from, to int) Buffer {
	start := max(0, from)
	end := min(src.Len(), to)
	if end <= start {
		return NewBuffer(0)
	}
	out := NewBuffer(end - start)
	copy(out.Left, src.Left[start:end])
	copy(out.Right, src.Right[start:end])
	return out
}

// Cut returns src with [from, to) removed. An empty range after clamping
// leaves the content unchanged.
func Cut(src Buffer, from, to int) Buffer {
	total := src.Len()
	start := max(0, from)
	end := min(total, to)
	if start >= end {
		return src.Clone()
	}
	out := NewBuffer(total - (end - start))
	copy(out.Left, src.Left[:start])
	copy(out.Right, src.Right[:start])
	copy(out.Left[start:], src.Left[end:])
	copy(out.Right[start:], src.Right[end:])
	return out
}

// Splice returns main[:from] + clip + main[to:]. With from == to the clip is
// inserted; with from < to it replaces the range.
func Splice(main, clip Buffer, from, to int) Buffer {
	if clip.Len() == 0 {
		return main.Clone()
	}
	if main.Len() == 0 {
		return clip.Clone()
	}
	mainLen := main.Len()
	start := min(max(0, from), mainLen)
	end := min(mainLen, to)
	if end < start {
		end = start
	}

	out := NewBuffer(start + clip.Len() + (mainLen - end))
	copy(out.Left, main.Left[:start])
	copy(out.Right, main.Right[:start])
	copy(out.Left[start:], clip.Left)
	copy(out.Right[start:], clip.Right)
	copy(out.Left[start+clip.Len():], main.Left[end:])
	copy(out.Right[start+clip.Len():], main.Right[end:])
	return out
}

// Reverse returns a full-length copy of src with [from, to) reversed. Left
// and right values of a frame always move together.
func Reverse(src Buffer, from, to int) Buffer {
	out := src.Clone()
	l := max(0, from)
	r := min(out.Len()-1, to-1)
	for l < r {
		out.Left[l], out.Left[r] = out.Left[r], out.Left[l]
		out.Right[l], out.Right[r] = out.Right[r], out.Right[l]
		l++
		r--
	}
	return out
}

// Concatenate joins buffers end to end, in order.
func Concatenate(bufs ...Buffer) Buffer {
	total := 0
	for _, b := range bufs {
		total += b.Len()
	}
	out := NewBuffer(total)
	pos := 0
	for _, b := range bufs {
		copy(out.Left[pos:], b.Left)
		copy(out.Right[pos:], b.Right)
		pos += b.Len()
	}
	return out
}

// MixDown sums all buffers into one of the longest length. Shorter inputs
// contribute silence past their end. If the summed peak exceeds 1.0 the whole
// result is scaled once by 1/peak.
func MixDown(bufs []Buffer) Buffer {
	n := 0
	for _, b := range bufs {
		n = max(n, b.Len())
	}
	mix := NewBuffer(n)
	for _, b := range bufs {
		if b.Len() == 0 {
			continue
		}
		vek32.Add_Inplace(mix.Left[:b.Len()], b.Left)
		vek32.Add_Inplace(mix.Right[:b.Len()], b.Right)
	}

	if peak := Peak(mix); peak > 1 {
		k := 1 / peak
		vek32.MulNumber_Inplace(mix.Left, k)
		vek32.MulNumber_Inplace(mix.Right, k)
	}
	return mix
}

// Peak returns the largest absolute sample across both channels.
func Peak(b Buffer) float32 {
	if b.Len() == 0 {
		return 0
	}
	peak := float32(0)
	for _, ch := range [][]float32{b.Left, b.Right} {
		if len(ch) == 0 {
			continue
		}
		hi := vek32.Max(ch)
		lo := vek32.Min(ch)
		peak = max(peak, float32(math.Abs(float64(hi))), float32(math.Abs(float64(lo))))
	}
	return peak
}
