// Package selection maps a horizontal pixel selection on a fixed-width track
// canvas to a sample range in the track's main segment.
package selection

import "math"

// DefaultThreshold is the minimum pixel span of an active selection.
const DefaultThreshold = 1.5

// Selection is a pixel range on the canvas. Either end may be larger; the
// zero-state is (-1, -1).
type Selection struct {
	XStart float64 `json:"x_start"`
	XEnd   float64 `json:"x_end"`
}

// None is the inactive selection.
var None = Selection{XStart: -1, XEnd: -1}

// New returns an inactive selection.
func New() Selection {
	return None
}

// Active reports whether both ends are set and span more than threshold.
func (s Selection) Active(threshold float64) bool {
	return s.XStart >= 0 && s.XEnd >= 0 && math.Abs(s.XEnd-s.XStart) > threshold
}

// Left is the smaller pixel coordinate.
func (s Selection) Left() float64 { return math.Min(s.XStart, s.XEnd) }

// Right is the larger pixel coordinate.
func (s Selection) Right() float64 { return math.Max(s.XStart, s.XEnd) }

// Range is a half-open sample range [Start, End).
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns End - Start.
func (r Range) Len() int {
	return r.End - r.Start
}

// Empty reports whether the range covers no samples.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Mapper converts selections on a canvas of Width logical pixels.
type Mapper struct {
	Width float64
}

// NewMapper returns a mapper for the given canvas width. Non-positive widths
// fall back to 900.
func NewMapper(width float64) Mapper {
	if width <= 0 {
		width = 900
	}
	return Mapper{Width: width}
}

func (m Mapper) clampX(x float64) float64 {
	return math.Max(0, math.Min(m.Width, x))
}

// Range maps sel onto a buffer of n samples. The start is floored and the
// end ceiled, so any touched sample is included. The result always satisfies
// 0 <= Start < End <= n when n > 0.
func (m Mapper) Range(sel Selection, n int) Range {
	if n <= 0 {
		return Range{}
	}
	x1 := m.clampX(sel.Left())
	x2 := m.clampX(sel.Right())
	f1 := x1 / m.Width
	f2 := x2 / m.Width

	start := int(math.Floor(f1 * float64(n)))
	end := int(math.Ceil(f2 * float64(n)))
	start = max(0, min(start, n-1))
	end = max(start+1, min(end, n))
	return Range{Start: start, End: end}
}

// ByteRange maps sel onto an interleaved byte buffer of totalBytes, with both
// ends rounded down to a multiple of frameSize.
func (m Mapper) ByteRange(sel Selection, totalBytes, frameSize int) Range {
	if frameSize <= 0 || totalBytes < frameSize {
		return Range{}
	}
	r := m.Range(sel, totalBytes/frameSize)
	return Range{Start: r.Start * frameSize, End: r.End * frameSize}
}

// CursorIndex converts a cursor fraction of the canvas into a sample index
// in [0, n]. Halves round away from zero.
func CursorIndex(frac float64, n int) int {
	if n <= 0 || math.IsNaN(frac) {
		return 0
	}
	frac = math.Max(0, math.Min(1, frac))
	return min(n, int(math.Round(frac*float64(n))))
}

// Fraction converts a pixel x into a canvas fraction in [0, 1].
func (m Mapper) Fraction(x float64) float64 {
	return m.clampX(x) / m.Width
}
