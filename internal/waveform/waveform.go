// Package waveform reduces a buffer to per-column min/max pairs for drawing
// on a fixed-width canvas.
package waveform

import (
	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/viterin/vek/vek32"
)

// Peak is the sample range covered by one canvas column.
type Peak struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
}

// Peaks splits buf into columns and returns the min and max of the mono
// (L+R)/2 signal in each. Columns past the end of a short buffer are flat.
func Peaks(buf audio.Buffer, columns int) []Peak {
	if columns <= 0 {
		return nil
	}
	out := make([]Peak, columns)
	n := buf.Len()
	if n == 0 {
		return out
	}

	mono := make([]float32, n)
	copy(mono, buf.Left)
	vek32.Add_Inplace(mono, buf.Right[:n])
	vek32.MulNumber_Inplace(mono, 0.5)

	for c := 0; c < columns; c++ {
		from := c * n / columns
		to := (c + 1) * n / columns
		if to <= from {
			if from >= n {
				continue
			}
			to = from + 1
		}
		col := mono[from:to]
		out[c] = Peak{Min: vek32.Min(col), Max: vek32.Max(col)}
	}
	return out
}

// Column maps a sample index to its canvas column.
func Column(index, samples, columns int) int {
	if samples <= 0 || columns <= 0 {
		return 0
	}
	c := index * columns / samples
	return max(0, min(columns-1, c))
}
