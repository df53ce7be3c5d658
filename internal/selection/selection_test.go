package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- Selection ---

func TestSelectionActive(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want bool
	}{
		{"zero-state", New(), false},
		{"start unset", Selection{XStart: -1, XEnd: 40}, false},
		{"too narrow", Selection{XStart: 10, XEnd: 11.5}, false},
		{"just wide enough", Selection{XStart: 10, XEnd: 11.6}, true},
		{"reversed drag", Selection{XStart: 300, XEnd: 100}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.Active(DefaultThreshold))
		})
	}
}

// --- Range ---

func TestRangeScenario(t *testing.T) {
	m := NewMapper(900)
	got := m.Range(Selection{XStart: 450, XEnd: 460}, 1000)
	assert.Equal(t, Range{Start: 500, End: 512}, got)
	assert.Equal(t, 12, got.Len())
}

func TestRangeOrderIndependent(t *testing.T) {
	m := NewMapper(900)
	a := m.Range(Selection{XStart: 120, XEnd: 480}, 4410)
	b := m.Range(Selection{XStart: 480, XEnd: 120}, 4410)
	assert.Equal(t, a, b)
}

func TestRangeClamps(t *testing.T) {
	m := NewMapper(900)
	assert.Equal(t, Range{Start: 0, End: 100}, m.Range(Selection{XStart: -50, XEnd: 5000}, 100))
	// selection entirely past the right edge collapses to the last sample
	assert.Equal(t, Range{Start: 99, End: 100}, m.Range(Selection{XStart: 950, XEnd: 990}, 100))
	assert.Equal(t, Range{}, m.Range(Selection{XStart: 10, XEnd: 90}, 0))
}

func TestRangeBoundsProperty(t *testing.T) {
	m := NewMapper(900)
	for n := 1; n <= 257; n += 16 {
		for x := -20.0; x <= 920; x += 37.5 {
			r := m.Range(Selection{XStart: x, XEnd: x + 13}, n)
			if r.Start < 0 || r.Start >= r.End || r.End > n {
				t.Fatalf("Range(x=%v, n=%d) = %+v violates 0 <= start < end <= n", x, n, r)
			}
		}
	}
}

func TestByteRangeFrameAligned(t *testing.T) {
	m := NewMapper(900)
	got := m.ByteRange(Selection{XStart: 450, XEnd: 460}, 4000, 4)
	assert.Equal(t, Range{Start: 2000, End: 2048}, got)
	assert.Zero(t, got.Start%4)
	assert.Zero(t, got.End%4)
	assert.Equal(t, Range{}, m.ByteRange(Selection{XStart: 0, XEnd: 10}, 3, 4))
}

// --- Cursor ---

func TestCursorIndex(t *testing.T) {
	tests := []struct {
		frac float64
		n    int
		want int
	}{
		{0, 1000, 0},
		{0.2, 988, 198},
		{0.5, 5, 3},
		{1, 1000, 1000},
		{1.7, 10, 10},
		{-0.3, 10, 0},
		{0.5, 0, 0},
	}
	for _, tt := range tests {
		if got := CursorIndex(tt.frac, tt.n); got != tt.want {
			t.Errorf("CursorIndex(%v, %d) = %d, want %d", tt.frac, tt.n, got, tt.want)
		}
	}
}

func TestNewMapperDefaultsWidth(t *testing.T) {
	assert.Equal(t, 900.0, NewMapper(0).Width)
	assert.InDelta(t, 0.5, NewMapper(900).Fraction(450), 1e-12)
	assert.Equal(t, 1.0, NewMapper(900).Fraction(2000))
}
