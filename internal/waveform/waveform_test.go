package waveform

import (
	"testing"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeaks(t *testing.T) {
	b := audio.NewBuffer(8)
	copy(b.Left, []float32{0.2, -0.4, 0, 0, 1, 1, -1, 0.5})
	copy(b.Right, []float32{0.2, -0.4, 0, 0, 0, 1, -1, 0.5})

	got := Peaks(b, 4)
	require.Len(t, got, 4)
	assert.Equal(t, Peak{Min: -0.4, Max: 0.2}, got[0])
	assert.Equal(t, Peak{Min: 0, Max: 0}, got[1])
	assert.Equal(t, Peak{Min: 0.5, Max: 1}, got[2])
	assert.Equal(t, Peak{Min: -1, Max: 0.5}, got[3])
}

func TestPeaksMoreColumnsThanSamples(t *testing.T) {
	b := audio.NewBuffer(3)
	copy(b.Left, []float32{0.5, 0.25, -0.5})
	copy(b.Right, b.Left)

	got := Peaks(b, 900)
	require.Len(t, got, 900)
	assert.Equal(t, float32(0.5), got[0].Max)
	assert.Equal(t, float32(-0.5), got[899].Min)
}

func TestPeaksEmpty(t *testing.T) {
	assert.Nil(t, Peaks(audio.NewBuffer(10), 0))
	assert.Equal(t, make([]Peak, 5), Peaks(audio.NewBuffer(0), 5))
}

func TestColumn(t *testing.T) {
	assert.Equal(t, 450, Column(500, 1000, 900))
	assert.Equal(t, 899, Column(5000, 1000, 900))
	assert.Equal(t, 0, Column(-3, 1000, 900))
	assert.Equal(t, 0, Column(3, 0, 900))
}
