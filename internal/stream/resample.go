package stream

// ResampleFrame linearly interpolates interleaved stereo samples to exactly
// outFrames frames. Encoders downstream need fixed frame sizes.
func ResampleFrame(samples []int16, outFrames int) []int16 {
	in := len(samples) / 2
	out := make([]int16, outFrames*2)
	if in == 0 || outFrames <= 0 {
		return out
	}
	if in == outFrames {
		copy(out, samples)
		return out
	}
	step := float64(in) / float64(outFrames)
	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		k := min(j+1, in-1)
		for ch := 0; ch < 2; ch++ {
			a := float64(samples[j*2+ch])
			b := float64(samples[k*2+ch])
			out[i*2+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}
