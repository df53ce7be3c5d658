package stream

import "testing"

func TestResampleFrameIdentity(t *testing.T) {
	in := []int16{1, -1, 2, -2, 3, -3}
	got := ResampleFrame(in, 3)
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestResampleFrameUpsample(t *testing.T) {
	// 882 frames (20ms at 44.1kHz) to 960 (20ms at 48kHz)
	in := make([]int16, 882*2)
	for i := 0; i < 882; i++ {
		in[i*2] = int16(i)
		in[i*2+1] = -int16(i)
	}
	got := ResampleFrame(in, 960)
	if len(got) != 960*2 {
		t.Fatalf("len = %d, want %d", len(got), 960*2)
	}
	for i := 1; i < 960; i++ {
		if got[i*2] < got[(i-1)*2] {
			t.Fatalf("left channel not monotonic at %d", i)
		}
		if got[i*2+1] != -got[i*2] {
			t.Fatalf("channels crossed at frame %d: %d / %d", i, got[i*2], got[i*2+1])
		}
	}
}

func TestResampleFrameEmpty(t *testing.T) {
	got := ResampleFrame(nil, 4)
	if len(got) != 8 {
		t.Fatalf("len = %d, want 8 (silence)", len(got))
	}
	for _, v := range got {
		if v != 0 {
			t.Fatal("expected silence")
		}
	}
	if len(ResampleFrame([]int16{1, 2}, 0)) != 0 {
		t.Error("zero output frames should be empty")
	}
}
