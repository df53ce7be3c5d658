package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// --- Format ---

func TestStandardFormat(t *testing.T) {
	if StandardFormat.SampleRate != 44100 {
		t.Errorf("SampleRate = %v, want 44100", StandardFormat.SampleRate)
	}
	if StandardFormat.FrameBytes() != BytesPerFrame {
		t.Errorf("FrameBytes = %d, want %d", StandardFormat.FrameBytes(), BytesPerFrame)
	}
	// 44.1kHz * 20ms = 882 samples per channel
	if got := StandardFormat.FrameSize(); got != 882 {
		t.Errorf("FrameSize = %d, want 882", got)
	}
}

func TestFormatDuration(t *testing.T) {
	f := NewFormat(1000)
	if got := f.Duration(1500); got != 1500*time.Millisecond {
		t.Errorf("Duration(1500) = %v, want 1.5s", got)
	}
	if got := f.Samples(250 * time.Millisecond); got != 250 {
		t.Errorf("Samples(250ms) = %d, want 250", got)
	}
	if got := f.Samples(-time.Second); got != 0 {
		t.Errorf("Samples(negative) = %d, want 0", got)
	}
	if got := (Format{}).Duration(100); got != 0 {
		t.Errorf("zero-rate Duration = %v, want 0", got)
	}
}

// --- PCM16 ---

func TestEncodePCM16Clamps(t *testing.T) {
	b := Buffer{Left: []float32{2, -2}, Right: []float32{0, 1}}
	data := EncodePCM16(b)
	if len(data) != 8 {
		t.Fatalf("len = %d, want 8", len(data))
	}
	want := []byte{
		0xff, 0x7f, 0x00, 0x00, // L=32767, R=0
		0x01, 0x80, 0xff, 0x7f, // L=-32767, R=32767
	}
	if !bytes.Equal(data, want) {
		t.Errorf("EncodePCM16 = % x, want % x", data, want)
	}
}

func TestDecodePCM16Stereo(t *testing.T) {
	data := SamplesToBytes([]int16{16384, -16384, -32768, 0})
	b, err := DecodePCM16(data, 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	if b.Left[0] != 0.5 || b.Right[0] != -0.5 || b.Left[1] != -1 || b.Right[1] != 0 {
		t.Errorf("decoded = %v / %v", b.Left, b.Right)
	}
}

func TestDecodePCM16MonoDuplicates(t *testing.T) {
	data := SamplesToBytes([]int16{8192, -8192, 0})
	b, err := DecodePCM16(data, 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if b.Len() != 3 {
		t.Fatalf("Len = %d, want 3", b.Len())
	}
	for i := range b.Left {
		if b.Left[i] != b.Right[i] {
			t.Errorf("sample %d: left %v != right %v", i, b.Left[i], b.Right[i])
		}
	}
}

func TestDecodePCM16DropsPartialFrame(t *testing.T) {
	data := append(SamplesToBytes([]int16{1, 2}), 0x01)
	b, err := DecodePCM16(data, 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
	if _, err := DecodePCM16(data, 0); err == nil {
		t.Error("DecodePCM16 with 0 channels should fail")
	}
}

func TestInterleave(t *testing.T) {
	b := Buffer{Left: []float32{1, 0}, Right: []float32{-1, 0.5}}
	got := Interleave(b)
	want := []int16{32767, -32767, 0, 16383}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

// --- WAV ---

func TestWAVRoundTrip(t *testing.T) {
	src := NewBuffer(64)
	for i := range src.Left {
		src.Left[i] = float32(i) / 64
		src.Right[i] = -float32(i) / 64
	}
	data, err := EncodeWAV(src, NewFormat(22050))
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: % x", data[:12])
	}

	got, f, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if f.SampleRate != 22050 || f.Channels != 2 || f.BitDepth != 16 {
		t.Errorf("format = %v, want 22050 Hz / 16-bit / 2 ch", f)
	}
	if got.Len() != src.Len() {
		t.Fatalf("Len = %d, want %d", got.Len(), src.Len())
	}
	for i := range src.Left {
		if d := got.Left[i] - src.Left[i]; d > 1e-3 || d < -1e-3 {
			t.Errorf("left[%d] = %v, want ~%v", i, got.Left[i], src.Left[i])
		}
	}
}

func TestWriteWAVRejectsMismatchedChannels(t *testing.T) {
	b := Buffer{Left: make([]float32, 3), Right: make([]float32, 2)}
	if _, err := EncodeWAV(b, StandardFormat); !errors.Is(err, ErrChannelMismatch) {
		t.Errorf("err = %v, want ErrChannelMismatch", err)
	}
}

func TestReadWAVRejectsEightBit(t *testing.T) {
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, 8000, 8, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           []int{10, 20, 30, 40},
		SourceBitDepth: 8,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := DecodeWAV(ws.buf); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not a wave file")); !errors.Is(err, ErrInvalidContainer) {
		t.Errorf("err = %v, want ErrInvalidContainer", err)
	}
}

func TestMemWriteSeekerOverwrite(t *testing.T) {
	ws := &memWriteSeeker{}
	ws.Write([]byte("abcdef"))
	if _, err := ws.Seek(2, 0); err != nil {
		t.Fatal(err)
	}
	ws.Write([]byte("XY"))
	if string(ws.buf) != "abXYef" {
		t.Errorf("buf = %q, want abXYef", ws.buf)
	}
	if _, err := ws.Seek(-1, 0); err == nil {
		t.Error("negative seek should fail")
	}
}
