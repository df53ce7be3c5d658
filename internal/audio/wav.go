package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrUnsupportedFormat is returned for sources that are not 16-bit PCM.
	ErrUnsupportedFormat = errors.New("audio: only 16-bit PCM is supported")
	// ErrInvalidContainer is returned when the bytes are not a RIFF/WAVE stream.
	ErrInvalidContainer = errors.New("audio: not a valid WAV container")
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// ReadWAV decodes a 16-bit PCM WAV stream into a stereo buffer and the
// detected format.
func ReadWAV(r io.ReadSeeker) (Buffer, Format, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, Format{}, ErrInvalidContainer
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Buffer{}, Format{}, fmt.Errorf("%w: wave format tag %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	if d.BitDepth != BitDepth {
		return Buffer{}, Format{}, fmt.Errorf("%w: got %d-bit source", ErrUnsupportedFormat, d.BitDepth)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, Format{}, fmt.Errorf("read wav pcm: %w", err)
	}
	return FromInterleaved(pcm.Data, int(d.NumChans)), NewFormat(float64(d.SampleRate)), nil
}

// DecodeWAV is ReadWAV over an in-memory container.
func DecodeWAV(data []byte) (Buffer, Format, error) {
	return ReadWAV(bytes.NewReader(data))
}

// WriteWAV writes b as a 16-bit stereo PCM RIFF/WAVE stream.
func WriteWAV(w io.WriteSeeker, b Buffer, f Format) error {
	if err := b.Validate(); err != nil {
		return err
	}
	rate := int(f.SampleRate)
	if rate <= 0 {
		rate = SampleRate
	}

	samples := Interleave(b)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, rate, BitDepth, Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: Channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// EncodeWAV renders b into an in-memory WAV container.
func EncodeWAV(b Buffer, f Format) ([]byte, error) {
	ws := &memWriteSeeker{}
	if err := WriteWAV(ws, b, f); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// memWriteSeeker lets the WAV encoder patch its header sizes in memory.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	n := copy(m.buf[m.pos:], p)
	m.pos += n
	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("seek: negative position %d", abs)
	}
	m.pos = int(abs)
	return abs, nil
}
