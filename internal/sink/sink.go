// Package sink defines the opaque output handle the playback controller
// drives, plus a hardware implementation on top of oto.
package sink

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
)

var (
	// ErrNotOpen is returned when a sink is used before Open.
	ErrNotOpen = errors.New("sink: not open")
	// ErrFormatMismatch is returned when the PCM format differs from the device.
	ErrFormatMismatch = errors.New("sink: format differs from device format")
)

// Sink is a single-use output handle for one rendered PCM buffer.
type Sink interface {
	// Open loads interleaved 16-bit little-endian PCM in the given format.
	Open(f audio.Format, pcm []byte) error
	Start() error
	Stop() error
	Close() error
	// Position is the audible playback offset.
	Position() time.Duration
	Length() time.Duration
	Seek(d time.Duration) error
	// Done is closed once playback reaches the end of the data.
	Done() <-chan struct{}
}

// Device creates sinks.
type Device interface {
	NewSink() (Sink, error)
}

// pcmReader serves PCM bytes to an output goroutine while the offset is
// read concurrently for position reporting.
type pcmReader struct {
	data []byte
	off  atomic.Int64
}

func (r *pcmReader) Read(p []byte) (int, error) {
	off := r.off.Load()
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	r.off.Add(int64(n))
	return n, nil
}

func (r *pcmReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off.Load() + offset
	case io.SeekEnd:
		abs = int64(len(r.data)) + offset
	}
	abs = max(0, min(abs, int64(len(r.data))))
	r.off.Store(abs)
	return abs, nil
}

func (r *pcmReader) remaining() int64 {
	return int64(len(r.data)) - r.off.Load()
}

// doneSignal is a channel closed at most once.
type doneSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newDoneSignal() *doneSignal {
	return &doneSignal{ch: make(chan struct{})}
}

func (d *doneSignal) fire() {
	d.once.Do(func() { close(d.ch) })
}

// bytesToDuration converts a frame-aligned byte count to wall time.
func bytesToDuration(f audio.Format, n int64) time.Duration {
	fb := int64(f.FrameBytes())
	if fb <= 0 || n <= 0 {
		return 0
	}
	return f.Duration(int(n / fb))
}

// durationToBytes converts wall time to a frame-aligned byte offset.
func durationToBytes(f audio.Format, d time.Duration) int64 {
	return int64(f.Samples(d)) * int64(f.FrameBytes())
}
