package stream

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/sink"
)

// Device is a sink.Device without a sound card: each sink paces itself on a
// 20ms wall clock and emits its frames on Frames, so playback is audible
// only through the HTTP and WebRTC monitors. Feed Frames to a Broadcaster.
type Device struct {
	frames chan Frame
}

// NewDevice returns a device with an unconsumed frame channel.
func NewDevice() *Device {
	return &Device{frames: make(chan Frame, 8)}
}

// Frames returns the output frames of whichever sink is playing.
func (d *Device) Frames() <-chan Frame {
	return d.frames
}

// NewSink implements sink.Device.
func (d *Device) NewSink() (sink.Sink, error) {
	return &clockSink{frames: d.frames, done: make(chan struct{})}, nil
}

// clockSink plays PCM in real time by emitting one frame per tick.
type clockSink struct {
	frames chan<- Frame

	mu      sync.Mutex
	format  audio.Format
	samples []int16 // interleaved stereo
	pos     int     // frames published
	stop    chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

func (s *clockSink) Open(f audio.Format, pcm []byte) error {
	if f.Channels != audio.Channels || f.BitDepth != audio.BitDepth {
		return fmt.Errorf("%w: stream sink needs 16-bit stereo, got %s", sink.ErrFormatMismatch, f)
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	s.mu.Lock()
	s.format = f
	s.samples = samples
	s.mu.Unlock()
	return nil
}

func (s *clockSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == nil {
		return sink.ErrNotOpen
	}
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	go s.run(s.stop)
	return nil
}

func (s *clockSink) run(stop <-chan struct{}) {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	frameSize := s.format.FrameSize()
	if frameSize <= 0 {
		frameSize = 1
	}
	total := len(s.samples) / 2
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		from := s.pos
		if from >= total {
			s.mu.Unlock()
			s.doneOnce.Do(func() { close(s.done) })
			return
		}
		to := min(from+frameSize, total)
		frame := make([]int16, frameSize*2)
		copy(frame, s.samples[from*2:to*2])
		s.pos = to
		s.mu.Unlock()

		select {
		case s.frames <- Frame{Samples: frame, SampleRate: int(s.format.SampleRate)}:
		case <-stop:
			return
		}
	}
}

func (s *clockSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

func (s *clockSink) Close() error {
	return s.Stop()
}

func (s *clockSink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Duration(s.pos)
}

func (s *clockSink) Length() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Duration(len(s.samples) / 2)
}

func (s *clockSink) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == nil {
		return sink.ErrNotOpen
	}
	s.pos = max(0, min(s.format.Samples(d), len(s.samples)/2))
	return nil
}

func (s *clockSink) Done() <-chan struct{} {
	return s.done
}
