// Package sinktest provides an in-memory sink.Device whose clock is driven
// by the test instead of a sound card.
package sinktest

import (
	"sync"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/sink"
)

// Device records every sink it creates.
type Device struct {
	mu    sync.Mutex
	sinks []*Sink
	// Err, when set, is returned by NewSink.
	Err error
}

// NewSink implements sink.Device.
func (d *Device) NewSink() (sink.Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	s := &Sink{done: make(chan struct{})}
	d.sinks = append(d.sinks, s)
	return s, nil
}

// Count returns the number of sinks created so far.
func (d *Device) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sinks)
}

// Last returns the most recently created sink, or nil.
func (d *Device) Last() *Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sinks) == 0 {
		return nil
	}
	return d.sinks[len(d.sinks)-1]
}

// Open returns how many created sinks are started and not closed.
func (d *Device) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sinks {
		if s.Playing() {
			n++
		}
	}
	return n
}

// Sink is a fake output whose position only moves when told to.
type Sink struct {
	mu      sync.Mutex
	format  audio.Format
	pcm     []byte
	length  time.Duration
	pos     time.Duration
	started bool
	closed  bool
	done    chan struct{}
	once    sync.Once
}

func (s *Sink) Open(f audio.Format, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
	s.pcm = pcm
	s.length = f.Duration(len(pcm) / f.FrameBytes())
	return nil
}

func (s *Sink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pcm == nil {
		return sink.ErrNotOpen
	}
	s.started = true
	return nil
}

func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

func (s *Sink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Sink) Length() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

func (s *Sink) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = max(0, min(d, s.length))
	return nil
}

func (s *Sink) Done() <-chan struct{} {
	return s.done
}

// SetPosition moves the playback clock.
func (s *Sink) SetPosition(d time.Duration) {
	s.mu.Lock()
	s.pos = d
	s.mu.Unlock()
}

// Finish moves the clock to the end and closes Done.
func (s *Sink) Finish() {
	s.SetPosition(s.Length())
	s.once.Do(func() { close(s.done) })
}

// Playing reports whether the sink is started and not closed.
func (s *Sink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

// Closed reports whether Close was called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// PCM returns the bytes passed to Open.
func (s *Sink) PCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pcm
}

// Format returns the format passed to Open.
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}
