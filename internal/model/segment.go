package model

import (
	"context"
	"sync"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/sink"
)

// Segment is a leaf holding one contiguous stereo buffer.
type Segment struct {
	mu      sync.RWMutex
	id      int64 // 0 until the persistence backend assigns one
	name    string
	format  audio.Format
	samples audio.Buffer
	version uint64
	out     sink.Sink
}

// NewSegment creates a segment. The buffer is owned by the segment from now
// on and must not be mutated by the caller.
func NewSegment(name string, f audio.Format, samples audio.Buffer) (*Segment, error) {
	if err := samples.Validate(); err != nil {
		return nil, err
	}
	return &Segment{name: normalizeName(name), format: f, samples: samples}, nil
}

func (s *Segment) ID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetID records the identity handed out by the persistence backend.
func (s *Segment) SetID(id int64) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *Segment) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Segment) Rename(name string) {
	if name = normalizeName(name); name == "" {
		return
	}
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *Segment) Format() audio.Format {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format
}

// Samples returns the current buffer. Treat it as read-only.
func (s *Segment) Samples() audio.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples
}

// Len is the number of samples per channel.
func (s *Segment) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples.Len()
}

// Version increases on every SetSamples.
func (s *Segment) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetSamples replaces the buffer wholesale and stops segment playback.
func (s *Segment) SetSamples(b audio.Buffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.samples = b
	s.version++
	out := s.out
	s.out = nil
	s.mu.Unlock()
	closeSink(out)
	return nil
}

func (s *Segment) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.format.Duration(s.samples.Len())
}

func (s *Segment) Render() audio.Buffer {
	return s.Samples()
}

// Play opens a sink of its own for this segment.
func (s *Segment) Play(dev sink.Device) error {
	s.Stop()
	out, err := openSink(dev, s.Samples(), s.Format())
	if err != nil {
		return err
	}
	s.mu.Lock()
	prev := s.out
	s.out = out
	s.mu.Unlock()
	// a concurrent Play may have opened its sink after our Stop
	closeSink(prev)
	return nil
}

func (s *Segment) Stop() {
	s.mu.Lock()
	out := s.out
	s.out = nil
	s.mu.Unlock()
	closeSink(out)
}

func (s *Segment) ExportTo(ctx context.Context, path string, enc Encoder) error {
	return exportBuffer(ctx, path, s.Samples(), s.Format(), enc)
}
