package model

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/sink"
)

// Track is an ordered list of segments played back to back.
type Track struct {
	mu       sync.RWMutex
	id       int64
	name     string
	segments []*Segment
}

// NewTrack returns an empty track.
func NewTrack(name string) *Track {
	return &Track{name: normalizeName(name)}
}

func (t *Track) ID() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// SetID records the backend's identity for the track.
func (t *Track) SetID(id int64) {
	t.mu.Lock()
	t.id = id
	t.mu.Unlock()
}

func (t *Track) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.name
}

func (t *Track) Rename(name string) {
	if name = normalizeName(name); name == "" {
		return
	}
	t.mu.Lock()
	t.name = name
	t.mu.Unlock()
}

// Format is the first segment's format, or the standard format when empty.
func (t *Track) Format() audio.Format {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.segments) == 0 {
		return audio.StandardFormat
	}
	return t.segments[0].Format()
}

// Duration is the longest child duration.
func (t *Track) Duration() time.Duration {
	var d time.Duration
	for _, s := range t.Segments() {
		d = max(d, s.Duration())
	}
	return d
}

// Add appends a segment.
func (t *Track) Add(c Component) error {
	seg, ok := c.(*Segment)
	if !ok {
		return fmt.Errorf("track %q: %w %T", t.Name(), ErrInvalidChild, c)
	}
	t.mu.Lock()
	t.segments = append(t.segments, seg)
	t.mu.Unlock()
	return nil
}

// Remove drops c if present and reports whether it was found.
func (t *Track) Remove(c Component) bool {
	seg, ok := c.(*Segment)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	i := slices.Index(t.segments, seg)
	if i < 0 {
		return false
	}
	t.segments = slices.Delete(t.segments, i, i+1)
	return true
}

func (t *Track) Children() []Component {
	segs := t.Segments()
	out := make([]Component, len(segs))
	for i, s := range segs {
		out[i] = s
	}
	return out
}

// Segments returns a snapshot of the segment list.
func (t *Track) Segments() []*Segment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.segments)
}

// MainSegment is the segment edits apply to: the first one, or nil.
func (t *Track) MainSegment() *Segment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.segments) == 0 {
		return nil
	}
	return t.segments[0]
}

// ReplaceSegments swaps all segments for seg, stopping and returning the
// old ones.
func (t *Track) ReplaceSegments(seg *Segment) []*Segment {
	t.mu.Lock()
	old := t.segments
	t.segments = []*Segment{seg}
	t.mu.Unlock()
	for _, s := range old {
		s.Stop()
	}
	return old
}

// Render concatenates the segments in order.
func (t *Track) Render() audio.Buffer {
	segs := t.Segments()
	bufs := make([]audio.Buffer, len(segs))
	for i, s := range segs {
		bufs[i] = s.Samples()
	}
	return audio.Concatenate(bufs...)
}

// Play starts every segment on its own sink.
func (t *Track) Play(dev sink.Device) error {
	for _, s := range t.Segments() {
		if err := s.Play(dev); err != nil {
			t.Stop()
			return fmt.Errorf("play track %q: %w", t.Name(), err)
		}
	}
	return nil
}

func (t *Track) Stop() {
	for _, s := range t.Segments() {
		s.Stop()
	}
}

func (t *Track) ExportTo(ctx context.Context, path string, enc Encoder) error {
	return exportBuffer(ctx, path, t.Render(), t.Format(), enc)
}
