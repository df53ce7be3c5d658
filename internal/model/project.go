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

// Project is the root of the tree. Its format is fixed to the standard one
// and it owns at most one output sink.
type Project struct {
	mu     sync.RWMutex
	name   string
	tracks []*Track
	out    sink.Sink
}

// NewProject returns an empty project.
func NewProject(name string) *Project {
	return &Project{name: normalizeName(name)}
}

func (p *Project) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

func (p *Project) Rename(name string) {
	if name = normalizeName(name); name == "" {
		return
	}
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
}

func (p *Project) Format() audio.Format {
	return audio.StandardFormat
}

// Duration is the longest track duration.
func (p *Project) Duration() time.Duration {
	var d time.Duration
	for _, t := range p.Tracks() {
		d = max(d, t.Duration())
	}
	return d
}

// Add appends a track.
func (p *Project) Add(c Component) error {
	t, ok := c.(*Track)
	if !ok {
		return fmt.Errorf("project %q: %w %T", p.Name(), ErrInvalidChild, c)
	}
	p.mu.Lock()
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	return nil
}

// Remove drops c if present and reports whether it was found.
func (p *Project) Remove(c Component) bool {
	t, ok := c.(*Track)
	if !ok {
		return false
	}
	p.mu.Lock()
	i := slices.Index(p.tracks, t)
	if i >= 0 {
		p.tracks = slices.Delete(p.tracks, i, i+1)
	}
	p.mu.Unlock()
	if i >= 0 {
		t.Stop()
	}
	return i >= 0
}

func (p *Project) Children() []Component {
	tracks := p.Tracks()
	out := make([]Component, len(tracks))
	for i, t := range tracks {
		out[i] = t
	}
	return out
}

// Tracks returns a snapshot of the track list.
func (p *Project) Tracks() []*Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.tracks)
}

// Track looks a track up by name.
func (p *Project) Track(name string) (*Track, bool) {
	name = normalizeName(name)
	for _, t := range p.Tracks() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Render mixes all tracks, normalizing when the sum clips.
func (p *Project) Render() audio.Buffer {
	tracks := p.Tracks()
	bufs := make([]audio.Buffer, len(tracks))
	for i, t := range tracks {
		bufs[i] = t.Render()
	}
	return audio.MixDown(bufs)
}

// Play stops the previous project output, then plays the mix on one sink.
func (p *Project) Play(dev sink.Device) error {
	p.Stop()
	out, err := openSink(dev, p.Render(), p.Format())
	if err != nil {
		return fmt.Errorf("play project %q: %w", p.Name(), err)
	}
	p.mu.Lock()
	prev := p.out
	p.out = out
	p.mu.Unlock()
	closeSink(prev)
	return nil
}

func (p *Project) Stop() {
	p.mu.Lock()
	out := p.out
	p.out = nil
	p.mu.Unlock()
	closeSink(out)
}

func (p *Project) ExportTo(ctx context.Context, path string, enc Encoder) error {
	return exportBuffer(ctx, path, p.Render(), p.Format(), enc)
}
