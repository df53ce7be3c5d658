// Package playback drives a single output sink for a track or the project
// mix and reports progress while it plays.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/model"
	"github.com/ivannakotyk/SDT/internal/sink"
)

var logger = logging.NewLogger("sdt/playback")

var (
	ErrNothingToPlay = errors.New("playback: nothing to play")
	ErrTrackNotFound = errors.New("playback: track not found")
)

const (
	DefaultInterval = 50 * time.Millisecond
	DefaultEpsilon  = time.Millisecond
)

// State of the controller.
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "idle"
}

// EventKind separates periodic progress from end of playback.
type EventKind int

const (
	Progress EventKind = iota
	Finished
)

func (k EventKind) String() string {
	if k == Finished {
		return "finished"
	}
	return "progress"
}

// Event is emitted on the Events channel.
type Event struct {
	Kind     EventKind
	Target   string
	Fraction float64 // position / length, in [0, 1]
	Position time.Duration
	Length   time.Duration
}

// Controller plays one target at a time.
type Controller struct {
	project  *model.Project
	device   sink.Device
	interval time.Duration
	epsilon  time.Duration
	events   chan Event

	mu       sync.Mutex
	state    State
	target   string
	out      sink.Sink
	pausedAt time.Duration
	gen      uint64
	cancel   chan struct{}
}

// NewController returns an idle controller. Non-positive interval or epsilon
// fall back to 50ms and 1ms.
func NewController(p *model.Project, dev sink.Device, interval, epsilon time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Controller{
		project:  p,
		device:   dev,
		interval: interval,
		epsilon:  epsilon,
		events:   make(chan Event, 64),
	}
}

// Events delivers progress and completion. Events are dropped when the
// consumer falls behind.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the name of what is (or was last) playing.
func (c *Controller) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Position is the live offset while playing, else the paused offset.
func (c *Controller) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		return c.out.Position()
	}
	return c.pausedAt
}

// Start plays target from the paused offset, or from 0. An empty target or
// the project name plays the project mix.
func (c *Controller) Start(target string) error {
	return c.start(target, nil)
}

// StartAt plays target from at. Offsets outside the rendered length start
// from 0.
func (c *Controller) StartAt(target string, at time.Duration) error {
	return c.start(target, &at)
}

func (c *Controller) start(target string, at *time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	if c.state == Playing {
		c.state = Idle
	}

	name, buf, f, err := c.render(target)
	if err != nil {
		return err
	}
	if buf.Len() == 0 {
		return fmt.Errorf("%w: %q is empty", ErrNothingToPlay, name)
	}

	out, err := c.device.NewSink()
	if err != nil {
		return fmt.Errorf("play %q: new sink: %w", name, err)
	}
	if err := out.Open(f, audio.EncodePCM16(buf)); err != nil {
		out.Close()
		return fmt.Errorf("play %q: open sink: %w", name, err)
	}

	offset := c.pausedAt
	if at != nil {
		offset = *at
	}
	if offset <= 0 || offset >= out.Length() {
		offset = 0
	}
	if err := out.Seek(offset); err != nil {
		out.Close()
		return fmt.Errorf("play %q: seek: %w", name, err)
	}
	if err := out.Start(); err != nil {
		out.Close()
		return fmt.Errorf("play %q: start sink: %w", name, err)
	}

	c.out = out
	c.target = name
	c.state = Playing
	c.pausedAt = 0
	c.cancel = make(chan struct{})
	go c.tick(c.gen, out, c.cancel, name)

	logger.Infof("Now playing: %s from %v (%v)", name, offset, out.Length())
	return nil
}

func (c *Controller) render(target string) (string, audio.Buffer, audio.Format, error) {
	if target == "" || target == c.project.Name() {
		return c.project.Name(), c.project.Render(), c.project.Format(), nil
	}
	tr, ok := c.project.Track(target)
	if !ok {
		return "", audio.Buffer{}, audio.Format{}, fmt.Errorf("%w: %q", ErrTrackNotFound, target)
	}
	return tr.Name(), tr.Render(), tr.Format(), nil
}

// Stop ends playback, remembering the offset unless the end was reached.
// Stopping an idle controller does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.out == nil {
		return
	}
	pos := c.out.Position()
	length := c.out.Length()
	if length > 0 && pos < length-c.epsilon {
		c.pausedAt = pos
		c.state = Paused
	} else {
		c.pausedAt = 0
		c.state = Idle
	}
	c.closeLocked()
	logger.Debugf("Stopped %s at %v (%s)", c.target, pos, c.state)
}

// closeLocked cancels the ticker and releases the sink. Bumping gen turns
// any in-flight end-of-stream signal into a no-op.
func (c *Controller) closeLocked() {
	c.gen++
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
	if c.out != nil {
		if err := c.out.Stop(); err != nil {
			logger.Warnf("Stop sink: %v", err)
		}
		if err := c.out.Close(); err != nil {
			logger.Warnf("Close sink: %v", err)
		}
		c.out = nil
	}
}

func (c *Controller) tick(gen uint64, out sink.Sink, cancel <-chan struct{}, target string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if c.progress(out, target) {
			c.finish(gen)
			return
		}
		select {
		case <-cancel:
			return
		case <-out.Done():
			c.finish(gen)
			return
		case <-ticker.C:
		}
	}
}

// progress emits one progress event and reports whether the end was reached.
func (c *Controller) progress(out sink.Sink, target string) bool {
	length := out.Length()
	if length <= 0 {
		return false
	}
	pos := out.Position()
	frac := max(0, min(1, float64(pos)/float64(length)))
	c.emit(Event{Kind: Progress, Target: target, Fraction: frac, Position: pos, Length: length})
	return pos >= length-c.epsilon
}

// finish handles a natural end of stream for playback generation gen.
func (c *Controller) finish(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Playing {
		return
	}
	length := c.out.Length()
	c.emit(Event{Kind: Finished, Target: c.target, Fraction: 1, Position: length, Length: length})
	c.closeLocked()
	c.pausedAt = 0
	c.state = Idle
	logger.Infof("Finished: %s", c.target)
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
