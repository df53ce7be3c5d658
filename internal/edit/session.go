// Package edit applies clipboard and in-place edits to the tracks of a
// project. A Session serializes all edits and owns the clipboard and the
// per-track selections.
package edit

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/model"
	"github.com/ivannakotyk/SDT/internal/selection"
)

var logger = logging.NewLogger("sdt/edit")

// Resampler time-stretches a buffer. codec.FFmpeg satisfies it.
type Resampler interface {
	Resample(ctx context.Context, buf audio.Buffer, f audio.Format, tempo float64) (audio.Buffer, error)
}

// IdentityAssigner hands out persistent IDs for imported segments.
type IdentityAssigner interface {
	AssignSegmentID(ctx context.Context, track *model.Track, seg *model.Segment) (int64, error)
}

// TrackRegistry mirrors track and segment lifetimes on the persistence
// store. backend.Client satisfies it.
type TrackRegistry interface {
	AssignTrackID(ctx context.Context, track *model.Track) (int64, error)
	ReleaseTrack(ctx context.Context, track *model.Track) error
	ReleaseSegment(ctx context.Context, seg *model.Segment) error
}

// Options configures a Session. Zero values pick the defaults.
type Options struct {
	CanvasWidth        float64
	SelectionThreshold float64
	Resampler          Resampler
	Assigner           IdentityAssigner
	Registry           TrackRegistry
}

// Result describes a committed edit.
type Result struct {
	Track  string          `json:"track"`
	Range  selection.Range `json:"range"`
	Clip   int             `json:"clip"`   // clipboard length after the edit
	Length int             `json:"length"` // main segment length after the edit
}

// Session is the editing state of one project.
type Session struct {
	mu         sync.Mutex
	project    *model.Project
	clipboard  *model.Segment
	selections map[string]selection.Selection
	mapper     selection.Mapper
	threshold  float64
	resampler  Resampler
	assigner   IdentityAssigner
	registry   TrackRegistry
}

// NewSession returns a session editing p.
func NewSession(p *model.Project, opts Options) *Session {
	threshold := opts.SelectionThreshold
	if threshold <= 0 {
		threshold = selection.DefaultThreshold
	}
	return &Session{
		project:    p,
		selections: make(map[string]selection.Selection),
		mapper:     selection.NewMapper(opts.CanvasWidth),
		threshold:  threshold,
		resampler:  opts.Resampler,
		assigner:   opts.Assigner,
		registry:   opts.Registry,
	}
}

// Project returns the edited project.
func (s *Session) Project() *model.Project {
	return s.project
}

// Mapper returns the pixel mapper used for selections.
func (s *Session) Mapper() selection.Mapper {
	return s.mapper
}

// Clipboard returns the clipboard segment, or nil.
func (s *Session) Clipboard() *model.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clipboard
}

// --- Tracks ---

// AddTrack appends a new empty track. With a TrackRegistry the track gets
// its store ID before it becomes visible.
func (s *Session) AddTrack(ctx context.Context, name string) (*model.Track, error) {
	tr := model.NewTrack(name)
	if tr.Name() == "" {
		return nil, precondition("add track", name, ErrInvalidName)
	}
	s.mu.Lock()
	_, exists := s.project.Track(tr.Name())
	s.mu.Unlock()
	if exists {
		return nil, precondition("add track", tr.Name(), ErrTrackExists)
	}

	if err := s.register(ctx, "add track", tr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.project.Track(tr.Name()); ok {
		return nil, precondition("add track", tr.Name(), ErrTrackExists)
	}
	if err := s.project.Add(tr); err != nil {
		return nil, err
	}
	logger.Infof("Track added: %s (id %d)", tr.Name(), tr.ID())
	return tr, nil
}

// register resolves the store ID of an unregistered track.
func (s *Session) register(ctx context.Context, op string, tr *model.Track) error {
	if s.registry == nil || tr.ID() != 0 {
		return nil
	}
	id, err := s.registry.AssignTrackID(ctx, tr)
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, tr.Name(), err)
	}
	tr.SetID(id)
	return nil
}

// RemoveTrack drops a track and its selection. A registered track is
// deleted from the store first; on failure it stays in the project.
func (s *Session) RemoveTrack(ctx context.Context, name string) error {
	s.mu.Lock()
	tr, err := s.track("remove track", name)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if s.registry != nil {
		if err := s.registry.ReleaseTrack(ctx, tr); err != nil {
			return fmt.Errorf("remove track %q: %w", tr.Name(), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.project.Track(tr.Name()); !ok || cur != tr {
		return precondition("remove track", tr.Name(), ErrTrackNotFound)
	}
	tr.Stop()
	s.project.Remove(tr)
	delete(s.selections, tr.Name())
	logger.Infof("Track removed: %s", tr.Name())
	return nil
}

func (s *Session) track(op, name string) (*model.Track, error) {
	tr, ok := s.project.Track(name)
	if !ok {
		return nil, precondition(op, name, ErrTrackNotFound)
	}
	return tr, nil
}

// --- Selection ---

// Select records a pixel selection on a track.
func (s *Session) Select(name string, x0, x1 float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.track("select", name)
	if err != nil {
		return err
	}
	s.selections[tr.Name()] = selection.Selection{XStart: x0, XEnd: x1}
	return nil
}

// ClearSelection resets a track's selection.
func (s *Session) ClearSelection(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.project.Track(name); ok {
		delete(s.selections, tr.Name())
	}
}

// Selection returns a track's selection, inactive if none.
func (s *Session) Selection(name string) selection.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tr, ok := s.project.Track(name); ok {
		if sel, ok := s.selections[tr.Name()]; ok {
			return sel
		}
	}
	return selection.New()
}

// activeRange resolves the track, its main segment and the selected range.
// Called with s.mu held.
func (s *Session) activeRange(op, name string) (*model.Track, *model.Segment, selection.Range, error) {
	tr, err := s.track(op, name)
	if err != nil {
		return nil, nil, selection.Range{}, err
	}
	sel, ok := s.selections[tr.Name()]
	if !ok || !sel.Active(s.threshold) {
		return nil, nil, selection.Range{}, precondition(op, tr.Name(), ErrNoSelection)
	}
	seg := tr.MainSegment()
	if seg == nil {
		return nil, nil, selection.Range{}, precondition(op, tr.Name(), ErrNoSegment)
	}
	if seg.Len() == 0 {
		return nil, nil, selection.Range{}, precondition(op, tr.Name(), ErrEmptySegment)
	}
	return tr, seg, s.mapper.Range(sel, seg.Len()), nil
}

// commit validates and stores a transformed buffer.
func commit(op string, tr *model.Track, seg *model.Segment, b audio.Buffer) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%s %q: %w", op, tr.Name(), err)
	}
	if err := seg.SetSamples(b); err != nil {
		return fmt.Errorf("%s %q: %w", op, tr.Name(), err)
	}
	return nil
}

// --- Clipboard edits ---

// Copy puts the selected range of a track into the clipboard.
func (s *Session) Copy(name string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, seg, r, err := s.activeRange("copy", name)
	if err != nil {
		return Result{}, err
	}
	clip, err := sliceClip(tr, seg, r)
	if err != nil {
		return Result{}, err
	}
	s.clipboard = clip
	logger.Infof("Copied %d samples from %s", r.Len(), tr.Name())
	return Result{Track: tr.Name(), Range: r, Clip: s.clipboard.Len(), Length: seg.Len()}, nil
}

// sliceClip detaches the range into a new, unsynced clipboard segment.
func sliceClip(tr *model.Track, seg *model.Segment, r selection.Range) (*model.Segment, error) {
	clip, err := model.NewSegment("clip", seg.Format(), audio.Slice(seg.Samples(), r.Start, r.End))
	if err != nil {
		return nil, fmt.Errorf("copy %q: %w", tr.Name(), err)
	}
	return clip, nil
}

// Cut copies the selected range and removes it from the track.
func (s *Session) Cut(name string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, seg, r, err := s.activeRange("cut", name)
	if err != nil {
		return Result{}, err
	}
	clip, err := sliceClip(tr, seg, r)
	if err != nil {
		return Result{}, err
	}
	if err := commit("cut", tr, seg, audio.Cut(seg.Samples(), r.Start, r.End)); err != nil {
		return Result{}, err
	}
	s.clipboard = clip
	delete(s.selections, tr.Name())
	logger.Infof("Cut %d samples from %s", r.Len(), tr.Name())
	return Result{Track: tr.Name(), Range: r, Clip: s.clipboard.Len(), Length: seg.Len()}, nil
}

// Paste splices the clipboard over the active selection, or inserts it at
// cursorFrac of the track when nothing is selected.
func (s *Session) Paste(name string, cursorFrac float64) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, err := s.track("paste", name)
	if err != nil {
		return Result{}, err
	}
	if s.clipboard == nil || s.clipboard.Len() == 0 {
		return Result{}, precondition("paste", tr.Name(), ErrEmptyClipboard)
	}
	clip := s.clipboard.Samples()

	seg := tr.MainSegment()
	if seg == nil {
		seg, err = model.NewSegment(tr.Name(), s.clipboard.Format(), audio.NewBuffer(0))
		if err != nil {
			return Result{}, err
		}
		if err := tr.Add(seg); err != nil {
			return Result{}, err
		}
	}
	samples := seg.Samples()

	var r selection.Range
	sel, ok := s.selections[tr.Name()]
	if ok && sel.Active(s.threshold) {
		r = s.mapper.Range(sel, samples.Len())
	} else {
		if math.IsNaN(cursorFrac) {
			cursorFrac = 0
		}
		at := selection.CursorIndex(cursorFrac, samples.Len())
		r = selection.Range{Start: at, End: at}
	}

	if err := commit("paste", tr, seg, audio.Splice(samples, clip, r.Start, r.End)); err != nil {
		return Result{}, err
	}
	delete(s.selections, tr.Name())
	logger.Infof("Pasted %d samples into %s at %d", clip.Len(), tr.Name(), r.Start)
	return Result{Track: tr.Name(), Range: r, Clip: clip.Len(), Length: seg.Len()}, nil
}

// --- In-place edits ---

// Reverse reverses the selected range. The selection is kept so the same
// range can be reversed back.
func (s *Session) Reverse(name string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, seg, r, err := s.activeRange("reverse", name)
	if err != nil {
		return Result{}, err
	}
	if err := commit("reverse", tr, seg, audio.Reverse(seg.Samples(), r.Start, r.End)); err != nil {
		return Result{}, err
	}
	logger.Infof("Reversed %d samples on %s", r.Len(), tr.Name())
	return Result{Track: tr.Name(), Range: r, Clip: s.clipLen(), Length: seg.Len()}, nil
}

func (s *Session) clipLen() int {
	if s.clipboard == nil {
		return 0
	}
	return s.clipboard.Len()
}

// ChangeTempo time-stretches the selected range by k through the resampler.
// The lock is released while the resampler runs; the result is only spliced
// back if the segment was not edited in the meantime. On any failure the
// segment is left untouched.
func (s *Session) ChangeTempo(ctx context.Context, name string, k float64) (Result, error) {
	s.mu.Lock()
	if k <= 0 || math.IsNaN(k) || math.IsInf(k, 0) {
		s.mu.Unlock()
		return Result{}, precondition("tempo", name, ErrInvalidTempo)
	}
	if s.resampler == nil {
		s.mu.Unlock()
		return Result{}, precondition("tempo", name, ErrNoResampler)
	}
	tr, seg, r, err := s.activeRange("tempo", name)
	if err != nil {
		s.mu.Unlock()
		return Result{}, err
	}
	samples := seg.Samples()
	version := seg.Version()
	f := seg.Format()
	slice := audio.Slice(samples, r.Start, r.End)
	s.mu.Unlock()

	stretched, err := s.resampler.Resample(ctx, slice, f, k)
	if err != nil {
		logger.Warnf("Tempo change on %s failed: %v", tr.Name(), err)
		return Result{}, fmt.Errorf("tempo %q: %w", tr.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seg.Version() != version || tr.MainSegment() != seg {
		return Result{}, fmt.Errorf("tempo %q: %w", tr.Name(), ErrStaleEdit)
	}
	if err := commit("tempo", tr, seg, audio.Splice(samples, stretched, r.Start, r.End)); err != nil {
		return Result{}, err
	}
	logger.Infof("Tempo %.3gx on %s: %d -> %d samples", k, tr.Name(), slice.Len(), stretched.Len())
	return Result{Track: tr.Name(), Range: r, Clip: s.clipLen(), Length: seg.Len()}, nil
}

// TempoResult is delivered by ChangeTempoAsync.
type TempoResult struct {
	Result Result
	Err    error
}

// ChangeTempoAsync runs ChangeTempo on its own goroutine. The channel
// receives exactly one value.
func (s *Session) ChangeTempoAsync(ctx context.Context, name string, k float64) <-chan TempoResult {
	ch := make(chan TempoResult, 1)
	go func() {
		res, err := s.ChangeTempo(ctx, name, k)
		ch <- TempoResult{Result: res, Err: err}
	}()
	return ch
}

// --- Import ---

// Import replaces a track's segments with seg. When an IdentityAssigner is
// configured the segment is registered first; a failure leaves the track as
// it was. Replaced segments that were synced are released from the store.
func (s *Session) Import(ctx context.Context, name string, seg *model.Segment) error {
	s.mu.Lock()
	tr, err := s.track("import", name)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.register(ctx, "import", tr); err != nil {
		return err
	}
	if s.assigner != nil {
		id, err := s.assigner.AssignSegmentID(ctx, tr, seg)
		if err != nil {
			return fmt.Errorf("import %q: %w", tr.Name(), err)
		}
		seg.SetID(id)
	}

	s.mu.Lock()
	if cur, ok := s.project.Track(tr.Name()); !ok || cur != tr {
		s.mu.Unlock()
		return precondition("import", tr.Name(), ErrTrackNotFound)
	}
	replaced := tr.ReplaceSegments(seg)
	delete(s.selections, tr.Name())
	s.mu.Unlock()
	logger.Infof("Imported %s into %s (%d samples, id %d)", seg.Name(), tr.Name(), seg.Len(), seg.ID())

	if s.registry == nil {
		return nil
	}
	for _, old := range replaced {
		if old.ID() == 0 || old.ID() == seg.ID() {
			continue
		}
		// The import is committed; a stale record is only worth a warning.
		if err := s.registry.ReleaseSegment(ctx, old); err != nil {
			logger.Warnf("Release of replaced segment %d on %s failed: %v", old.ID(), tr.Name(), err)
		}
	}
	return nil
}
