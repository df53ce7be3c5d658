package edit

import (
	"errors"
	"fmt"
)

var (
	ErrNoSelection    = errors.New("no active selection")
	ErrEmptyClipboard = errors.New("clipboard is empty")
	ErrNoSegment      = errors.New("track has no segment")
	ErrEmptySegment   = errors.New("segment has no samples")
	ErrTrackNotFound  = errors.New("track not found")
	ErrTrackExists    = errors.New("track already exists")
	ErrInvalidName    = errors.New("track name is empty")
	ErrInvalidTempo   = errors.New("tempo factor must be positive")
	ErrNoResampler    = errors.New("no resampler configured")

	// ErrStaleEdit is returned when a tempo change finishes after the segment
	// was edited by something else; the result is discarded.
	ErrStaleEdit = errors.New("segment changed during tempo change")
)

// PreconditionError reports an edit refused before anything was touched.
type PreconditionError struct {
	Op    string
	Track string
	Err   error
}

func (e *PreconditionError) Error() string {
	if e.Track == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Track, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func precondition(op, track string, err error) error {
	return &PreconditionError{Op: op, Track: track, Err: err}
}

// IsPrecondition reports whether err is a refused edit.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
