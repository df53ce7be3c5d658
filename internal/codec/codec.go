// Package codec converts between container bytes and in-memory buffers and
// shifts tempo. WAV and MP3 are decoded in-process; everything else, all
// lossy encoding and tempo changes go through an ffmpeg process.
package codec

import (
	"context"
	"errors"
	"fmt"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
)

var logger = logging.NewLogger("sdt/codec")

// ErrInvalidTempo is returned for non-positive or non-finite tempo factors.
var ErrInvalidTempo = errors.New("codec: tempo factor must be positive")

// Service is the codec collaborator used by editing, import and export.
type Service interface {
	// Decode parses container bytes; name is only used to pick a decoder
	// by extension.
	Decode(ctx context.Context, name string, data []byte) (audio.Buffer, audio.Format, error)
	Encode(ctx context.Context, buf audio.Buffer, f audio.Format, container string) ([]byte, error)
	// Resample time-stretches buf by tempo without changing pitch.
	Resample(ctx context.Context, buf audio.Buffer, f audio.Format, tempo float64) (audio.Buffer, error)
}

// Error is a failed codec operation with the tool's diagnostic output.
type Error struct {
	Op     string
	Err    error
	Output string
}

func (e *Error) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("codec %s: %v: %s", e.Op, e.Err, e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}
