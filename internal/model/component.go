// Package model is the composite audio object graph: a Project holds Tracks,
// a Track holds Segments, and a Segment holds samples.
package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
	"github.com/ivannakotyk/SDT/internal/sink"
	"golang.org/x/text/unicode/norm"
)

var logger = logging.NewLogger("sdt/model")

var (
	// ErrInvalidChild is returned when a composite is given a child of the
	// wrong kind (a Track only holds Segments, a Project only holds Tracks).
	ErrInvalidChild = errors.New("model: invalid child for this composite")
	// ErrNoContainer is returned when an export path has no file extension.
	ErrNoContainer = errors.New("model: export path has no container extension")
	// ErrNoEncoder is returned when a non-WAV export has no encoder.
	ErrNoEncoder = errors.New("model: no encoder for container")
)

// Encoder turns a buffer into container bytes (mp3, ogg, flac, ...).
type Encoder interface {
	Encode(ctx context.Context, buf audio.Buffer, f audio.Format, container string) ([]byte, error)
}

// Component is any node of the audio tree.
type Component interface {
	Name() string
	Rename(name string)
	Duration() time.Duration
	Format() audio.Format
	// Render returns the node's audio as one stereo buffer.
	Render() audio.Buffer
	Play(dev sink.Device) error
	Stop()
	ExportTo(ctx context.Context, path string, enc Encoder) error
}

// Composite is a Component with ordered children.
type Composite interface {
	Component
	Add(c Component) error
	Remove(c Component) bool
	Children() []Component
}

// normalizeName trims and NFC-normalizes a display name.
func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Tree renders an indented outline of c and its descendants.
func Tree(c Component) string {
	var b strings.Builder
	writeTree(&b, c, "")
	return b.String()
}

func writeTree(b *strings.Builder, c Component, indent string) {
	fmt.Fprintf(b, "%s• %s\n", indent, c.Name())
	if comp, ok := c.(Composite); ok {
		for _, child := range comp.Children() {
			writeTree(b, child, indent+"  ")
		}
	}
}

// Container returns the lower-case extension of path without the dot.
func Container(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// exportBuffer writes buf to path. WAV is written directly; other containers
// go through enc.
func exportBuffer(ctx context.Context, path string, buf audio.Buffer, f audio.Format, enc Encoder) error {
	container := Container(path)
	if container == "" {
		return fmt.Errorf("export %s: %w", path, ErrNoContainer)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	if container == "wav" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := audio.WriteWAV(file, buf, f); err != nil {
			file.Close()
			os.Remove(path)
			return fmt.Errorf("export %s: %w", path, err)
		}
		return file.Close()
	}

	if enc == nil {
		return fmt.Errorf("export %s: %w %q", path, ErrNoEncoder, container)
	}
	data, err := enc.Encode(ctx, buf, f, container)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Infof("Exported %s (%d bytes)", path, len(data))
	return nil
}

// openSink renders buf into a fresh sink from dev and starts it.
func openSink(dev sink.Device, buf audio.Buffer, f audio.Format) (sink.Sink, error) {
	s, err := dev.NewSink()
	if err != nil {
		return nil, fmt.Errorf("new sink: %w", err)
	}
	if err := s.Open(f, audio.EncodePCM16(buf)); err != nil {
		s.Close()
		return nil, fmt.Errorf("open sink: %w", err)
	}
	if err := s.Start(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start sink: %w", err)
	}
	return s, nil
}

func closeSink(s sink.Sink) {
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		logger.Warnf("Close sink: %v", err)
	}
}

var (
	_ Component = (*Segment)(nil)
	_ Composite = (*Track)(nil)
	_ Composite = (*Project)(nil)
)
