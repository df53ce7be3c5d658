package sink

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/logging"
)

var logger = logging.NewLogger("sdt/sink")

// player is the subset of *oto.Player the sink drives.
type player interface {
	Play()
	Pause()
	IsPlaying() bool
	BufferedSize() int
	Seek(offset int64, whence int) (int64, error)
}

// OtoDevice plays through the system sound card. oto allows one context per
// process, so it is created lazily on the first sink and reused.
type OtoDevice struct {
	format audio.Format

	once sync.Once
	ctx  *oto.Context
	err  error
}

// NewOtoDevice returns a device rendering in f. Only 16-bit stereo is used.
func NewOtoDevice(f audio.Format) *OtoDevice {
	return &OtoDevice{format: f}
}

func (d *OtoDevice) init() error {
	d.once.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   int(d.format.SampleRate),
			ChannelCount: d.format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			d.err = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		d.ctx = ctx
		logger.Infof("Audio device ready: %s", d.format)
	})
	return d.err
}

// NewSink implements Device.
func (d *OtoDevice) NewSink() (Sink, error) {
	if err := d.init(); err != nil {
		return nil, err
	}
	return newPlayerSink(d.format, func(r io.ReadSeeker) player {
		return d.ctx.NewPlayer(r)
	}), nil
}

// playerSink adapts an oto-style pull player to Sink.
type playerSink struct {
	format    audio.Format
	newPlayer func(io.ReadSeeker) player

	mu     sync.Mutex
	reader *pcmReader
	p      player
	done   *doneSignal
	stopCh chan struct{}
}

func newPlayerSink(f audio.Format, newPlayer func(io.ReadSeeker) player) *playerSink {
	return &playerSink{format: f, newPlayer: newPlayer, done: newDoneSignal()}
}

func (s *playerSink) Open(f audio.Format, pcm []byte) error {
	if f.SampleRate != s.format.SampleRate || f.Channels != s.format.Channels {
		return fmt.Errorf("%w: got %s, device %s", ErrFormatMismatch, f, s.format)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reader = &pcmReader{data: pcm}
	s.p = s.newPlayer(s.reader)
	return nil
}

func (s *playerSink) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return ErrNotOpen
	}
	if s.stopCh != nil {
		return nil
	}
	s.stopCh = make(chan struct{})
	s.p.Play()
	go s.watch(s.p, s.reader, s.stopCh)
	return nil
}

// watch fires Done once the player has drained all data.
func (s *playerSink) watch(p player, r *pcmReader, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if !p.IsPlaying() && r.remaining() == 0 && p.BufferedSize() == 0 {
			s.done.fire()
			return
		}
	}
}

func (s *playerSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return ErrNotOpen
	}
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	s.p.Pause()
	return nil
}

func (s *playerSink) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// oto releases a paused player once it is unreachable.
	s.p = nil
	return nil
}

func (s *playerSink) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return 0
	}
	consumed := s.reader.off.Load() - int64(s.p.BufferedSize())
	fb := int64(s.format.FrameBytes())
	return bytesToDuration(s.format, consumed/fb*fb)
}

func (s *playerSink) Length() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return 0
	}
	return bytesToDuration(s.format, int64(len(s.reader.data)))
}

func (s *playerSink) Seek(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.p == nil {
		return ErrNotOpen
	}
	if _, err := s.p.Seek(durationToBytes(s.format, d), io.SeekStart); err != nil {
		return fmt.Errorf("seek player: %w", err)
	}
	return nil
}

func (s *playerSink) Done() <-chan struct{} {
	return s.done.ch
}
