package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/ivannakotyk/SDT/internal/audio"
	"github.com/ivannakotyk/SDT/internal/model"
	"github.com/ivannakotyk/SDT/internal/sink/sinktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rate makes one sample a millisecond.
var rate = audio.NewFormat(1000)

func project(t *testing.T, tracks map[string]int) *model.Project {
	t.Helper()
	p := model.NewProject("Demo")
	for name, n := range tracks {
		tr := model.NewTrack(name)
		if n > 0 {
			b := audio.NewBuffer(n)
			for i := range b.Left {
				b.Left[i] = 0.25
				b.Right[i] = 0.25
			}
			seg, err := model.NewSegment(name, rate, b)
			require.NoError(t, err)
			require.NoError(t, tr.Add(seg))
		}
		require.NoError(t, p.Add(tr))
	}
	return p
}

func newTestController(t *testing.T, tracks map[string]int) (*Controller, *sinktest.Device) {
	t.Helper()
	dev := &sinktest.Device{}
	return NewController(project(t, tracks), dev, 5*time.Millisecond, time.Millisecond), dev
}

// waitFor reads events until match returns true.
func waitFor(t *testing.T, c *Controller, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for playback event")
		}
	}
}

func drain(c *Controller) {
	for {
		select {
		case <-c.Events():
		default:
			return
		}
	}
}

// --- Start ---

func TestStartTrack(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.Start("A"))
	defer c.Stop()

	assert.Equal(t, Playing, c.State())
	assert.Equal(t, "A", c.Target())
	s := dev.Last()
	require.NotNil(t, s)
	assert.True(t, s.Playing())
	assert.Len(t, s.PCM(), 1000*4)
	assert.Equal(t, rate, s.Format())

	s.SetPosition(500 * time.Millisecond)
	ev := waitFor(t, c, func(ev Event) bool { return ev.Fraction == 0.5 })
	assert.Equal(t, Progress, ev.Kind)
	assert.Equal(t, "A", ev.Target)
	assert.Equal(t, time.Second, ev.Length)
}

func TestStartProjectMix(t *testing.T) {
	p := model.NewProject("Demo")
	dev := &sinktest.Device{}
	tr := model.NewTrack("A")
	seg, err := model.NewSegment("a", audio.StandardFormat, audio.NewBuffer(441))
	require.NoError(t, err)
	require.NoError(t, tr.Add(seg))
	require.NoError(t, p.Add(tr))

	c := NewController(p, dev, 5*time.Millisecond, 0)
	require.NoError(t, c.Start(""))
	defer c.Stop()
	assert.Equal(t, "Demo", c.Target())
	assert.Equal(t, audio.StandardFormat, dev.Last().Format())
	assert.Equal(t, 10*time.Millisecond, dev.Last().Length())
}

func TestStartNothingToPlay(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"Empty": 0})
	assert.ErrorIs(t, c.Start("Empty"), ErrNothingToPlay)
	assert.ErrorIs(t, c.Start(""), ErrNothingToPlay)
	assert.ErrorIs(t, c.Start("Missing"), ErrTrackNotFound)
	assert.Equal(t, 0, dev.Count())
	assert.Equal(t, Idle, c.State())
}

func TestStartDeviceError(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 100})
	dev.Err = errors.New("device busy")
	assert.ErrorContains(t, c.Start("A"), "device busy")
	assert.Equal(t, Idle, c.State())
}

func TestStartClosesPreviousSink(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 100, "B": 200})
	require.NoError(t, c.Start("A"))
	first := dev.Last()
	require.NoError(t, c.Start("B"))
	defer c.Stop()

	assert.True(t, first.Closed())
	assert.Equal(t, 1, dev.Open())
	assert.Equal(t, "B", c.Target())
}

// --- Stop / resume ---

func TestStopThenResume(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.Start("A"))
	dev.Last().SetPosition(300 * time.Millisecond)

	c.Stop()
	assert.Equal(t, Paused, c.State())
	assert.Equal(t, 300*time.Millisecond, c.Position())
	assert.True(t, dev.Last().Closed())

	require.NoError(t, c.Start("A"))
	defer c.Stop()
	assert.Equal(t, 300*time.Millisecond, dev.Last().Position(), "resume seeks to the paused offset")
	assert.Equal(t, Playing, c.State())
}

func TestStopAtEndResetsOffset(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.Start("A"))
	dev.Last().SetPosition(time.Second - 500*time.Microsecond)

	c.Stop()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, time.Duration(0), c.Position())
}

func TestStopIdleIsNoop(t *testing.T) {
	c, _ := newTestController(t, map[string]int{"A": 10})
	c.Stop()
	c.Stop()
	assert.Equal(t, Idle, c.State())
}

func TestStartAt(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.StartAt("A", 700*time.Millisecond))
	assert.Equal(t, 700*time.Millisecond, dev.Last().Position())

	require.NoError(t, c.StartAt("A", 5*time.Second))
	assert.Equal(t, time.Duration(0), dev.Last().Position(), "out of range starts from 0")
	c.Stop()
}

// --- Natural end ---

func TestFinishedOnce(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.Start("A"))
	drain(c)
	s := dev.Last()
	s.Finish()

	ev := waitFor(t, c, func(ev Event) bool { return ev.Kind == Finished })
	assert.Equal(t, "A", ev.Target)
	assert.Equal(t, 1.0, ev.Fraction)

	assert.Eventually(t, func() bool { return c.State() == Idle }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Closed())
	assert.Equal(t, time.Duration(0), c.Position())

	// no second completion from the other end-of-stream path
	time.Sleep(30 * time.Millisecond)
	for {
		select {
		case ev := <-c.Events():
			assert.NotEqual(t, Finished, ev.Kind)
			continue
		default:
		}
		break
	}
}

func TestLateDoneAfterStopIsIgnored(t *testing.T) {
	c, dev := newTestController(t, map[string]int{"A": 1000})
	require.NoError(t, c.Start("A"))
	s := dev.Last()
	s.SetPosition(200 * time.Millisecond)
	c.Stop()
	drain(c)

	s.Finish()
	time.Sleep(30 * time.Millisecond)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == Finished {
				t.Fatalf("unexpected completion after stop: %+v", ev)
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, Paused, c.State())
	assert.Equal(t, 200*time.Millisecond, c.Position())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "finished", Finished.String())
}
