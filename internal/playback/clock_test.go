package playback

import (
	"sync"
	"testing"
	"time"

	"github.com/newearthmartin/irdin/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTime struct {
	mu  sync.Mutex
	now time.Time
}

func (m *manualTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualTime) Add(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newTestClock(opts ...ClockOption) (*Clock, *manualTime) {
	mt := &manualTime{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]ClockOption{WithNow(mt.Now), WithTickInterval(time.Hour)}, opts...)
	return NewClock("/media/audios/a.mp3", opts...), mt
}

func TestNewClock(t *testing.T) {
	c, _ := newTestClock()
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "/media/audios/a.mp3", c.Source())
	assert.True(t, c.Paused())
	assert.Equal(t, 0.0, c.Position())
}

func TestClockAdvancesWhilePlaying(t *testing.T) {
	c, mt := newTestClock()
	defer c.Close()

	require.NoError(t, c.Play())
	assert.False(t, c.Paused())
	mt.Add(12 * time.Second)
	assert.InDelta(t, 12.0, c.Position(), 1e-9)

	c.Pause()
	mt.Add(time.Minute)
	assert.InDelta(t, 12.0, c.Position(), 1e-9)

	require.NoError(t, c.Play())
	mt.Add(3 * time.Second)
	assert.InDelta(t, 15.0, c.Position(), 1e-9)
}

func TestClockSetPositionEmitsSeeked(t *testing.T) {
	c, mt := newTestClock()
	defer c.Close()

	var events []EventType
	c.Subscribe(EventSeeked, func() { events = append(events, EventSeeked) })
	c.Subscribe(EventTimeUpdate, func() { events = append(events, EventTimeUpdate) })

	c.SetPosition(-5)
	assert.Equal(t, 0.0, c.Position())

	require.NoError(t, c.Play())
	mt.Add(4 * time.Second)
	c.SetPosition(30)
	mt.Add(2 * time.Second)
	assert.InDelta(t, 32.0, c.Position(), 1e-9)
	assert.Equal(t, []EventType{EventSeeked, EventTimeUpdate, EventSeeked, EventTimeUpdate}, events)
}

func TestClockEndsAtDuration(t *testing.T) {
	c, mt := newTestClock(WithDuration(10))

	var ended, paused int
	c.Subscribe(EventEnded, func() { ended++ })
	c.Subscribe(EventPause, func() { paused++ })

	require.NoError(t, c.Play())
	mt.Add(4 * time.Second)
	c.Tick()
	assert.Equal(t, 0, ended)

	mt.Add(20 * time.Second)
	c.Tick()
	assert.Equal(t, 1, ended)
	assert.Equal(t, 1, paused)
	assert.True(t, c.Paused())
	assert.Equal(t, 10.0, c.Position())

	// Playing again from the end restarts.
	require.NoError(t, c.Play())
	assert.Equal(t, 0.0, c.Position())
	c.Close()
}

func TestClockDrivesTrackController(t *testing.T) {
	r := NewRegistry()
	a, mt := newTestClock()
	b, _ := newTestClock()
	defer a.Close()
	defer b.Close()

	ca := NewTrackController("a", a, transcript.Parse(sampleTranscript), r, nil)
	cb := NewTrackController("b", b, transcript.Parse(sampleTranscript), r, nil)
	require.NoError(t, ca.Mount())
	require.NoError(t, cb.Mount())
	defer ca.Unmount()
	defer cb.Unmount()

	require.NoError(t, ca.SeekTo(1))
	mt.Add(16 * time.Second)
	a.Tick()
	assert.Equal(t, 2, ca.ActiveIndex())

	require.NoError(t, cb.SeekTo(0))
	assert.True(t, a.Paused())
	assert.False(t, b.Paused())
	assert.Equal(t, []string{b.ID()}, r.Playing())
}
