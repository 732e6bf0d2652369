package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTickInterval matches the timeupdate cadence of browser media elements.
const DefaultTickInterval = 250 * time.Millisecond

// Clock is a Handle driven by the wall clock instead of decoded audio. It is
// used by headless surfaces that track a listener's position without
// rendering sound.
type Clock struct {
	Emitter

	id       string
	source   string
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	position  float64
	duration  float64
	playing   bool
	startedAt time.Time
	stop      chan struct{}
}

// ClockOption configures a Clock.
type ClockOption func(*Clock)

// WithDuration stops playback when position reaches seconds.
func WithDuration(seconds float64) ClockOption {
	return func(c *Clock) { c.duration = seconds }
}

// WithTickInterval sets how often timeupdate fires while playing.
func WithTickInterval(d time.Duration) ClockOption {
	return func(c *Clock) { c.interval = d }
}

// WithNow replaces the time source.
func WithNow(now func() time.Time) ClockOption {
	return func(c *Clock) { c.now = now }
}

// NewClock creates a paused clock at position zero for the given source URL.
func NewClock(source string, opts ...ClockOption) *Clock {
	c := &Clock{
		id:       uuid.New().String(),
		source:   source,
		interval: DefaultTickInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID implements Handle.
func (c *Clock) ID() string { return c.id }

// Source returns the media URL the clock stands in for.
func (c *Clock) Source() string { return c.source }

// Play starts advancing the position.
func (c *Clock) Play() error {
	c.mu.Lock()
	if c.playing {
		c.mu.Unlock()
		return nil
	}
	if c.duration > 0 && c.position >= c.duration {
		c.position = 0
	}
	c.playing = true
	c.startedAt = c.now()
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go c.run(stop)
	c.Emit(EventPlay)
	return nil
}

// Pause freezes the position.
func (c *Clock) Pause() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	c.position = c.current()
	c.playing = false
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()

	c.Emit(EventPause)
}

// Paused implements Handle.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.playing
}

// Position implements Handle.
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

// SetPosition jumps to seconds, clamped to the known duration.
func (c *Clock) SetPosition(seconds float64) {
	c.mu.Lock()
	if seconds < 0 {
		seconds = 0
	}
	if c.duration > 0 && seconds > c.duration {
		seconds = c.duration
	}
	c.position = seconds
	if c.playing {
		c.startedAt = c.now()
	}
	c.mu.Unlock()

	c.Emit(EventSeeked)
	c.Emit(EventTimeUpdate)
}

// Tick advances the clock once, emitting timeupdate and, at the end of the
// media, pause and ended.
func (c *Clock) Tick() {
	c.mu.Lock()
	if !c.playing {
		c.mu.Unlock()
		return
	}
	ended := false
	if c.duration > 0 && c.current() >= c.duration {
		c.position = c.duration
		c.playing = false
		close(c.stop)
		c.stop = nil
		ended = true
	}
	c.mu.Unlock()

	c.Emit(EventTimeUpdate)
	if ended {
		c.Emit(EventPause)
		c.Emit(EventEnded)
	}
}

// Close stops the clock goroutine.
func (c *Clock) Close() {
	c.Pause()
}

func (c *Clock) run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// current must be called with mu held.
func (c *Clock) current() float64 {
	if !c.playing {
		return c.position
	}
	p := c.position + c.now().Sub(c.startedAt).Seconds()
	if c.duration > 0 && p > c.duration {
		p = c.duration
	}
	return p
}

var _ Handle = (*Clock)(nil)
