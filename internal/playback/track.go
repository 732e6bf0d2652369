package playback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/newearthmartin/irdin/internal/transcript"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotMounted is returned when a controller is used outside its mount scope
	ErrNotMounted = errors.New("track controller is not mounted")

	// ErrNoRegistry is returned when mounting without a registry
	ErrNoRegistry = errors.New("track controller has no registry")

	// ErrLineOutOfRange is returned when seeking to a line that does not exist
	ErrLineOutOfRange = errors.New("transcript line out of range")
)

// ActiveLineFunc is called whenever a track's active line changes.
type ActiveLineFunc func(trackID string, index int)

// TrackController binds one handle to its parsed transcript.
type TrackController struct {
	// syncMu orders Sync calls so the stored index and the change callbacks
	// always follow the latest position read.
	syncMu sync.Mutex

	mu       sync.Mutex
	trackID  string
	handle   Handle
	lines    []transcript.Line
	registry *Registry
	onActive ActiveLineFunc

	active  int
	mounted bool
	unsubs  []func()
	logger  *logrus.Entry
}

// NewTrackController creates an unmounted controller with no active line.
func NewTrackController(trackID string, handle Handle, lines []transcript.Line, registry *Registry, onActive ActiveLineFunc) *TrackController {
	return &TrackController{
		trackID:  trackID,
		handle:   handle,
		lines:    lines,
		registry: registry,
		onActive: onActive,
		active:   -1,
		logger: logrus.WithFields(logrus.Fields{
			"track_id":  trackID,
			"handle_id": handle.ID(),
		}),
	}
}

// Mount registers the handle and subscribes to its media events. Every
// successful Mount must be paired with Unmount.
func (c *TrackController) Mount() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mounted {
		return nil
	}
	if c.registry == nil {
		return ErrNoRegistry
	}

	c.registry.Add(c.handle, c)
	c.unsubs = append(c.unsubs,
		c.handle.Subscribe(EventPlay, c.handlePlay),
		c.handle.Subscribe(EventTimeUpdate, c.Sync),
		c.handle.Subscribe(EventSeeked, c.Sync),
	)
	c.mounted = true
	c.logger.WithField("lines", len(c.lines)).Debug("Track mounted")
	return nil
}

// Unmount unsubscribes from the handle and deregisters it. It is safe to call
// more than once.
func (c *TrackController) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		return
	}
	c.mounted = false
	defer c.registry.Remove(c.handle)

	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.logger.Debug("Track unmounted")
}

// Sync recomputes the active line from the handle position. The change
// callback only fires when the index actually moves.
func (c *TrackController) Sync() {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	idx := transcript.ActiveIndex(c.lines, c.handle.Position())

	c.mu.Lock()
	if idx == c.active {
		c.mu.Unlock()
		return
	}
	c.active = idx
	onActive := c.onActive
	c.mu.Unlock()

	if onActive != nil {
		onActive(c.trackID, idx)
	}
}

// SeekTo moves playback to the line at index. Unanchored lines are ignored.
func (c *TrackController) SeekTo(index int) error {
	if index < 0 || index >= len(c.lines) {
		return fmt.Errorf("%w: %d of %d", ErrLineOutOfRange, index, len(c.lines))
	}
	return c.SeekToLine(c.lines[index])
}

// SeekToLine sets the handle position to the line's time and starts playback
// if the handle is paused.
func (c *TrackController) SeekToLine(line transcript.Line) error {
	if !c.Mounted() {
		return ErrNotMounted
	}
	if !line.Anchored() {
		return nil
	}

	c.handle.SetPosition(float64(*line.Seconds))
	if c.handle.Paused() {
		return c.Play()
	}
	return nil
}

// Play starts the bound handle. A handle whose controller is unmounted is
// outside the registry, so it is never left playing.
func (c *TrackController) Play() error {
	if !c.Mounted() {
		return ErrNotMounted
	}
	if err := c.handle.Play(); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}
	if !c.Mounted() {
		c.handle.Pause()
		return ErrNotMounted
	}
	return nil
}

func (c *TrackController) handlePlay() {
	c.registry.PauseOthers(c.handle)
}

// ActiveIndex returns the current active line, -1 when none.
func (c *TrackController) ActiveIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Mounted reports whether the controller is inside its mount scope.
func (c *TrackController) Mounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mounted
}

// TrackID returns the bound track identifier.
func (c *TrackController) TrackID() string {
	return c.trackID
}

// Handle returns the bound media handle.
func (c *TrackController) Handle() Handle {
	return c.handle
}

// Lines returns the parsed transcript.
func (c *TrackController) Lines() []transcript.Line {
	return c.lines
}
