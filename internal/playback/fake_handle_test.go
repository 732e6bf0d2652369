package playback

import (
	"errors"
	"sync"
)

// fakeHandle is a synchronous Handle for tests.
type fakeHandle struct {
	Emitter

	id string

	mu       sync.Mutex
	paused   bool
	position float64
	playErr  error
	plays    int
	pauses   int
}

func newFakeHandle(id string) *fakeHandle {
	return &fakeHandle{id: id, paused: true}
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Play() error {
	h.mu.Lock()
	if h.playErr != nil {
		err := h.playErr
		h.mu.Unlock()
		return err
	}
	h.paused = false
	h.plays++
	h.mu.Unlock()

	h.Emit(EventPlay)
	return nil
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.pauses++
	h.mu.Unlock()

	h.Emit(EventPause)
}

func (h *fakeHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *fakeHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

func (h *fakeHandle) SetPosition(seconds float64) {
	h.mu.Lock()
	h.position = seconds
	h.mu.Unlock()

	h.Emit(EventSeeked)
}

// advance moves the position like a media clock would and fires timeupdate.
func (h *fakeHandle) advance(seconds float64) {
	h.mu.Lock()
	h.position = seconds
	h.mu.Unlock()

	h.Emit(EventTimeUpdate)
}

func (h *fakeHandle) pauseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauses
}

var errAutoplayBlocked = errors.New("autoplay blocked")

var _ Handle = (*fakeHandle)(nil)
