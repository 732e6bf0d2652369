// Package playback keeps transcripts in step with audio handles and enforces
// that at most one registered handle plays at a time.
package playback

import (
	"sync"
)

// EventType names a media event emitted by a Handle.
type EventType string

const (
	EventPlay       EventType = "play"
	EventPause      EventType = "pause"
	EventTimeUpdate EventType = "timeupdate"
	EventSeeked     EventType = "seeked"
	EventEnded      EventType = "ended"
)

// Handle is the capability set the controllers need from a media element.
// Implementations must not hold internal locks while invoking listeners.
type Handle interface {
	// ID identifies the handle inside a Registry.
	ID() string
	Play() error
	Pause()
	Paused() bool
	// Position is the playback position in seconds.
	Position() float64
	SetPosition(seconds float64)
	// Subscribe registers fn for event and returns its unsubscribe function.
	Subscribe(event EventType, fn func()) (unsubscribe func())
}

type listener struct {
	id int
	fn func()
}

// Emitter is a small listener list that Handle implementations embed.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[EventType][]listener
}

// Subscribe adds fn to the listeners of event.
func (e *Emitter) Subscribe(event EventType, fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[EventType][]listener)
	}
	e.nextID++
	id := e.nextID
	e.listeners[event] = append(e.listeners[event], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { e.unsubscribe(event, id) })
	}
}

func (e *Emitter) unsubscribe(event EventType, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[event]
	for i, l := range ls {
		if l.id == id {
			e.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// Emit calls every listener of event in subscription order.
func (e *Emitter) Emit(event EventType) {
	e.mu.RLock()
	ls := make([]listener, len(e.listeners[event]))
	copy(ls, e.listeners[event])
	e.mu.RUnlock()

	for _, l := range ls {
		l.fn()
	}
}

// Listeners returns how many listeners event has.
func (e *Emitter) Listeners(event EventType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[event])
}
