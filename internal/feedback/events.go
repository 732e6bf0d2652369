package feedback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names an event, dot separated by area.
type EventType string

const (
	// Search events
	EventSearchSettled EventType = "search.settled"
	EventSearchFailed  EventType = "search.failed"

	// Session events
	EventSessionOpened EventType = "session.opened"
	EventSessionClosed EventType = "session.closed"

	// Playback events
	EventPlaybackStarted   EventType = "playback.started"
	EventPlaybackPaused    EventType = "playback.paused"
	EventActiveLineChanged EventType = "playback.line.changed"
)

// Event is one search, session or playback occurrence. SessionID is empty
// for search events.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      any
}

// SearchSettledData contains data for search settled events
type SearchSettledData struct {
	Query string
	Total int
	Page  int
	Pages int
}

// SearchFailedData contains data for search failed events
type SearchFailedData struct {
	Query string
	Error string
}

// SessionData contains data for session opened and closed events
type SessionData struct {
	Slug   string
	Title  string
	Tracks int
}

// PlaybackData contains data for playback started and paused events
type PlaybackData struct {
	TrackID  string
	HandleID string
	Position float64
}

// ActiveLineData contains data for active line change events
type ActiveLineData struct {
	TrackID   string
	Index     int
	Timestamp string
	Text      string
}

// EventHandler is a function that handles events
type EventHandler func(event Event)

// anyEvent marks a subscription that receives every event type.
const anyEvent EventType = ""

type subscription struct {
	id        uint64
	eventType EventType
	handler   EventHandler
}

// Stats counts the events a bus has seen.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
}

// EventBus fans events out to subscribers from a single goroutine, so every
// handler observes events in publish order.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	closed bool

	queue chan Event
	done  chan struct{}

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewEventBus starts a bus that queues up to bufferSize undelivered events.
func NewEventBus(bufferSize int) *EventBus {
	eb := &EventBus{
		queue: make(chan Event, bufferSize),
		done:  make(chan struct{}),
	}
	go eb.run()
	return eb
}

// Subscribe registers a handler for specific event types
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	return eb.add(eventType, handler)
}

// SubscribeAll registers a handler for all events
func (eb *EventBus) SubscribeAll(handler EventHandler) func() {
	return eb.add(anyEvent, handler)
}

func (eb *EventBus) add(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	eb.subs = append(eb.subs, subscription{id: id, eventType: eventType, handler: handler})
	eb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { eb.remove(id) })
	}
}

func (eb *EventBus) remove(id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := make([]subscription, 0, len(eb.subs))
	for _, sub := range eb.subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	eb.subs = kept
}

// Publish queues an event for delivery. Events published after Stop or while
// the queue is full are dropped.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.closed {
		return
	}
	eb.published.Add(1)

	select {
	case eb.queue <- event:
	default:
		eb.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"event_type": event.Type,
			"session_id": event.SessionID,
		}).Warn("Event dropped, queue full")
	}
}

func (eb *EventBus) run() {
	defer close(eb.done)
	for event := range eb.queue {
		eb.deliver(event)
	}
}

// deliver calls every matching handler in subscription order.
func (eb *EventBus) deliver(event Event) {
	eb.mu.RLock()
	var targets []EventHandler
	for _, sub := range eb.subs {
		if sub.eventType == anyEvent || sub.eventType == event.Type {
			targets = append(targets, sub.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range targets {
		if eb.invoke(h, event) {
			eb.delivered.Add(1)
		}
	}
}

func (eb *EventBus) invoke(h EventHandler, event Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"event_type": event.Type,
				"panic":      r,
			}).Error("Event handler panic")
			ok = false
		}
	}()
	h(event)
	return true
}

// Stop delivers the events already queued, then shuts the bus down. It is
// safe to call more than once.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.closed {
		eb.mu.Unlock()
		<-eb.done
		return
	}
	eb.closed = true
	close(eb.queue)
	eb.mu.Unlock()

	<-eb.done
}

// Stats returns a snapshot of the bus counters.
func (eb *EventBus) Stats() Stats {
	return Stats{
		Published: eb.published.Load(),
		Delivered: eb.delivered.Load(),
		Dropped:   eb.dropped.Load(),
	}
}

// Helper functions for common event publishing

// PublishSearchSettled publishes a search settled event
func (eb *EventBus) PublishSearchSettled(data SearchSettledData) {
	eb.Publish(Event{Type: EventSearchSettled, Data: data})
}

// PublishSearchFailed publishes a search failed event
func (eb *EventBus) PublishSearchFailed(data SearchFailedData) {
	eb.Publish(Event{Type: EventSearchFailed, Data: data})
}

// PublishSession publishes a session opened or closed event
func (eb *EventBus) PublishSession(eventType EventType, sessionID string, data SessionData) {
	eb.Publish(Event{Type: eventType, SessionID: sessionID, Data: data})
}

// PublishPlayback publishes a playback started or paused event
func (eb *EventBus) PublishPlayback(eventType EventType, sessionID string, data PlaybackData) {
	eb.Publish(Event{Type: eventType, SessionID: sessionID, Data: data})
}

// PublishActiveLine publishes an active line change event
func (eb *EventBus) PublishActiveLine(sessionID string, data ActiveLineData) {
	eb.Publish(Event{Type: EventActiveLineChanged, SessionID: sessionID, Data: data})
}
