package playback

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry tracks the mounted handles that share one output. It never owns
// the handles: controllers add themselves on mount and remove themselves on
// unmount.
type Registry struct {
	mu      sync.RWMutex
	members map[string]member
}

type member struct {
	handle     Handle
	controller *TrackController
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]member),
	}
}

// Add registers handle, replacing any previous entry with the same ID.
func (r *Registry) Add(handle Handle, controller *TrackController) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[handle.ID()] = member{handle: handle, controller: controller}
	logrus.WithFields(logrus.Fields{
		"handle_id": handle.ID(),
		"members":   len(r.members),
	}).Debug("Handle registered")
}

// Remove deregisters handle. Removing an unknown handle is a no-op.
func (r *Registry) Remove(handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[handle.ID()]; !ok {
		return
	}
	delete(r.members, handle.ID())
	logrus.WithFields(logrus.Fields{
		"handle_id": handle.ID(),
		"members":   len(r.members),
	}).Debug("Handle deregistered")
}

// PauseOthers pauses every registered handle other than current that is not
// already paused, and returns the IDs it paused.
func (r *Registry) PauseOthers(current Handle) []string {
	r.mu.RLock()
	others := make([]Handle, 0, len(r.members))
	for id, m := range r.members {
		if id == current.ID() {
			continue
		}
		others = append(others, m.handle)
	}
	r.mu.RUnlock()

	var paused []string
	for _, h := range others {
		if h.Paused() {
			continue
		}
		h.Pause()
		paused = append(paused, h.ID())
	}
	if len(paused) > 0 {
		sort.Strings(paused)
		logrus.WithFields(logrus.Fields{
			"handle_id": current.ID(),
			"paused":    paused,
		}).Debug("Paused other players")
	}
	return paused
}

// Lookup returns the controller registered for a handle ID.
func (r *Registry) Lookup(handleID string) (*TrackController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[handleID]
	return m.controller, ok
}

// Playing returns the IDs of registered handles that are not paused.
func (r *Registry) Playing() []string {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.members))
	for _, m := range r.members {
		handles = append(handles, m.handle)
	}
	r.mu.RUnlock()

	var ids []string
	for _, h := range handles {
		if !h.Paused() {
			ids = append(ids, h.ID())
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
