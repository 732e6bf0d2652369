package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newearthmartin/irdin/internal/feedback"
	"github.com/newearthmartin/irdin/internal/playback"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/newearthmartin/irdin/internal/textmatch"
	"github.com/newearthmartin/irdin/internal/transcript"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSessionNotFound is returned for unknown or closed session IDs
	ErrSessionNotFound = errors.New("session not found")

	// ErrTrackNotFound is returned for a track ID the session does not have
	ErrTrackNotFound = errors.New("track not found")
)

// HandleFactory creates the media handle for a track.
type HandleFactory func(track search.Track) playback.Handle

// ClockHandles plays every track on a wall-clock driven playback.Clock.
func ClockHandles(track search.Track) playback.Handle {
	return playback.NewClock(track.AudioURL)
}

// Manager handles detail sessions: one open talk with its mounted tracks.
type Manager struct {
	service   search.Service
	registry  *playback.Registry
	bus       *feedback.EventBus
	newHandle HandleFactory
	exportDir string

	sessions map[string]*Session
	mu       sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus publishes session and playback events on bus.
func WithEventBus(bus *feedback.EventBus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithHandleFactory replaces the media handle constructor.
func WithHandleFactory(f HandleFactory) Option {
	return func(m *Manager) { m.newHandle = f }
}

// WithExportDir sets where Export writes files.
func WithExportDir(dir string) Option {
	return func(m *Manager) { m.exportDir = dir }
}

// Session represents one opened talk.
type Session struct {
	ID       string
	Query    string
	Terms    []string
	Item     *search.Item
	OpenedAt time.Time
	Tracks   []*Track
}

// Track is a mounted track of a session.
type Track struct {
	ID         string
	Info       search.Track
	Lines      []transcript.Line
	Controller *playback.TrackController

	unsubs []func()
}

// TrackStatus is a point-in-time view of one track.
type TrackStatus struct {
	TrackID     string  `json:"trackId"`
	Name        string  `json:"name"`
	Playing     bool    `json:"playing"`
	Position    float64 `json:"position"`
	ActiveIndex int     `json:"activeIndex"`
	ActiveLine  string  `json:"activeLine,omitempty"`
	Lines       int     `json:"lines"`
}

// Summary describes an open session.
type Summary struct {
	ID       string    `json:"id"`
	Slug     string    `json:"slug"`
	Title    string    `json:"title"`
	Tracks   int       `json:"tracks"`
	OpenedAt time.Time `json:"openedAt"`
}

// NewManager creates a new session manager
func NewManager(service search.Service, registry *playback.Registry, opts ...Option) *Manager {
	m := &Manager{
		service:   service,
		registry:  registry,
		newHandle: ClockHandles,
		exportDir: "exports",
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open fetches the talk with slug and mounts one controller per track. The
// query is kept so transcript lines can be highlighted.
func (m *Manager) Open(ctx context.Context, slug, query string) (*Session, error) {
	item, err := m.service.Item(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", slug, err)
	}

	s := &Session{
		ID:       uuid.New().String(),
		Query:    query,
		Terms:    textmatch.Terms(query),
		Item:     item,
		OpenedAt: time.Now(),
	}

	for _, info := range item.Tracks {
		t, err := m.mountTrack(s.ID, info)
		if err != nil {
			m.unmountAll(s)
			return nil, err
		}
		s.Tracks = append(s.Tracks, t)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": s.ID,
		"slug":       slug,
		"tracks":     len(s.Tracks),
	}).Info("Session opened")
	m.publishSession(feedback.EventSessionOpened, s)

	return s, nil
}

func (m *Manager) mountTrack(sessionID string, info search.Track) (*Track, error) {
	t := &Track{
		ID:    strconv.FormatInt(info.ID, 10),
		Info:  info,
		Lines: transcript.Parse(info.TranscriptionTimecoded),
	}
	handle := m.newHandle(info)

	onActive := func(trackID string, index int) {
		if m.bus == nil || index < 0 || index >= len(t.Lines) {
			return
		}
		line := t.Lines[index]
		m.bus.PublishActiveLine(sessionID, feedback.ActiveLineData{
			TrackID:   trackID,
			Index:     index,
			Timestamp: line.Timestamp,
			Text:      line.Text,
		})
	}
	t.Controller = playback.NewTrackController(t.ID, handle, t.Lines, m.registry, onActive)
	if err := t.Controller.Mount(); err != nil {
		return nil, fmt.Errorf("error mounting track %s: %w", t.ID, err)
	}

	if m.bus != nil {
		publish := func(eventType feedback.EventType) func() {
			return func() {
				m.bus.PublishPlayback(eventType, sessionID, feedback.PlaybackData{
					TrackID:  t.ID,
					HandleID: handle.ID(),
					Position: handle.Position(),
				})
			}
		}
		t.unsubs = append(t.unsubs,
			handle.Subscribe(playback.EventPlay, publish(feedback.EventPlaybackStarted)),
			handle.Subscribe(playback.EventPause, publish(feedback.EventPlaybackPaused)),
		)
	}
	return t, nil
}

// Close unmounts every track of the session and forgets it.
func (m *Manager) Close(sessionID string) error {
	m.mu.Lock()
	s, exists := m.sessions[sessionID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.unmountAll(s)

	logrus.WithField("session_id", sessionID).Info("Session closed")
	m.publishSession(feedback.EventSessionClosed, s)
	return nil
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil {
			logrus.WithError(err).WithField("session_id", id).Debug("Session already closed")
		}
	}
}

func (m *Manager) unmountAll(s *Session) {
	for _, t := range s.Tracks {
		t.Controller.Handle().Pause()
		for _, unsub := range t.unsubs {
			unsub()
		}
		t.unsubs = nil
		t.Controller.Unmount()
		if closer, ok := t.Controller.Handle().(interface{ Close() }); ok {
			closer.Close()
		}
	}
}

// GetSession retrieves a session by ID
func (m *Manager) GetSession(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	return s, nil
}

// ListSessions returns all open sessions, oldest first.
func (m *Manager) ListSessions() []Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Summary{
			ID:       s.ID,
			Slug:     s.Item.Slug,
			Title:    s.Item.Title,
			Tracks:   len(s.Tracks),
			OpenedAt: s.OpenedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Track returns a track of the session by track ID.
func (m *Manager) Track(sessionID, trackID string) (*Track, error) {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return s.Track(trackID)
}

// Track returns the track with the given ID.
func (s *Session) Track(trackID string) (*Track, error) {
	for _, t := range s.Tracks {
		if t.ID == trackID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("track %s: %w", trackID, ErrTrackNotFound)
}

// Play starts a track; any other registered track is paused.
func (m *Manager) Play(sessionID, trackID string) error {
	t, err := m.Track(sessionID, trackID)
	if err != nil {
		return err
	}
	return t.Controller.Play()
}

// Pause pauses a track.
func (m *Manager) Pause(sessionID, trackID string) error {
	t, err := m.Track(sessionID, trackID)
	if err != nil {
		return err
	}
	t.Controller.Handle().Pause()
	return nil
}

// SeekLine jumps a track to the start of a transcript line and plays it.
func (m *Manager) SeekLine(sessionID, trackID string, index int) error {
	t, err := m.Track(sessionID, trackID)
	if err != nil {
		return err
	}
	return t.Controller.SeekTo(index)
}

// Status reports every track of the session.
func (m *Manager) Status(sessionID string) ([]TrackStatus, error) {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	out := make([]TrackStatus, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		t.Controller.Sync()
		h := t.Controller.Handle()
		st := TrackStatus{
			TrackID:     t.ID,
			Name:        t.Info.Name,
			Playing:     !h.Paused(),
			Position:    h.Position(),
			ActiveIndex: t.Controller.ActiveIndex(),
			Lines:       len(t.Lines),
		}
		if st.ActiveIndex >= 0 && st.ActiveIndex < len(t.Lines) {
			st.ActiveLine = t.Lines[st.ActiveIndex].Text
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *Manager) publishSession(eventType feedback.EventType, s *Session) {
	if m.bus == nil {
		return
	}
	m.bus.PublishSession(eventType, s.ID, feedback.SessionData{
		Slug:   s.Item.Slug,
		Title:  s.Item.Title,
		Tracks: len(s.Tracks),
	})
}

// ExportedLine is one transcript line in an export file.
type ExportedLine struct {
	Timestamp   string `json:"timestamp,omitempty"`
	Seconds     *int   `json:"seconds,omitempty"`
	Text        string `json:"text"`
	Highlighted string `json:"highlighted"`
}

// ExportedTrack is one track in an export file.
type ExportedTrack struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	AudioURL string         `json:"audioUrl"`
	Lines    []ExportedLine `json:"lines"`
}

// Export is the JSON document written by ExportSession.
type Export struct {
	SessionID string          `json:"sessionId"`
	Slug      string          `json:"slug"`
	Title     string          `json:"title"`
	Authors   []string        `json:"authors"`
	Query     string          `json:"query,omitempty"`
	OpenedAt  time.Time       `json:"openedAt"`
	Tracks    []ExportedTrack `json:"tracks"`
}

// BuildExport renders the session's transcripts with query matches marked.
func (s *Session) BuildExport() Export {
	exp := Export{
		SessionID: s.ID,
		Slug:      s.Item.Slug,
		Title:     s.Item.Title,
		Authors:   s.Item.Authors,
		Query:     s.Query,
		OpenedAt:  s.OpenedAt,
		Tracks:    make([]ExportedTrack, 0, len(s.Tracks)),
	}
	for _, t := range s.Tracks {
		et := ExportedTrack{
			ID:       t.ID,
			Name:     t.Info.Name,
			AudioURL: t.Info.AudioURL,
			Lines:    make([]ExportedLine, 0, len(t.Lines)),
		}
		for _, l := range t.Lines {
			et.Lines = append(et.Lines, ExportedLine{
				Timestamp:   l.Timestamp,
				Seconds:     l.Seconds,
				Text:        l.Text,
				Highlighted: textmatch.Markdown(l.Text, s.Terms),
			})
		}
		exp.Tracks = append(exp.Tracks, et)
	}
	return exp
}

// ExportSession exports a session to JSON file
func (m *Manager) ExportSession(sessionID string) (string, error) {
	s, err := m.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	// #nosec G301 - Export directory needs to be readable for serving files
	if err := os.MkdirAll(m.exportDir, 0750); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	filename := fmt.Sprintf("session_%s_%s_%s.json",
		filepath.Base(s.Item.Slug), s.OpenedAt.Format("20060102_150405"), s.ID[:8])
	path := filepath.Join(m.exportDir, filename)

	data, err := json.MarshalIndent(s.BuildExport(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling session: %w", err)
	}

	// #nosec G306 - Export files need to be readable by the user
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("error writing file: %w", err)
	}

	return path, nil
}
