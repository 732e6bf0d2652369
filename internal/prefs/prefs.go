// Package prefs is a small file-backed key/value store for user preferences.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/newearthmartin/irdin/internal/search"
	"github.com/sirupsen/logrus"
)

// KeySearchFields holds the selected search fields as a JSON array of ids.
const KeySearchFields = "searchFields"

// ErrNoValue is returned by Get for an absent key.
var ErrNoValue = errors.New("no value for key")

// Store keeps string values keyed by name in a single JSON file.
type Store struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// Open loads the store at path. A missing file yields an empty store; an
// unreadable one is logged and treated as empty.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]string)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading preferences: %w", err)
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Ignoring corrupt preferences file")
		s.values = make(map[string]string)
	}
	return s, nil
}

// Memory returns a store that is never written to disk.
func Memory() *Store {
	s, _ := Open("")
	return s
}

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNoValue
	}
	return v, nil
}

// Set stores value under key and flushes the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flushLocked()
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("error creating preferences directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("error writing preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("error replacing preferences: %w", err)
	}
	return nil
}

// LoadFields returns the persisted field selection, or every field when none
// is stored or the stored value cannot be parsed.
func (s *Store) LoadFields() []search.Field {
	raw, err := s.Get(KeySearchFields)
	if err != nil {
		return append([]search.Field(nil), search.AllFields...)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		logrus.WithError(err).Warn("Invalid stored search fields, using all fields")
		return append([]search.Field(nil), search.AllFields...)
	}
	fields, err := search.ParseFields(names)
	if err != nil {
		logrus.WithError(err).Warn("Invalid stored search fields, using all fields")
		return append([]search.Field(nil), search.AllFields...)
	}
	return fields
}

// SaveFields implements search.FieldStore.
func (s *Store) SaveFields(fields []search.Field) error {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, string(f))
	}
	data, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("error marshaling search fields: %w", err)
	}
	return s.Set(KeySearchFields, string(data))
}

var _ search.FieldStore = (*Store)(nil)
