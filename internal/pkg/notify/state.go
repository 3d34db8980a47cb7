package notify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// State remembers the last marker (a date or month) each notification key was
// sent for. Claim reserves a key before sending so concurrent triggers cannot
// send twice; the reservation ends with Commit on success or Release on
// failure.
type State struct {
	mu       sync.Mutex
	path     string
	last     map[string]string
	inflight map[string]string
}

// OpenState loads the markers stored at path. An empty path keeps the state
// in memory only.
func OpenState(path string) (*State, error) {
	s := &State{
		path:     path,
		last:     make(map[string]string),
		inflight: make(map[string]string),
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.last); err != nil {
		return nil, fmt.Errorf("notification state %s: %w", path, err)
	}
	if s.last == nil {
		s.last = make(map[string]string)
	}
	return s, nil
}

func (s *State) LastSent(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[key]
}

var (
	ErrAlreadySent = errors.New("already sent")
	ErrInProgress  = errors.New("send in progress")
)

// Claim reserves key for marker. It fails with ErrInProgress while another
// send for key is running and, unless force is set, with ErrAlreadySent when
// marker was sent before.
func (s *State) Claim(key, marker string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return fmt.Errorf("%w: %s", ErrInProgress, key)
	}
	if !force && s.last[key] == marker {
		return fmt.Errorf("%w: %s for %s", ErrAlreadySent, key, marker)
	}
	s.inflight[key] = marker
	return nil
}

func (s *State) Commit(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marker, ok := s.inflight[key]
	if !ok {
		return fmt.Errorf("no claim for %q", key)
	}
	delete(s.inflight, key)
	s.last[key] = marker
	return s.save()
}

func (s *State) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

func (s *State) save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.last)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
