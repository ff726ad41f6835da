// Package credentials persists configured tool connections, secrets included.
// Values handed out are copies; callers never hold references into the store.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/harrisonrobin/nexus/pkg/model"
)

var ErrNotFound = errors.New("connection not found")

type Store struct {
	Connections map[string]model.Connection `json:"connections"`
	Path        string                      `json:"-"`
	mu          sync.RWMutex
	dirty       bool
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		Connections: make(map[string]model.Connection),
		Path:        path,
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Store) Load() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.NewDecoder(f).Decode(&s.Connections); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if s.Connections == nil {
		s.Connections = make(map[string]model.Connection)
	}
	return nil
}

// Save writes the store if it changed. The file is created owner-only.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return err
	}

	tmp := s.Path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Connections); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Store) Get(id string) (model.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.Connections[id]
	if !ok {
		return model.Connection{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

// FirstOfKind returns the first connection (by id) configured for kind.
func (s *Store) FirstOfKind(kind model.ToolKind) (model.Connection, error) {
	for _, c := range s.List() {
		if c.Kind == kind {
			return c, nil
		}
	}
	return model.Connection{}, fmt.Errorf("%w: no %s connection", ErrNotFound, kind)
}

// List returns all connections ordered by id.
func (s *Store) List() []model.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Connection, 0, len(s.Connections))
	for _, c := range s.Connections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Put inserts or replaces a connection. New connections get an id and start Pending.
func (s *Store) Put(c model.Connection) model.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = "conn-" + uuid.NewString()[:8]
	}
	if _, exists := s.Connections[c.ID]; !exists && c.Status == "" {
		c.Status = model.StatusPending
	}
	s.Connections[c.ID] = c
	s.dirty = true
	return c
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Connections[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.Connections, id)
	s.dirty = true
	return nil
}

// Update applies fn to the stored connection under the write lock.
func (s *Store) Update(id string, fn func(*model.Connection)) (model.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Connections[id]
	if !ok {
		return model.Connection{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(&c)
	c.ID = id
	s.Connections[id] = c
	s.dirty = true
	return c, nil
}
