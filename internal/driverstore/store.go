// Package driverstore persists the drivers owed a restoration after a suspend.
// Presence of an identity in the file means its original driver has not been
// reinstalled yet.
package driverstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

var ErrCorrupt = errors.New("driver store is corrupt")

type Store struct {
	path string

	mu      sync.Mutex
	drivers map[string]string // ID -> driver
}

func New(path string) *Store {
	return &Store{
		path:    path,
		drivers: make(map[string]string),
	}
}

func (s *Store) Path() string { return s.path }

// Load replaces the in-memory map with the file content. A missing file is an
// empty store.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.mu.Lock()
		s.drivers = make(map[string]string)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read driver store: %w", err)
	}

	drivers := make(map[string]string)
	if len(data) > 0 {
		raw := make(map[string]string)
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		for id, drv := range raw {
			drivers[controller.NormalizeID(id)] = drv
		}
	}

	s.mu.Lock()
	s.drivers = drivers
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the stored map.
func (s *Store) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.drivers))
	for id, drv := range s.drivers {
		out[id] = drv
	}
	return out
}

// IDs returns the stored identities in a stable order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.drivers))
	for id := range s.drivers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Get returns the stored driver for id, or def when there is none.
func (s *Store) Get(id, def string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if drv, ok := s.drivers[controller.NormalizeID(id)]; ok && drv != "" {
		return drv
	}
	return def
}

func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.drivers[controller.NormalizeID(id)]
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drivers)
}

func (s *Store) Put(id, driver string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drivers[controller.NormalizeID(id)] = driver
	return s.saveLocked()
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = controller.NormalizeID(id)
	if _, ok := s.drivers[id]; !ok {
		return nil
	}
	delete(s.drivers, id)
	return s.saveLocked()
}

// saveLocked writes through a temp file and a rename so a crash never leaves
// a half-written store behind.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.drivers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode driver store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create driver store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".drivers-*.json")
	if err != nil {
		return fmt.Errorf("create temp driver store: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp driver store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp driver store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp driver store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace driver store: %w", err)
	}
	return nil
}
