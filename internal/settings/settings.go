// Package settings is the small YAML-backed key/value store the manager
// reads its policy flags from and persists the last target into.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/padherd/internal/logger"
)

const (
	VibrationStrength     = "vibration_strength"
	ControllerManagement  = "controller_management"
	SensorSelection       = "sensor_selection"
	EmbeddedExclusiveMode = "embedded_exclusive_mode"
	CloakOnConnect        = "cloak_on_connect"
	VibrateOnConnect      = "vibrate_on_connect"
	UncloakOnClose        = "uncloak_on_close"
	LastTarget            = "last_target"
	HIDMode               = "hid_mode"
	RestoreLastTarget     = "restore_last_target"
)

// Defaults applies to keys absent from the file.
var Defaults = map[string]any{
	VibrationStrength:     100,
	ControllerManagement:  false,
	SensorSelection:       0,
	EmbeddedExclusiveMode: false,
	CloakOnConnect:        true,
	VibrateOnConnect:      true,
	UncloakOnClose:        true,
	LastTarget:            "",
	HIDMode:               "xbox360",
	RestoreLastTarget:     false,
}

// ChangeFunc receives every successful Set.
type ChangeFunc func(key string, value any)

type Store struct {
	path string
	log  logger.Logger

	mu     sync.RWMutex
	values map[string]any

	subMu  sync.Mutex
	subs   map[int]ChangeFunc
	nextID int
}

// Open loads path, creating nothing until the first Set. A missing file
// yields the defaults.
func Open(path string, log logger.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		log:    log.With(logger.Component("settings")),
		values: maps.Clone(Defaults),
		subs:   make(map[int]ChangeFunc),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	file, err := parse(data)
	if err != nil {
		return nil, err
	}
	maps.Copy(s.values, file)

	return s, nil
}

// ErrNotMapping is returned for a settings document that is not a key/value map.
var ErrNotMapping = errors.New("settings yaml is not a mapping")

func parse(data []byte) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings yaml: %w", err)
	}
	// empty file
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w (line %d)", ErrNotMapping, root.Line)
	}

	var file map[string]any
	if err := root.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode settings yaml: %w", err)
	}
	return file, nil
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *Store) Bool(key string) bool {
	v, _ := s.Get(key)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

func (s *Store) Int(key string) int {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, _ := strconv.Atoi(n)
		return parsed
	}
	return 0
}

func (s *Store) String(key string) string {
	v, _ := s.Get(key)
	switch str := v.(type) {
	case string:
		return str
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// Set stores value, rewrites the file and notifies subscribers.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	s.values[key] = value
	snapshot := maps.Clone(s.values)
	s.mu.Unlock()

	if err := s.save(snapshot); err != nil {
		return err
	}

	s.subMu.Lock()
	subs := make([]ChangeFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(key, value)
	}
	return nil
}

func (s *Store) Subscribe(fn ChangeFunc) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) save(values map[string]any) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	s.log.Debug("settings saved", logger.String("path", s.path))
	return nil
}
