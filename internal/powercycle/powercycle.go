// Package powercycle swaps a device's driver for the null driver and back,
// forcing the OS to drop and re-enumerate it.
package powercycle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/driverstore"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

const EnumeratorUSB = "USB"

var ErrNotUSB = errors.New("device is not usb-enumerated")

// Node is one device as the host OS sees it.
type Node interface {
	Enumerator() string
	CurrentDriver() (string, error)
	InstallNullDriver() error
	CyclePort() error
	InstallDriver(driver string) error
}

type Host interface {
	Lookup(id string) (Node, error)
}

// Marker records identities whose removal is part of a deliberate cycle.
type Marker interface {
	SetPowerCycling(id string, on bool)
}

type Manager struct {
	host          Host
	store         *driverstore.Store
	marks         Marker
	defaultDriver string
	logger        logger.Logger

	// serializes Suspend/Resume/Cycle against each other
	mu sync.Mutex
}

func New(host Host, store *driverstore.Store, marks Marker, defaultDriver string, log logger.Logger) *Manager {
	return &Manager{
		host:          host,
		store:         store,
		marks:         marks,
		defaultDriver: defaultDriver,
		logger:        log.With(logger.Component("powercycle")),
	}
}

// Load reloads the driver store from disk.
func (m *Manager) Load() error {
	if err := m.store.Load(); err != nil {
		return err
	}
	if n := m.store.Len(); n > 0 {
		m.logger.Info("driver restorations pending", logger.Int("count", n))
	}
	return nil
}

// Pending lists the identities still owed their original driver.
func (m *Manager) Pending() map[string]string {
	return m.store.Snapshot()
}

// Suspend records the current driver of id, installs the null driver and
// cycles the port. It reports false on any OS failure.
func (m *Manager) Suspend(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = controller.NormalizeID(id)
	if err := m.suspend(id); err != nil {
		m.logger.Warn("suspend failed", logger.String("id", id), logger.Error(err))
		return false
	}
	m.logger.Info("controller suspended", logger.String("id", id))
	return true
}

func (m *Manager) suspend(id string) error {
	node, err := m.host.Lookup(id)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if node.Enumerator() != EnumeratorUSB {
		return ErrNotUSB
	}

	// A missing current driver is not fatal; the device is simply marked.
	driver, err := node.CurrentDriver()
	if err != nil {
		m.logger.Debug("current driver unavailable", logger.String("id", id), logger.Error(err))
		driver = ""
	}

	if driver == "" {
		m.marks.SetPowerCycling(id, true)
		return nil
	}

	if err := m.store.Put(id, driver); err != nil {
		return fmt.Errorf("store driver: %w", err)
	}

	// Unbinding removes the OS nodes at once, so the mark must be in place
	// before the removal events arrive.
	m.marks.SetPowerCycling(id, true)
	if err := node.InstallNullDriver(); err != nil {
		m.rollback(id, node, "")
		return fmt.Errorf("install null driver: %w", err)
	}
	if err := node.CyclePort(); err != nil {
		m.rollback(id, node, driver)
		return fmt.Errorf("cycle port: %w", err)
	}
	return nil
}

// rollback undoes a half-done suspend. A non-empty driver is reinstalled
// first; the store entry is only forgotten once the device has it back.
func (m *Manager) rollback(id string, node Node, driver string) {
	defer m.marks.SetPowerCycling(id, false)

	if driver != "" {
		if err := node.InstallDriver(driver); err != nil {
			m.logger.Warn("failed to restore driver after aborted suspend",
				logger.String("id", id), logger.String("driver", driver), logger.Error(err))
			return
		}
	}
	if err := m.store.Delete(id); err != nil {
		m.logger.Warn("failed to forget driver", logger.String("id", id), logger.Error(err))
	}
}

// Resume walks the driver store and restores the first entry it can. It
// returns true after that first reconciliation, so callers that want the
// store drained call it until it reports false.
func (m *Manager) Resume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.store.IDs() {
		if err := m.resume(id); err != nil {
			m.logger.Warn("resume failed", logger.String("id", id), logger.Error(err))
			continue
		}
		m.logger.Info("controller resumed", logger.String("id", id))
		return true
	}
	return false
}

func (m *Manager) resume(id string) error {
	node, err := m.host.Lookup(id)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if node.Enumerator() != EnumeratorUSB {
		return ErrNotUSB
	}

	current, err := node.CurrentDriver()
	if err != nil {
		current = ""
	}

	want := m.store.Get(id, m.defaultDriver)
	if want != "" && current != want {
		if err := node.InstallDriver(want); err != nil {
			return fmt.Errorf("install driver %q: %w", want, err)
		}
	}

	if err := m.store.Delete(id); err != nil {
		return fmt.Errorf("forget driver: %w", err)
	}
	m.marks.SetPowerCycling(id, false)
	return nil
}

// Cycle marks id as power-cycling and resets its port without touching the
// driver. Hiding a controller goes through here so the OS re-reads it.
func (m *Manager) Cycle(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = controller.NormalizeID(id)
	node, err := m.host.Lookup(id)
	if err != nil {
		m.logger.Warn("cycle lookup failed", logger.String("id", id), logger.Error(err))
		return false
	}
	if node.Enumerator() != EnumeratorUSB {
		m.logger.Debug("cycle skipped", logger.String("id", id), logger.Error(ErrNotUSB))
		return false
	}

	m.marks.SetPowerCycling(id, true)
	if err := node.CyclePort(); err != nil {
		m.marks.SetPowerCycling(id, false)
		m.logger.Warn("cycle port failed", logger.String("id", id), logger.Error(err))
		return false
	}
	return true
}
