// Package manager owns the controller lifecycle: arrival and removal,
// target arbitration, driver power cycling, slot correction and the
// per-frame input fan-out.
package manager

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/config"
	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/registry"
	"github.com/MrSnakeDoc/padherd/internal/scheduler"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

type Config struct {
	RemovalTimeout      time.Duration
	RemovalPoll         time.Duration
	ReadyPoll           time.Duration
	WatchdogInterval    time.Duration
	WatchdogSettle      time.Duration
	VirtualSettle       time.Duration
	WatchdogMaxAttempts int
	ScenarioDebounce    time.Duration

	HostManufacturer    string
	RumbleManufacturers []string
	DesignatedPlatform  string
}

func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RemovalTimeout:      cfg.RemovalTimeout,
		RemovalPoll:         cfg.RemovalPoll,
		ReadyPoll:           cfg.ReadyPoll,
		WatchdogInterval:    cfg.WatchdogInterval,
		WatchdogSettle:      cfg.WatchdogSettle,
		VirtualSettle:       cfg.VirtualSettle,
		WatchdogMaxAttempts: cfg.WatchdogMaxAttempts,
		ScenarioDebounce:    cfg.ScenarioDebounce,
		HostManufacturer:    cfg.HostManufacturer,
		RumbleManufacturers: cfg.RumbleManufacturers,
		DesignatedPlatform:  cfg.DesignatedPlatform,
	}
}

// Deps are the collaborators of a Manager. Registry, Factory, Power and
// Settings are required.
type Deps struct {
	Registry  *registry.Registry
	Factory   controller.Factory
	Prober    Prober
	Power     PowerCycler
	Settings  Settings
	Cloaker   Cloaker
	Slots     SlotReader
	Virtual   Virtual
	Theme     Theme
	Host      HostDevice
	Motion    MotionFunc
	Layout    LayoutFunc
	Consumers []InputConsumer
}

type Manager struct {
	cfg    Config
	deps   Deps
	log    logger.Logger
	events *Events

	lifeMu   sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	stopping bool
	wg       sync.WaitGroup
	unsubCfg func()

	initialized atomic.Bool

	// targetMu serializes every target mutation.
	targetMu    sync.Mutex
	target      controller.Controller
	unsubTarget func()
	targetRef   atomic.Pointer[controller.Controller]

	handlesMu sync.Mutex
	handles   map[string]controller.Handle

	// restoreID is the previous run's target while it waits to come back.
	restoreMu sync.Mutex
	restoreID string

	muted           atomic.Bool
	focus           atomic.Uint32
	sensorSelection atomic.Int32
	fgMu            sync.Mutex
	foreground      *Process

	statusMu     sync.Mutex
	status       Status
	attempts     int
	selfDisabled atomic.Bool

	watchdog *scheduler.Worker
	scenario *scheduler.Debouncer
}

func New(cfg Config, deps Deps, log logger.Logger) *Manager {
	if cfg.WatchdogMaxAttempts < 1 {
		cfg.WatchdogMaxAttempts = 4
	}
	if deps.Virtual == nil {
		deps.Virtual = nullVirtual{}
	}
	if deps.Theme == nil {
		deps.Theme = noTheme{}
	}
	if deps.Host == nil {
		deps.Host = noHost{}
	}

	log = log.With(logger.Component("manager"))
	m := &Manager{
		cfg:     cfg,
		deps:    deps,
		log:     log,
		events:  newEvents(),
		handles: make(map[string]controller.Handle),
		ctx:     context.Background(),
	}
	m.watchdog = scheduler.NewWorker("watchdog", log)
	m.scenario = scheduler.NewDebouncer(cfg.ScenarioDebounce, m.evaluateScenario)
	m.sensorSelection.Store(int32(deps.Settings.Int(settings.SensorSelection)))
	return m
}

func (m *Manager) Events() *Events { return m.events }

// Initialized reports whether Start completed and Stop has not begun.
func (m *Manager) Initialized() bool { return m.initialized.Load() }

// Start loads the driver store, flushes the vendor channel, enables
// cloaking and installs the initial target. Calling it twice is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	if m.running {
		m.lifeMu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.lifeMu.Unlock()

	if err := m.deps.Power.Load(); err != nil {
		m.log.Warn("failed to load driver store", logger.Error(err))
	}
	if m.deps.Prober != nil {
		m.deps.Prober.DisconnectAll()
	}

	m.unsubCfg = m.deps.Settings.Subscribe(m.settingChanged)
	m.scenario.Start()
	if m.deps.Cloaker != nil {
		m.deps.Cloaker.SetCloaking(true)
	}
	if m.deps.Settings.Bool(settings.ControllerManagement) {
		m.startWatchdog()
	}

	restore := m.deps.Settings.Bool(settings.RestoreLastTarget)
	if restore {
		m.setPendingRestore(m.deps.Settings.String(settings.LastTarget))
	}

	m.initialized.Store(true)
	m.events.initialized()
	m.ensureTarget()
	if restore {
		m.RestoreLastTarget()
	}

	m.log.Info("controller manager started", logger.Int("controllers", m.deps.Registry.Count()))
	return nil
}

// Stop releases the target and the workers. It is idempotent.
func (m *Manager) Stop() {
	m.lifeMu.Lock()
	if !m.running {
		m.lifeMu.Unlock()
		return
	}
	m.running = false
	m.stopping = true
	m.lifeMu.Unlock()

	m.initialized.Store(false)
	m.clearTarget(false)
	m.scenario.Stop()
	m.stopWatchdog()

	if m.deps.Settings.Bool(settings.UncloakOnClose) {
		for _, c := range m.Physical() {
			m.unhide(c)
		}
	}
	if m.deps.Prober != nil {
		m.deps.Prober.DisconnectAll()
	}
	if m.unsubCfg != nil {
		m.unsubCfg()
	}

	m.cancel()
	m.wg.Wait()
	m.events.clear()

	m.lifeMu.Lock()
	m.stopping = false
	m.lifeMu.Unlock()

	m.log.Info("controller manager stopped")
}

// track runs fn on a goroutine Stop waits for.
func (m *Manager) track(fn func(ctx context.Context)) {
	m.lifeMu.Lock()
	if m.stopping {
		m.lifeMu.Unlock()
		return
	}
	ctx := m.ctx
	m.wg.Add(1)
	m.lifeMu.Unlock()

	go func() {
		defer m.wg.Done()
		fn(ctx)
	}()
}

// Controllers returns every registered controller, placeholder included.
func (m *Manager) Controllers() []controller.Controller {
	return m.deps.Registry.All()
}

// Physical returns the registered physical controllers.
func (m *Manager) Physical() []controller.Controller {
	return m.filter(func(c controller.Controller) bool { return c.IsPhysical() })
}

// Virtual returns the registered virtual controllers, placeholders excluded.
func (m *Manager) Virtual() []controller.Controller {
	return m.filter(func(c controller.Controller) bool { return c.IsVirtual() && !c.IsPlaceholder() })
}

// HasPhysical reports whether a physical controller is registered.
func (m *Manager) HasPhysical() bool { return len(m.Physical()) > 0 }

// HasVirtual reports whether a virtual controller is registered.
func (m *Manager) HasVirtual() bool { return len(m.Virtual()) > 0 }

// ControllerFromSlot returns the indexed controller on slot, physical or
// virtual.
func (m *Manager) ControllerFromSlot(slot uint8, physical bool) controller.Controller {
	c, _ := m.deps.Registry.Find(func(c controller.Controller) bool {
		if !c.Variant().Caps.Has(controller.CapIndexed) || c.IsPlaceholder() {
			return false
		}
		if physical != c.IsPhysical() {
			return false
		}
		return c.Slot() == slot
	})
	return c
}

func (m *Manager) filter(keep func(controller.Controller) bool) []controller.Controller {
	return slices.DeleteFunc(m.deps.Registry.All(), func(c controller.Controller) bool { return !keep(c) })
}

// Status returns the watchdog status and its attempt counter.
func (m *Manager) Status() (Status, int) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status, m.attempts
}

// Muted reports whether target frames are reduced to the special button.
func (m *Manager) Muted() bool { return m.muted.Load() }

// Suspend and Resume expose the driver power cycle.
func (m *Manager) Suspend(id string) bool { return m.deps.Power.Suspend(controller.NormalizeID(id)) }

func (m *Manager) Resume() bool { return m.deps.Power.Resume() }

func (m *Manager) hide(c controller.Controller, powerCycle bool) {
	if err := c.Hide(); err != nil {
		m.log.Warn("failed to hide controller", logger.String("id", c.ID()), logger.Error(err))
		return
	}
	if powerCycle && c.IsPhysical() {
		m.deps.Power.Cycle(c.ID())
	}
}

func (m *Manager) unhide(c controller.Controller) {
	if err := c.Unhide(); err != nil {
		m.log.Warn("failed to unhide controller", logger.String("id", c.ID()), logger.Error(err))
	}
}

func (m *Manager) rumbleOnArrival() bool {
	name := strings.ToUpper(strings.TrimSpace(m.cfg.HostManufacturer))
	if name == "" {
		name = strings.ToUpper(strings.TrimSpace(m.deps.Host.Manufacturer()))
	}
	if name == "" {
		return false
	}
	for _, want := range m.cfg.RumbleManufacturers {
		if strings.HasPrefix(name, strings.ToUpper(want)) {
			return true
		}
	}
	return false
}
