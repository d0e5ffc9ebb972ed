package manager

import (
	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

// Target returns the current target, or nil.
func (m *Manager) Target() controller.Controller {
	if p := m.targetRef.Load(); p != nil {
		return *p
	}
	return nil
}

func (m *Manager) setTargetRef(c controller.Controller) {
	if c == nil {
		m.targetRef.Store(nil)
		return
	}
	m.targetRef.Store(&c)
}

// SetTarget makes the registered controller id the target. Unknown ids are
// ignored.
func (m *Manager) SetTarget(id string) {
	m.setTarget(id, false)
}

func (m *Manager) setTarget(id string, powerCycling bool) {
	m.targetMu.Lock()
	defer m.targetMu.Unlock()

	c, ok := m.deps.Registry.Get(id)
	if !ok {
		m.log.Debug("target not registered", logger.String("id", id))
		return
	}

	m.clearTargetLocked(true)

	m.target = c
	m.setTargetRef(c)
	m.unsubTarget = c.Subscribe(m.UpdateInputs)
	c.SetVibrationStrength(m.deps.Settings.Int(settings.VibrationStrength))
	c.Plug()
	m.applyAccent(c)
	m.persistTarget(c.ID())

	if !powerCycling && m.deps.Settings.Bool(settings.CloakOnConnect) && !c.IsHidden() {
		// wireless pads that can be soft-cloaked would drop their link on a port reset
		powerCycle := !(c.Variant().Caps.Has(controller.CapSoftCloakWireless) && c.IsWireless())
		m.hide(c, powerCycle)
	}

	m.checkScenario()

	if !m.deps.Registry.IsPowerCycling(c.ID()) && m.deps.Settings.Bool(settings.VibrateOnConnect) {
		if err := c.Rumble(); err != nil {
			m.log.Debug("connect rumble failed", logger.String("id", c.ID()), logger.Error(err))
		}
	}

	if c.ID() != "" && c.ID() == m.pendingRestore() {
		m.setPendingRestore("")
	}

	m.log.Info("target selected", logger.String("controller", c.String()))
	m.events.selected(c)
}

// ClearTarget detaches the target. It is idempotent.
func (m *Manager) ClearTarget() {
	m.clearTarget(true)
}

func (m *Manager) clearTarget(persist bool) {
	m.targetMu.Lock()
	defer m.targetMu.Unlock()
	m.clearTargetLocked(persist)
}

func (m *Manager) clearTargetLocked(persist bool) {
	if m.target == nil {
		return
	}
	c := m.target

	if m.unsubTarget != nil {
		m.unsubTarget()
		m.unsubTarget = nil
	}
	if err := c.SetLightColor(controller.Color{}); err != nil {
		m.log.Debug("failed to clear light", logger.String("id", c.ID()), logger.Error(err))
	}
	c.Unplug()

	m.target = nil
	m.setTargetRef(nil)
	if persist {
		m.persistTarget("")
	}

	m.log.Debug("target cleared", logger.String("controller", c.String()))
}

// ensureTarget targets the first physical controller, else a virtual one,
// else the placeholder matching the emulation mode.
func (m *Manager) ensureTarget() {
	if phys := m.Physical(); len(phys) > 0 {
		m.setTarget(phys[0].ID(), false)
		return
	}
	if virt := m.Virtual(); len(virt) > 0 {
		m.setTarget(virt[0].ID(), false)
		return
	}

	model := controller.ModelXInput
	if m.deps.Virtual.Mode() == VirtualDualShock4 {
		model = controller.ModelDualShock4
	}
	if cur, ok := m.deps.Registry.Get(""); !ok || cur.Variant().Model != model {
		m.deps.Registry.PutAs("", controller.NewPlaceholder(model))
	}
	m.setTarget("", false)
}

// RestoreLastTarget targets the last target of the previous run when it is
// registered, else the first physical controller. A last target that is
// not plugged yet is promoted when it arrives.
func (m *Manager) RestoreLastTarget() {
	if id := m.pendingRestore(); id != "" {
		if _, ok := m.deps.Registry.Get(id); ok {
			m.setTarget(id, false)
			return
		}
	}
	if phys := m.Physical(); len(phys) > 0 {
		m.setTarget(phys[0].ID(), false)
	}
}

func (m *Manager) pendingRestore() string {
	m.restoreMu.Lock()
	defer m.restoreMu.Unlock()
	return m.restoreID
}

func (m *Manager) setPendingRestore(id string) {
	m.restoreMu.Lock()
	m.restoreID = controller.NormalizeID(id)
	m.restoreMu.Unlock()
}

// ColorsChanged re-applies the theme accent to the target.
func (m *Manager) ColorsChanged() {
	if c := m.Target(); c != nil {
		m.applyAccent(c)
	}
}

func (m *Manager) applyAccent(c controller.Controller) {
	if err := c.SetLightColor(m.deps.Theme.Accent()); err != nil {
		m.log.Debug("failed to set light", logger.String("id", c.ID()), logger.Error(err))
	}
}

func (m *Manager) persistTarget(id string) {
	if err := m.deps.Settings.Set(settings.LastTarget, id); err != nil {
		m.log.Warn("failed to persist last target", logger.Error(err))
	}
}
