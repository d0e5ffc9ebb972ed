package manager

import (
	"context"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/scheduler"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

const firstSlot uint8 = 0

func (m *Manager) startWatchdog() {
	m.lifeMu.Lock()
	ctx := m.ctx
	m.lifeMu.Unlock()

	m.watchdog.Start(ctx, m.watchdogStep)
}

func (m *Manager) stopWatchdog() {
	m.watchdog.Stop()
}

// watchdogStep is one round of slot correction. It returns false once the
// loop should end.
func (m *Manager) watchdogStep(ctx context.Context) bool {
	indexed := m.indexedPhysical()

	seen := make(map[uint8]bool, len(indexed))
	drunk := false
	for _, c := range indexed {
		slot, ok := m.readSlot(c)
		if !ok {
			continue
		}
		if seen[slot] {
			drunk = true
		}
		seen[slot] = true
		c.AttachSlot(slot)
	}

	if drunk {
		m.log.Warn("duplicate controller slots, waiting for the host to settle")
		for _, c := range indexed {
			c.AttachSlot(controller.SlotUnknown)
		}
		if !scheduler.Sleep(ctx, m.cfg.WatchdogSettle) {
			return false
		}
	}

	v := m.deps.Virtual
	if v.Mode() == VirtualXbox360 && v.Connected() && m.HasVirtual() {
		if m.ControllerFromSlot(firstSlot, false) == nil {
			if !m.remediate(ctx) {
				return false
			}
		} else {
			m.resumeAll()
			if status, _ := m.Status(); status != StatusSucceeded {
				m.updateStatus(StatusSucceeded, 0)
			} else {
				m.setAttempts(0)
			}
		}
	}

	return scheduler.Sleep(ctx, m.cfg.WatchdogInterval)
}

// remediate forces the physical pads off the bus and back so the virtual
// controller can take the first slot.
func (m *Manager) remediate(ctx context.Context) bool {
	_, attempts := m.Status()

	if attempts >= m.cfg.WatchdogMaxAttempts {
		m.resumeAll()
		m.updateStatus(StatusFailed, 0)
		m.log.Warn("slot correction failed, disabling controller management",
			logger.Int("max_attempts", m.cfg.WatchdogMaxAttempts))

		// the setting handler joins this worker, so it cannot run here
		m.selfDisabled.Store(true)
		m.track(func(context.Context) {
			if err := m.deps.Settings.Set(settings.ControllerManagement, false); err != nil {
				m.log.Warn("failed to disable controller management", logger.Error(err))
			}
		})
		return false
	}

	m.updateStatus(StatusBusy, attempts)

	indexed := m.indexedPhysical()
	cycling := false
	for _, c := range indexed {
		if c.IsBusy() && c.IsWireless() {
			cycling = m.deps.Registry.IsPowerCycling(c.ID())
			if !cycling && attempts != 0 {
				m.log.Debug("waiting for wireless controller", logger.String("id", c.ID()))
				return true
			}
			break
		}
	}

	v := m.deps.Virtual
	v.Suspend()
	for _, c := range indexed {
		c.SetBusy(true)
		m.deps.Power.Suspend(c.ID())
	}
	v.Resume()
	m.resumeAll()

	v.Suspend()
	settled := scheduler.Sleep(ctx, m.cfg.VirtualSettle)
	v.Resume()
	if !settled {
		return false
	}

	if !cycling {
		m.setAttempts(attempts + 1)
	}
	m.log.Info("slot correction round done", logger.Int("attempt", attempts+1))
	return true
}

func (m *Manager) indexedPhysical() []controller.Controller {
	return m.filter(func(c controller.Controller) bool {
		return c.IsPhysical() && c.Variant().Caps.Has(controller.CapIndexed)
	})
}

func (m *Manager) readSlot(c controller.Controller) (uint8, bool) {
	if m.deps.Slots != nil {
		if slot, ok := m.deps.Slots.Slot(c.Details().SysPath); ok {
			return slot, true
		}
		return controller.SlotUnknown, false
	}
	slot := c.Slot()
	return slot, slot != controller.SlotUnknown
}

// resumeAll restores every driver still owed.
func (m *Manager) resumeAll() {
	for len(m.deps.Power.Pending()) > 0 {
		if !m.deps.Power.Resume() {
			return
		}
	}
}

func (m *Manager) updateStatus(s Status, attempts int) {
	m.statusMu.Lock()
	m.status = s
	m.attempts = attempts
	m.statusMu.Unlock()

	m.log.Debug("management status", logger.String("status", s.String()), logger.Int("attempts", attempts))
	m.events.status(s, attempts)
}

func (m *Manager) setAttempts(n int) {
	m.statusMu.Lock()
	m.attempts = n
	m.statusMu.Unlock()
}
