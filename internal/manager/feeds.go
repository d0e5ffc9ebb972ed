package manager

import (
	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

func (m *Manager) settingChanged(key string, _ any) {
	switch key {
	case settings.VibrationStrength:
		if t := m.Target(); t != nil {
			t.SetVibrationStrength(m.deps.Settings.Int(key))
		}

	case settings.ControllerManagement:
		if m.deps.Settings.Bool(key) {
			m.selfDisabled.Store(false)
			m.startWatchdog()
			return
		}
		m.stopWatchdog()
		// a watchdog that gave up keeps reporting Failed
		if !m.selfDisabled.Swap(false) {
			_, attempts := m.Status()
			m.updateStatus(StatusPending, attempts)
		}

	case settings.SensorSelection:
		m.sensorSelection.Store(int32(m.deps.Settings.Int(key)))

	case settings.EmbeddedExclusiveMode:
		m.checkScenario()
	}
}

// Vibrated forwards the virtual controller's rumble to the target.
func (m *Manager) Vibrated(large, small uint8) {
	t := m.Target()
	if t == nil {
		return
	}
	if err := t.SetVibration(large, small); err != nil {
		m.log.Debug("failed to forward vibration", logger.String("id", t.ID()), logger.Error(err))
	}
}

// KeyPressed injects a host key chord into the target's frames.
func (m *Manager) KeyPressed(b controller.Button) {
	if t := m.Target(); t != nil {
		t.InjectButton(b, true)
	}
}

func (m *Manager) KeyReleased(b controller.Button) {
	if t := m.Target(); t != nil {
		t.InjectButton(b, false)
	}
}
