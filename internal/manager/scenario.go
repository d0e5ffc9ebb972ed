package manager

import (
	"strings"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

// UI surfaces that mute the target while focused.
const (
	surfaceMainWindow uint32 = 1 << iota
	surfaceQuickTools
)

func surfaceBit(name string) uint32 {
	if strings.EqualFold(name, "QuickTools") {
		return surfaceQuickTools
	}
	return surfaceMainWindow
}

// GotFocus records a UI surface gaining focus and re-arms the scenario timer.
func (m *Manager) GotFocus(name string) {
	bit := surfaceBit(name)
	for {
		cur := m.focus.Load()
		if m.focus.CompareAndSwap(cur, cur|bit) {
			break
		}
	}
	m.checkScenario()
}

// LostFocus records a UI surface losing focus.
func (m *Manager) LostFocus(name string) {
	bit := surfaceBit(name)
	for {
		cur := m.focus.Load()
		if m.focus.CompareAndSwap(cur, cur&^bit) {
			break
		}
	}
	m.checkScenario()
}

// Focused reports whether any tracked surface holds focus.
func (m *Manager) Focused() bool { return m.focus.Load() != 0 }

// ForegroundChanged takes the process now in front; nil means none.
func (m *Manager) ForegroundChanged(cur, prev *Process) {
	m.fgMu.Lock()
	m.foreground = cur
	m.fgMu.Unlock()

	if cur != nil {
		m.log.Debug("foreground changed", logger.String("process", cur.Name), logger.String("platform", cur.Platform))
	}
	m.checkScenario()
}

// Foreground returns the last reported foreground process.
func (m *Manager) Foreground() *Process {
	m.fgMu.Lock()
	defer m.fgMu.Unlock()
	return m.foreground
}

func (m *Manager) checkScenario() {
	m.scenario.Reset()
}

// evaluateScenario decides whether the embedded controller is visible to
// other software and whether the target is muted. It holds the target lock
// so a target being replaced is never cloaked behind setTarget's back.
func (m *Manager) evaluateScenario() {
	m.targetMu.Lock()
	defer m.targetMu.Unlock()

	target := m.target
	embedded := target != nil &&
		m.deps.Host.HasEmbeddedController() &&
		target.Variant().Caps.Has(controller.CapHybridEmbedded)

	if embedded && target.IsBusy() {
		m.scenario.Reset()
		return
	}

	m.muted.Store(false)

	if embedded {
		switch {
		case m.deps.Settings.Bool(settings.EmbeddedExclusiveMode):
			if !target.IsHidden() {
				m.hide(target, false)
			}
		case m.designatedForeground():
			if target.IsHidden() {
				m.unhide(target)
			}
			m.muted.Store(true)
		default:
			if !target.IsHidden() {
				m.hide(target, false)
			}
		}
	}

	if m.Focused() {
		m.muted.Store(true)
	}
}

func (m *Manager) designatedForeground() bool {
	fg := m.Foreground()
	return fg != nil && m.cfg.DesignatedPlatform != "" && strings.EqualFold(fg.Platform, m.cfg.DesignatedPlatform)
}
