package manager

import (
	"context"
	"errors"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/registry"
)

// DeviceRemoved handles a hot-plug removal on a tracked goroutine and
// returns immediately.
func (m *Manager) DeviceRemoved(d controller.Details) {
	m.track(func(ctx context.Context) { m.remove(ctx, d) })
}

func (m *Manager) remove(ctx context.Context, d controller.Details) {
	d.ContainerID = controller.NormalizeID(d.ContainerID)
	log := m.log.With(logger.String("id", d.ContainerID), logger.String("transport", d.Transport.String()))

	// the arrival of the same device may still be registering it
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.RemovalTimeout)
	c, err := m.deps.Registry.WaitFor(waitCtx, d.ContainerID, m.cfg.RemovalPoll)
	cancel()
	if errors.Is(err, registry.ErrNotFound) || c == nil || c.IsPlaceholder() {
		log.Debug("removal of an unknown controller")
		return
	}

	cur := c.Details()
	if cur.Transport != d.Transport {
		// indexed pads are owned by their XUsb node
		return
	}
	if d.DevicePath != "" && cur.DevicePath != "" && d.DevicePath != cur.DevicePath {
		log.Debug("removal of a sibling node", logger.String("path", d.DevicePath))
		return
	}

	if c.Variant().Family == controller.FamilyVendor {
		m.handlesMu.Lock()
		h, ok := m.handles[d.ContainerID]
		delete(m.handles, d.ContainerID)
		m.handlesMu.Unlock()
		if ok && m.deps.Prober != nil {
			m.deps.Prober.Disconnect(h)
		}
	}

	cycling := m.deps.Registry.IsPowerCycling(d.ContainerID)
	target := m.Target()
	wasTarget := target != nil && target.ID() == c.ID()

	if !cycling {
		m.unhide(c)
		m.deps.Registry.Delete(d.ContainerID)

		if wasTarget {
			m.ClearTarget()
			if m.initialized.Load() {
				m.ensureTarget()
			}
		} else {
			c.Unplug()
		}

		if err := c.Close(); err != nil {
			log.Debug("failed to close controller", logger.Error(err))
		}
	}

	log.Info("controller unplugged",
		logger.String("controller", c.String()),
		logger.Bool("power_cycling", cycling),
		logger.Bool("was_target", wasTarget))
	m.events.unplugged(c, cycling, wasTarget)
}

// Evict drops a controller whose node never came back after a power cycle,
// as if its removal had been reported.
func (m *Manager) Evict(id string) {
	id = controller.NormalizeID(id)
	c, ok := m.deps.Registry.Get(id)
	if !ok || c.IsPlaceholder() {
		return
	}
	m.deps.Registry.SetPowerCycling(id, false)
	m.log.Info("evicting controller that did not come back", logger.String("id", id))
	m.track(func(ctx context.Context) { m.remove(ctx, c.Details()) })
}
