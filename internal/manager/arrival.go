package manager

import (
	"context"
	"errors"
	"time"

	"github.com/MrSnakeDoc/padherd/internal/classify"
	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/probe"
)

// DeviceArrived handles a hot-plug arrival on a tracked goroutine and
// returns immediately.
func (m *Manager) DeviceArrived(d controller.Details) {
	m.track(func(ctx context.Context) { m.arrive(ctx, d) })
}

func (m *Manager) arrive(ctx context.Context, d controller.Details) {
	d.ContainerID = controller.NormalizeID(d.ContainerID)
	log := m.log.With(logger.String("id", d.ContainerID), logger.String("transport", d.Transport.String()))

	cycling := m.deps.Registry.IsPowerCycling(d.ContainerID)

	var handle *controller.Handle
	if d.Transport == controller.TransportHID && m.deps.Prober != nil {
		h, err := m.deps.Prober.Match(ctx, d.DevicePath)
		switch {
		case err == nil:
			handle = h
		case errors.Is(err, probe.ErrNoMatch):
			log.Debug("no vendor channel handle, using generic path")
		default:
			log.Debug("vendor channel unavailable, using generic path", logger.Error(err))
		}
	}

	if d.Transport == controller.TransportXUsb {
		d.Slot = m.resolveSlot(d)
	}

	c := m.reattach(d, log)
	if c != nil {
		// a flap before it is ready again must not count as an unplug
		m.deps.Registry.SetPowerCycling(d.ContainerID, true)
		cycling = true
	} else {
		var err error
		if c, err = m.build(d, handle, log); err != nil {
			return
		}
	}
	if handle != nil {
		m.handlesMu.Lock()
		m.handles[d.ContainerID] = *handle
		m.handlesMu.Unlock()
	}

	if !m.waitReady(ctx, c) {
		log.Warn("controller went away before it was ready", logger.String("controller", c.String()))
		if !cycling {
			_ = c.Close()
		}
		return
	}

	c.SetBusy(false)
	m.deps.Registry.Put(c)
	log.Info("controller plugged",
		logger.String("controller", c.String()),
		logger.String("variant", c.Variant().String()),
		logger.Bool("power_cycling", cycling))
	m.events.plugged(c, cycling)
	m.deps.Registry.SetPowerCycling(c.ID(), false)

	if !m.initialized.Load() {
		return
	}

	if m.shouldPromote(c) {
		m.setTarget(c.ID(), cycling)
	}

	if target := m.Target(); target != nil {
		m.applyAccent(target)
		if d.Transport == controller.TransportXUsb && m.rumbleOnArrival() {
			if err := target.Rumble(); err != nil {
				log.Debug("arrival rumble failed", logger.Error(err))
			}
		}
	}
}

// reattach updates a registered controller in place after its node came
// back, and re-applies its cloak to the new node.
func (m *Manager) reattach(d controller.Details, log logger.Logger) controller.Controller {
	c, ok := m.deps.Registry.Get(d.ContainerID)
	if !ok || c.IsPlaceholder() {
		return nil
	}
	prev := c.Details()
	if prev.Transport != d.Transport || prev.Interface != d.Interface {
		return nil
	}

	c.AttachDetails(d)
	if d.Transport == controller.TransportXUsb {
		c.AttachSlot(d.Slot)
	}
	if c.IsHidden() {
		m.hide(c, false)
	} else {
		m.unhide(c)
	}

	log.Debug("controller reattached", logger.String("controller", c.String()))
	return c
}

func (m *Manager) build(d controller.Details, h *controller.Handle, log logger.Logger) (controller.Controller, error) {
	var v controller.Variant
	if h != nil {
		v = controller.VariantOf(h.Model)
	} else {
		var ok bool
		if v, ok = classify.Classify(&d); !ok {
			log.Warn("unsupported controller",
				logger.Hex("vid", d.VendorID),
				logger.Hex("pid", d.ProductID),
				logger.Int("interface", d.Interface))
			return nil, errUnsupported
		}
	}

	c, err := m.deps.Factory.New(v, d, h)
	if err != nil {
		log.Warn("failed to open controller", logger.String("variant", v.String()), logger.Error(err))
		return nil, err
	}
	return c, nil
}

var errUnsupported = errors.New("unsupported controller")

func (m *Manager) resolveSlot(d controller.Details) uint8 {
	if d.Slot != controller.SlotUnknown || m.deps.Slots == nil || d.SysPath == "" {
		return d.Slot
	}
	if slot, ok := m.deps.Slots.Slot(d.SysPath); ok {
		return slot
	}
	return controller.SlotUnknown
}

// waitReady blocks until c is ready, and reports false when it
// disconnects first or ctx ends.
func (m *Manager) waitReady(ctx context.Context, c controller.Controller) bool {
	if sig, ok := c.(controller.ReadySignaler); ok {
		ready, gone := sig.Ready(), sig.Disconnected()
		select {
		case <-ready:
			return c.IsConnected()
		case <-gone:
			return false
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(m.cfg.ReadyPoll)
	defer ticker.Stop()
	for !c.IsReady() {
		if !c.IsConnected() {
			return false
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
	return c.IsConnected()
}

func (m *Manager) shouldPromote(c controller.Controller) bool {
	if !c.IsPhysical() {
		return false
	}
	target := m.Target()
	if target == nil || target.IsVirtual() {
		return true
	}
	if target.ID() == c.ID() {
		return false
	}
	return m.pendingRestore() == c.ID()
}
