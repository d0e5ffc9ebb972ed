// Package hotplug feeds udev add/remove events for game pads to a Handler.
package hotplug

import (
	"context"
	"fmt"
	"sync"

	"github.com/jochenvg/go-udev"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

// Handler receives device events. Both calls must return promptly.
type Handler interface {
	DeviceArrived(d controller.Details)
	DeviceRemoved(d controller.Details)
}

type Monitor struct {
	handler Handler
	logger  logger.Logger
	udev    *udev.Udev

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewMonitor(h Handler, log logger.Logger) *Monitor {
	return &Monitor{
		handler: h,
		logger:  log.With(logger.Component("hotplug")),
		udev:    &udev.Udev{},
		done:    make(chan struct{}),
	}
}

// Start subscribes to udev, then replays the devices already present as
// arrivals.
func (m *Monitor) Start(ctx context.Context) error {
	mon := m.udev.NewMonitorFromNetlink("udev")
	for _, sub := range []string{subsystemHIDRaw, subsystemInput} {
		if err := mon.FilterAddMatchSubsystem(sub); err != nil {
			return fmt.Errorf("failed to filter udev subsystem %s: %w", sub, err)
		}
	}

	events, err := mon.DeviceChan(m.done)
	if err != nil {
		return fmt.Errorf("failed to start udev monitor: %w", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case d, ok := <-events:
				if !ok {
					return
				}
				m.dispatch(d)
			case <-m.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := m.enumerate(); err != nil {
		m.logger.Warn("initial device enumeration failed", logger.Error(err))
	}
	return nil
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *Monitor) enumerate() error {
	e := m.udev.NewEnumerate()
	for _, sub := range []string{subsystemHIDRaw, subsystemInput} {
		if err := e.AddMatchSubsystem(sub); err != nil {
			return err
		}
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return err
	}

	devices, err := e.Devices()
	if err != nil {
		return err
	}

	m.logger.Debug("enumerated devices", logger.Int("count", len(devices)))
	for _, d := range devices {
		m.dispatch(d)
	}
	return nil
}

func (m *Monitor) dispatch(dev *udev.Device) {
	if dev == nil {
		return
	}
	action := dev.Action()

	d, ok := describe(udevNode{dev}, action)
	if !ok {
		return
	}

	switch action {
	case "add", "":
		m.logger.Debug("device arrived", logger.String("device", d.String()))
		m.handler.DeviceArrived(d)
	case actionRemove:
		m.logger.Debug("device removed", logger.String("device", d.String()))
		m.handler.DeviceRemoved(d)
	}
}

type udevNode struct {
	*udev.Device
}

func (n udevNode) parent(subsystem, devtype string) node {
	if devtype != "" {
		p := n.ParentWithSubsystemDevtype(subsystem, devtype)
		if p == nil {
			return nil
		}
		return udevNode{p}
	}

	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Subsystem() == subsystem {
			return udevNode{p}
		}
	}
	return nil
}
