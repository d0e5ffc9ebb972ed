// Package pad holds the concrete controller transports: hidraw pads driven
// through hidapi and xpad pads read from evdev.
package pad

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/sstallion/go-hid"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

// Inhibitor silences the kernel input devices of a HID node.
type Inhibitor interface {
	Inhibit(sysPath string, on bool) error
}

// Factory builds controllers for classified devices and owns the global
// cloaking switch.
type Factory struct {
	log      logger.Logger
	inhibit  Inhibitor
	cloaking atomic.Bool

	openHID   func(path string) (hidDevice, error)
	openEvdev func(path string) (evdevDevice, error)
}

func NewFactory(inhibit Inhibitor, log logger.Logger) *Factory {
	return &Factory{
		log:     log.With(logger.Component("pad")),
		inhibit: inhibit,
		openHID: func(path string) (hidDevice, error) {
			return hid.OpenPath(path)
		},
		openEvdev: func(path string) (evdevDevice, error) {
			d, err := evdev.Open(path)
			if err != nil {
				return nil, err
			}
			return evdevHandle{d}, nil
		},
	}
}

// SetCloaking enables or disables hiding controllers from other readers.
// Already hidden controllers are not released here.
func (f *Factory) SetCloaking(on bool) {
	f.cloaking.Store(on)
	f.log.Info("cloaking changed", logger.Bool("enabled", on))
}

func (f *Factory) Cloaking() bool { return f.cloaking.Load() }

func (f *Factory) New(v controller.Variant, d controller.Details, h *controller.Handle) (controller.Controller, error) {
	log := f.log.With(logger.String("id", d.ContainerID), logger.String("variant", v.String()))

	switch {
	case d.Transport == controller.TransportXUsb:
		dev, err := f.openEvdev(d.DevicePath)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", d.DevicePath, err)
		}
		pad := newEvdevPad(v, d, dev, f.cloaking.Load, log)
		pad.open = f.openEvdev
		return pad, nil

	case v.Family == controller.FamilyVendor:
		if h == nil {
			return nil, errors.New("vendor controller without a channel handle")
		}
		if d.Name == "" && h.Serial != "" {
			d.Name = v.Model.String() + " " + h.Serial
		}
		return f.newHID(v, d, h.Path, log)

	default:
		return f.newHID(v, d, d.DevicePath, log)
	}
}

func (f *Factory) newHID(v controller.Variant, d controller.Details, path string, log logger.Logger) (controller.Controller, error) {
	dev, err := f.openHID(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	pad, err := newHIDPad(v, d, dev, nil, log)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	pad.open = f.openHID
	pad.cloaker = f.hidCloaker(func() string { return pad.Details().SysPath })
	return pad, nil
}

// hidCloaker inhibits the input nodes under the pad's current HID device,
// which moves when the pad is power cycled.
func (f *Factory) hidCloaker(sysPath func() string) func(bool) error {
	return func(on bool) error {
		path := sysPath()
		if f.inhibit == nil || path == "" {
			return nil
		}
		if on && !f.cloaking.Load() {
			return nil
		}
		return f.inhibit.Inhibit(filepath.Clean(path), on)
	}
}
