package pad

import (
	"sync"
	"time"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

type evdevDevice interface {
	Read() ([]evdev.InputEvent, error)
	Grab() error
	Release() error
	Close() error
}

// evdevHandle adds Close to *evdev.InputDevice.
type evdevHandle struct {
	*evdev.InputDevice
}

func (h evdevHandle) Close() error {
	return h.File.Close()
}

var evdevButtons = map[uint16]controller.Button{
	evdev.BTN_A:              controller.ButtonA,
	evdev.BTN_B:              controller.ButtonB,
	evdev.BTN_X:              controller.ButtonX,
	evdev.BTN_Y:              controller.ButtonY,
	evdev.BTN_TL:             controller.ButtonLeftShoulder,
	evdev.BTN_TR:             controller.ButtonRightShoulder,
	evdev.BTN_SELECT:         controller.ButtonBack,
	evdev.BTN_START:          controller.ButtonStart,
	evdev.BTN_MODE:           controller.ButtonSpecial,
	evdev.BTN_THUMBL:         controller.ButtonLeftStick,
	evdev.BTN_THUMBR:         controller.ButtonRightStick,
	evdev.BTN_TRIGGER_HAPPY1: controller.ButtonDPadLeft,
	evdev.BTN_TRIGGER_HAPPY2: controller.ButtonDPadRight,
	evdev.BTN_TRIGGER_HAPPY3: controller.ButtonDPadUp,
	evdev.BTN_TRIGGER_HAPPY4: controller.ButtonDPadDown,
}

// EvdevPad reads an xpad event node. Cloaking is an exclusive grab.
type EvdevPad struct {
	*controller.Base

	enabled func() bool
	open    func(path string) (evdevDevice, error)
	log     logger.Logger

	state      controller.State
	triggerMax float32
	last       time.Time

	// grabMu guards dev and the grab state; loopMu serializes reopen and close.
	grabMu  sync.Mutex
	dev     evdevDevice
	grabbed bool

	loopMu sync.Mutex
	done   chan struct{}
	closed bool
}

func newEvdevPad(v controller.Variant, d controller.Details, dev evdevDevice, enabled func() bool, log logger.Logger) *EvdevPad {
	p := &EvdevPad{
		enabled:    enabled,
		log:        log,
		triggerMax: 255,
	}
	p.Base = controller.NewBase(v, d, p)
	p.start(dev)
	return p
}

func (p *EvdevPad) start(dev evdevDevice) {
	p.grabMu.Lock()
	p.dev = dev
	p.grabbed = false
	p.grabMu.Unlock()

	p.done = make(chan struct{})
	go p.readLoop(dev, p.done)
}

// halt closes the node, which unblocks the pending read. Callers hold loopMu.
func (p *EvdevPad) halt() error {
	p.grabMu.Lock()
	dev := p.dev
	p.dev = nil
	p.grabMu.Unlock()

	if dev == nil {
		return nil
	}
	err := dev.Close()
	<-p.done
	return err
}

// AttachDetails reopens the event node after a power cycle. A grab held
// before the cycle is re-applied by the caller through Hide.
func (p *EvdevPad) AttachDetails(d controller.Details) {
	p.Base.AttachDetails(d)

	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.closed || p.open == nil {
		return
	}

	if err := p.halt(); err != nil {
		p.log.Debug("closing stale event node failed", logger.Error(err))
	}
	p.Rearm()
	p.state = controller.State{}
	p.last = time.Time{}

	dev, err := p.open(d.DevicePath)
	if err != nil {
		p.log.Warn("reopening event node failed", logger.String("path", d.DevicePath), logger.Error(err))
		p.MarkDisconnected()
		return
	}
	p.start(dev)
}

func (p *EvdevPad) readLoop(dev evdevDevice, done chan struct{}) {
	defer close(done)
	for {
		events, err := dev.Read()
		if err != nil {
			p.log.Debug("evdev read stopped", logger.String("id", p.ID()), logger.Error(err))
			p.MarkDisconnected()
			return
		}
		for _, ev := range events {
			p.apply(ev)
		}
	}
}

// apply folds one event into the pending frame and publishes on SYN_REPORT.
func (p *EvdevPad) apply(ev evdev.InputEvent) {
	switch ev.Type {
	case evdev.EV_KEY:
		if btn, ok := evdevButtons[ev.Code]; ok {
			p.state.Set(btn, ev.Value != 0)
		}
	case evdev.EV_ABS:
		p.applyAbs(ev.Code, ev.Value)
	case evdev.EV_SYN:
		if ev.Code != evdev.SYN_REPORT {
			return
		}
		now := time.Now()
		var dt float32
		if !p.last.IsZero() {
			dt = float32(now.Sub(p.last).Seconds())
		}
		p.last = now
		st := p.state
		st.Timestamp = now

		p.MarkReady()
		p.Publish(st, nil, dt)
	}
}

func (p *EvdevPad) applyAbs(code uint16, value int32) {
	switch code {
	case evdev.ABS_X:
		p.state.Axes[controller.AxisLeftX] = float32(value) / 32768
	case evdev.ABS_Y:
		p.state.Axes[controller.AxisLeftY] = float32(value) / 32768
	case evdev.ABS_RX:
		p.state.Axes[controller.AxisRightX] = float32(value) / 32768
	case evdev.ABS_RY:
		p.state.Axes[controller.AxisRightY] = float32(value) / 32768
	case evdev.ABS_Z, evdev.ABS_RZ:
		// Xbox One pads report 10-bit triggers, 360 pads 8-bit.
		if float32(value) > p.triggerMax {
			p.triggerMax = 1023
		}
		axis := controller.AxisLeftTrigger
		if code == evdev.ABS_RZ {
			axis = controller.AxisRightTrigger
		}
		p.state.Axes[axis] = float32(value) / p.triggerMax
	case evdev.ABS_HAT0X:
		p.state.Set(controller.ButtonDPadLeft, value < 0)
		p.state.Set(controller.ButtonDPadRight, value > 0)
	case evdev.ABS_HAT0Y:
		p.state.Set(controller.ButtonDPadUp, value < 0)
		p.state.Set(controller.ButtonDPadDown, value > 0)
	}
}

// xpad exposes neither an RGB light nor a force feedback path through evdev reads.
func (p *EvdevPad) WriteLight(controller.Color) error { return nil }

func (p *EvdevPad) WriteVibration(uint8, uint8) error { return controller.ErrUnsupported }

func (p *EvdevPad) Cloak(on bool) error {
	p.grabMu.Lock()
	defer p.grabMu.Unlock()

	if p.dev == nil {
		return controller.ErrClosed
	}
	if on && !p.enabled() {
		return nil
	}
	if on == p.grabbed {
		return nil
	}
	var err error
	if on {
		err = p.dev.Grab()
	} else {
		err = p.dev.Release()
	}
	if err != nil {
		return err
	}
	p.grabbed = on
	return nil
}

func (p *EvdevPad) Close() error {
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	err := p.halt()
	p.MarkDisconnected()
	return err
}
