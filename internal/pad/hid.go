package pad

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sstallion/go-hid"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/logger"
)

// hidDevice is the subset of *hid.Device the pad uses.
type hidDevice interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

const hidReadTimeout = 100 * time.Millisecond

// HIDPad reads a hidraw node and writes the vendor output report.
type HIDPad struct {
	*controller.Base

	decode  decodeFunc
	encode  encodeFunc
	cloaker func(on bool) error
	open    func(path string) (hidDevice, error)
	log     logger.Logger

	outMu sync.Mutex
	light controller.Color
	large uint8
	small uint8

	// loopMu serializes reopen and close; devMu guards dev for writers.
	loopMu sync.Mutex
	devMu  sync.RWMutex
	dev    hidDevice
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func newHIDPad(v controller.Variant, d controller.Details, dev hidDevice, cloaker func(bool) error, log logger.Logger) (*HIDPad, error) {
	decode := decoderFor(v.Model)
	if decode == nil {
		return nil, fmt.Errorf("no report decoder for %s", v.Model)
	}
	p := &HIDPad{
		decode:  decode,
		encode:  encoderFor(v.Model),
		cloaker: cloaker,
		log:     log,
	}
	p.Base = controller.NewBase(v, d, p)
	p.start(dev)
	return p, nil
}

func (p *HIDPad) start(dev hidDevice) {
	p.devMu.Lock()
	p.dev = dev
	p.devMu.Unlock()

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.readLoop(dev, p.stop, p.done)
}

// halt stops the read loop, then releases the node; the handle must not be
// freed while a read is in flight. Callers hold loopMu.
func (p *HIDPad) halt() error {
	p.devMu.Lock()
	dev := p.dev
	p.dev = nil
	p.devMu.Unlock()

	if dev == nil {
		return nil
	}
	close(p.stop)
	<-p.done
	return dev.Close()
}

// AttachDetails reopens the node after the device came back from a power
// cycle.
func (p *HIDPad) AttachDetails(d controller.Details) {
	p.Base.AttachDetails(d)

	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.closed || p.open == nil {
		return
	}

	if err := p.halt(); err != nil {
		p.log.Debug("closing stale hid node failed", logger.Error(err))
	}
	p.Rearm()

	dev, err := p.open(d.DevicePath)
	if err != nil {
		p.log.Warn("reopening hid node failed", logger.String("path", d.DevicePath), logger.Error(err))
		p.MarkDisconnected()
		return
	}
	p.start(dev)
}

func (p *HIDPad) readLoop(dev hidDevice, stop, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 128)
	var last time.Time
	motions := make(map[uint8]controller.Motion, 1)

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := dev.ReadWithTimeout(buf, hidReadTimeout)
		if errors.Is(err, hid.ErrTimeout) {
			continue
		}
		if err != nil {
			p.log.Debug("hid read stopped", logger.String("id", p.ID()), logger.Error(err))
			p.MarkDisconnected()
			return
		}
		st, m, ok := p.decode(buf[:n])
		if !ok {
			continue
		}

		now := time.Now()
		var dt float32
		if !last.IsZero() {
			dt = float32(now.Sub(last).Seconds())
		}
		last = now
		st.Timestamp = now
		motions[0] = m

		p.MarkReady()
		p.Publish(st, motions, dt)
	}
}

func (p *HIDPad) write() error {
	if p.encode == nil {
		return controller.ErrUnsupported
	}
	p.outMu.Lock()
	report := p.encode(p.light, p.large, p.small)
	p.outMu.Unlock()

	p.devMu.RLock()
	defer p.devMu.RUnlock()
	if p.dev == nil {
		return controller.ErrClosed
	}
	if _, err := p.dev.Write(report); err != nil {
		return fmt.Errorf("write output report: %w", err)
	}
	return nil
}

func (p *HIDPad) WriteLight(c controller.Color) error {
	p.outMu.Lock()
	p.light = c
	p.outMu.Unlock()
	return p.write()
}

func (p *HIDPad) WriteVibration(large, small uint8) error {
	p.outMu.Lock()
	p.large, p.small = large, small
	p.outMu.Unlock()
	return p.write()
}

func (p *HIDPad) Cloak(on bool) error {
	if p.cloaker == nil {
		return nil
	}
	return p.cloaker(on)
}

func (p *HIDPad) Close() error {
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
