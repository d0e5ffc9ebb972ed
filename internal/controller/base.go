package controller

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const rumbleDuration = 125 * time.Millisecond

type nopOutput struct{}

func (nopOutput) WriteLight(Color) error            { return nil }
func (nopOutput) WriteVibration(uint8, uint8) error { return nil }
func (nopOutput) Cloak(bool) error                  { return nil }

// Base carries the state shared by every controller; transports embed it
// and hand it an Output.
type Base struct {
	variant     Variant
	out         Output
	placeholder bool

	mu      sync.RWMutex
	details Details

	ready     atomic.Bool
	connected atomic.Bool
	busy      atomic.Bool
	hidden    atomic.Bool
	plugged   atomic.Bool
	slot      atomic.Uint32
	strength  atomic.Int32
	injected  atomic.Uint32

	sigMu      sync.Mutex
	readyCh    chan struct{}
	discCh     chan struct{}
	discClosed bool

	subMu  sync.RWMutex
	subs   map[uint64]InputHandler
	nextID uint64
}

func NewBase(v Variant, d Details, out Output) *Base {
	if out == nil {
		out = nopOutput{}
	}
	d.ContainerID = NormalizeID(d.ContainerID)
	b := &Base{
		variant: v,
		out:     out,
		details: d,
		readyCh: make(chan struct{}),
		discCh:  make(chan struct{}),
		subs:    make(map[uint64]InputHandler),
	}
	b.slot.Store(uint32(d.Slot))
	b.strength.Store(100)
	b.connected.Store(true)
	return b
}

func (b *Base) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.details.ContainerID
}

func (b *Base) Variant() Variant { return b.variant }

func (b *Base) Details() Details {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.details
}

// AttachDetails replaces the device node details, keeping the identity.
func (b *Base) AttachDetails(d Details) {
	b.mu.Lock()
	id := b.details.ContainerID
	b.details = d
	if id != "" {
		b.details.ContainerID = id
	} else {
		b.details.ContainerID = NormalizeID(d.ContainerID)
	}
	b.mu.Unlock()
	b.connected.Store(true)
}

func (b *Base) IsPhysical() bool    { return !b.placeholder && !b.Details().Virtual }
func (b *Base) IsVirtual() bool     { return b.placeholder || b.Details().Virtual }
func (b *Base) IsPlaceholder() bool { return b.placeholder }
func (b *Base) IsWireless() bool    { return b.Details().Wireless }

func (b *Base) IsReady() bool     { return b.ready.Load() }
func (b *Base) IsConnected() bool { return b.connected.Load() }

// MarkReady is called by the transport once the device produced its first frame.
func (b *Base) MarkReady() {
	if b.ready.Load() {
		return
	}
	b.sigMu.Lock()
	defer b.sigMu.Unlock()
	if !b.ready.Load() {
		close(b.readyCh)
		b.ready.Store(true)
	}
}

// MarkDisconnected is called by the transport when the node goes away.
func (b *Base) MarkDisconnected() {
	b.sigMu.Lock()
	defer b.sigMu.Unlock()
	b.connected.Store(false)
	if !b.discClosed {
		close(b.discCh)
		b.discClosed = true
	}
}

// Rearm starts a new ready/disconnect cycle for a transport that reopened
// its node.
func (b *Base) Rearm() {
	b.sigMu.Lock()
	defer b.sigMu.Unlock()
	b.ready.Store(false)
	b.connected.Store(true)
	b.readyCh = make(chan struct{})
	b.discCh = make(chan struct{})
	b.discClosed = false
}

func (b *Base) Ready() <-chan struct{} {
	b.sigMu.Lock()
	defer b.sigMu.Unlock()
	return b.readyCh
}

func (b *Base) Disconnected() <-chan struct{} {
	b.sigMu.Lock()
	defer b.sigMu.Unlock()
	return b.discCh
}

func (b *Base) IsBusy() bool      { return b.busy.Load() }
func (b *Base) SetBusy(busy bool) { b.busy.Store(busy) }

func (b *Base) IsHidden() bool { return b.hidden.Load() }

func (b *Base) Hide() error {
	if err := b.out.Cloak(true); err != nil {
		return fmt.Errorf("hide %s: %w", b.ID(), err)
	}
	b.hidden.Store(true)
	return nil
}

func (b *Base) Unhide() error {
	if err := b.out.Cloak(false); err != nil {
		return fmt.Errorf("unhide %s: %w", b.ID(), err)
	}
	b.hidden.Store(false)
	return nil
}

func (b *Base) IsPlugged() bool { return b.plugged.Load() }
func (b *Base) Plug()           { b.plugged.Store(true) }

func (b *Base) Unplug() {
	b.plugged.Store(false)
	b.injected.Store(0)
}

func (b *Base) SetLightColor(c Color) error {
	return b.out.WriteLight(c)
}

// SetVibrationStrength clamps percent to [0, 100].
func (b *Base) SetVibrationStrength(percent int) {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	b.strength.Store(int32(percent))
}

func (b *Base) VibrationStrength() int { return int(b.strength.Load()) }

func (b *Base) SetVibration(large, small uint8) error {
	s := int(b.strength.Load())
	return b.out.WriteVibration(uint8(int(large)*s/100), uint8(int(small)*s/100))
}

// Rumble pulses both motors briefly and returns without waiting for the stop.
func (b *Base) Rumble() error {
	if err := b.SetVibration(255, 255); err != nil {
		return err
	}
	time.AfterFunc(rumbleDuration, func() {
		_ = b.SetVibration(0, 0)
	})
	return nil
}

func (b *Base) Slot() uint8 { return uint8(b.slot.Load()) }

func (b *Base) AttachSlot(slot uint8) { b.slot.Store(uint32(slot)) }

func (b *Base) Subscribe(h InputHandler) func() {
	b.subMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
		})
	}
}

func (b *Base) InjectButton(btn Button, pressed bool) {
	for {
		old := b.injected.Load()
		next := old | uint32(btn)
		if !pressed {
			next = old &^ uint32(btn)
		}
		if b.injected.CompareAndSwap(old, next) {
			return
		}
	}
}

// Publish delivers a frame to subscribers while the controller is plugged.
func (b *Base) Publish(state State, motions map[uint8]Motion, dt float32) {
	if !b.plugged.Load() {
		return
	}
	state.Buttons |= Button(b.injected.Load())
	index := b.Slot()

	b.subMu.RLock()
	handlers := make([]InputHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		h(state, motions, dt, index)
	}
}

func (b *Base) Close() error {
	b.MarkDisconnected()
	return nil
}

func (b *Base) String() string {
	d := b.Details()
	name := d.Name
	if name == "" {
		name = b.variant.Model.String()
	}
	if d.ContainerID == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, d.ContainerID)
}

// NewPlaceholder returns the stand-in target used when nothing else is eligible.
func NewPlaceholder(m Model) Controller {
	b := NewBase(VariantOf(m), Details{Name: m.String() + " placeholder", Slot: SlotUnknown, Interface: -1}, nil)
	b.placeholder = true
	b.MarkReady()
	return b
}
