package controller

import "errors"

var (
	ErrClosed      = errors.New("controller closed")
	ErrUnsupported = errors.New("not supported by this controller")
)

// Controller is one physical or virtual input device, or a placeholder.
type Controller interface {
	ID() string
	Variant() Variant
	Details() Details
	AttachDetails(d Details)

	IsPhysical() bool
	IsVirtual() bool
	IsPlaceholder() bool
	IsReady() bool
	IsConnected() bool
	IsWireless() bool

	IsBusy() bool
	SetBusy(busy bool)

	IsHidden() bool
	Hide() error
	Unhide() error

	IsPlugged() bool
	Plug()
	Unplug()

	SetLightColor(c Color) error
	SetVibrationStrength(percent int)
	SetVibration(large, small uint8) error
	Rumble() error

	Slot() uint8
	AttachSlot(slot uint8)

	Subscribe(h InputHandler) (unsubscribe func())
	InjectButton(b Button, pressed bool)

	Close() error
	String() string
}

// ReadySignaler is implemented by transports that announce readiness
// instead of being polled.
type ReadySignaler interface {
	Ready() <-chan struct{}
	Disconnected() <-chan struct{}
}

// Factory builds the concrete controller for a classified device.
type Factory interface {
	New(v Variant, d Details, h *Handle) (Controller, error)
}

// Output is the device-side half a transport plugs into Base.
type Output interface {
	WriteLight(c Color) error
	WriteVibration(large, small uint8) error
	Cloak(on bool) error
}
