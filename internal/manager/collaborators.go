package manager

import (
	"context"
	"strings"

	"github.com/MrSnakeDoc/padherd/internal/controller"
	"github.com/MrSnakeDoc/padherd/internal/settings"
)

// Settings is the policy store the manager reads and writes.
type Settings interface {
	Bool(key string) bool
	Int(key string) int
	String(key string) string
	Set(key string, value any) error
	Subscribe(fn settings.ChangeFunc) (unsubscribe func())
}

// Prober binds HID paths to vendor channel handles.
type Prober interface {
	Match(ctx context.Context, devicePath string) (*controller.Handle, error)
	Disconnect(h controller.Handle)
	DisconnectAll()
}

// PowerCycler swaps drivers and resets ports.
type PowerCycler interface {
	Load() error
	Suspend(id string) bool
	Resume() bool
	Cycle(id string) bool
	Pending() map[string]string
}

// Cloaker is the global switch for hiding controllers from other readers.
type Cloaker interface {
	SetCloaking(on bool)
}

// SlotReader resolves the player slot of an indexed controller.
type SlotReader interface {
	Slot(sysPath string) (uint8, bool)
}

type VirtualMode int

const (
	VirtualNone VirtualMode = iota
	VirtualXbox360
	VirtualDualShock4
)

func (v VirtualMode) String() string {
	switch v {
	case VirtualXbox360:
		return "xbox360"
	case VirtualDualShock4:
		return "ds4"
	default:
		return "none"
	}
}

func ParseVirtualMode(s string) VirtualMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xbox360", "x360":
		return VirtualXbox360
	case "ds4", "dualshock4":
		return VirtualDualShock4
	default:
		return VirtualNone
	}
}

// InputConsumer receives every mapped frame of the target.
type InputConsumer interface {
	UpdateInputs(state controller.State, motion controller.Motion)
}

// Virtual is the emulated controller other software reads.
type Virtual interface {
	InputConsumer
	Mode() VirtualMode
	Connected() bool
	Suspend()
	Resume()
}

type Theme interface {
	Accent() controller.Color
}

// HostDevice describes the machine the manager runs on.
type HostDevice interface {
	Manufacturer() string
	HasEmbeddedController() bool
	// Motion returns the host IMU sample, when it has one.
	Motion() (controller.Motion, bool)
}

// MotionFunc folds a motion sample into the frame (gyro aiming and the like).
type MotionFunc func(state *controller.State, motion controller.Motion, dt float32)

// LayoutFunc remaps a frame.
type LayoutFunc func(state controller.State) controller.State

// Process is a foreground application.
type Process struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// SensorSelection values.
const (
	SensorController = 0
	SensorHost       = 1
)

type nullVirtual struct{}

func (nullVirtual) UpdateInputs(controller.State, controller.Motion) {}
func (nullVirtual) Mode() VirtualMode                                 { return VirtualNone }
func (nullVirtual) Connected() bool                                   { return false }
func (nullVirtual) Suspend()                                          {}
func (nullVirtual) Resume()                                           {}

type noTheme struct{}

func (noTheme) Accent() controller.Color { return controller.Color{} }

type noHost struct{}

func (noHost) Manufacturer() string              { return "" }
func (noHost) HasEmbeddedController() bool       { return false }
func (noHost) Motion() (controller.Motion, bool) { return controller.Motion{}, false }
