package controller

import "time"

type Button uint32

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonDPadUp
	ButtonDPadDown
	ButtonDPadLeft
	ButtonDPadRight
	ButtonBack
	ButtonStart
	ButtonLeftShoulder
	ButtonRightShoulder
	ButtonLeftStick
	ButtonRightStick
	ButtonTouchpad
	// ButtonSpecial is the guide/PS/home button.
	ButtonSpecial
	ButtonExtra
)

type Axis uint8

const (
	AxisLeftX Axis = iota
	AxisLeftY
	AxisRightX
	AxisRightY
	AxisLeftTrigger
	AxisRightTrigger
	AxisCount
)

// State is one input frame. Sticks are in [-1, 1], triggers in [0, 1].
type State struct {
	Buttons   Button
	Axes      [AxisCount]float32
	Timestamp time.Time
}

func (s State) Pressed(b Button) bool {
	return s.Buttons&b != 0
}

func (s *State) Set(b Button, pressed bool) {
	if pressed {
		s.Buttons |= b
	} else {
		s.Buttons &^= b
	}
}

// Muted returns an empty frame that only keeps the special button.
func (s State) Muted() State {
	out := State{Timestamp: s.Timestamp}
	out.Buttons = s.Buttons & ButtonSpecial
	return out
}

type Motion struct {
	Accel [3]float32
	Gyro  [3]float32
}

// InputHandler receives every published frame of a controller.
type InputHandler func(state State, motions map[uint8]Motion, dt float32, index uint8)

type Color struct {
	R, G, B uint8
}

func (c Color) IsZero() bool {
	return c == Color{}
}
