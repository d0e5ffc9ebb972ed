package pad

import (
	"encoding/binary"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

// decodeFunc turns one raw input report into a frame. ok is false for
// reports that carry no input (acks, battery, other report ids).
type decodeFunc func(buf []byte) (st controller.State, m controller.Motion, ok bool)

// encodeFunc builds the output report carrying both lightbar and motors.
type encodeFunc func(c controller.Color, large, small uint8) []byte

func decoderFor(m controller.Model) decodeFunc {
	switch m {
	case controller.ModelDualShock4:
		return decodeDS4
	case controller.ModelDualSense:
		return decodeDualSense
	case controller.ModelProController:
		return decodePro
	case controller.ModelSteamController, controller.ModelSteamDeck:
		return decodeSteam
	default:
		return nil
	}
}

func encoderFor(m controller.Model) encodeFunc {
	switch m {
	case controller.ModelDualShock4:
		return encodeDS4
	case controller.ModelDualSense:
		return encodeDualSense
	default:
		return nil
	}
}

func stick(v byte) float32 {
	return (float32(v) - 128) / 128
}

func trigger(v byte) float32 {
	return float32(v) / 255
}

func le16(b []byte) int16 {
	return int16(binary.LittleEndian.Uint16(b))
}

func clampUnit(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Sony pads share the hat switch and face button nibble layout.
var sonyHat = [9]controller.Button{
	controller.ButtonDPadUp,
	controller.ButtonDPadUp | controller.ButtonDPadRight,
	controller.ButtonDPadRight,
	controller.ButtonDPadDown | controller.ButtonDPadRight,
	controller.ButtonDPadDown,
	controller.ButtonDPadDown | controller.ButtonDPadLeft,
	controller.ButtonDPadLeft,
	controller.ButtonDPadUp | controller.ButtonDPadLeft,
	0,
}

func sonyButtons(face, shoulder, system byte) controller.Button {
	var b controller.Button
	if hat := face & 0x0F; int(hat) < len(sonyHat) {
		b |= sonyHat[hat]
	}
	bits := []struct {
		v   byte
		m   byte
		btn controller.Button
	}{
		{face, 0x10, controller.ButtonX},
		{face, 0x20, controller.ButtonA},
		{face, 0x40, controller.ButtonB},
		{face, 0x80, controller.ButtonY},
		{shoulder, 0x01, controller.ButtonLeftShoulder},
		{shoulder, 0x02, controller.ButtonRightShoulder},
		{shoulder, 0x10, controller.ButtonBack},
		{shoulder, 0x20, controller.ButtonStart},
		{shoulder, 0x40, controller.ButtonLeftStick},
		{shoulder, 0x80, controller.ButtonRightStick},
		{system, 0x01, controller.ButtonSpecial},
		{system, 0x02, controller.ButtonTouchpad},
	}
	for _, bit := range bits {
		if bit.v&bit.m != 0 {
			b |= bit.btn
		}
	}
	return b
}

func sonyMotion(b []byte) controller.Motion {
	var m controller.Motion
	for i := 0; i < 3; i++ {
		m.Gyro[i] = float32(le16(b[i*2:])) / 16
		m.Accel[i] = float32(le16(b[6+i*2:])) / 8192
	}
	return m
}

// decodeDS4 handles USB report 0x01 and Bluetooth report 0x11.
func decodeDS4(buf []byte) (controller.State, controller.Motion, bool) {
	off := 0
	switch {
	case len(buf) >= 25 && buf[0] == 0x01:
	case len(buf) >= 27 && buf[0] == 0x11:
		off = 2
	default:
		return controller.State{}, controller.Motion{}, false
	}
	r := buf[off:]

	var st controller.State
	st.Axes[controller.AxisLeftX] = stick(r[1])
	st.Axes[controller.AxisLeftY] = stick(r[2])
	st.Axes[controller.AxisRightX] = stick(r[3])
	st.Axes[controller.AxisRightY] = stick(r[4])
	st.Buttons = sonyButtons(r[5], r[6], r[7])
	st.Axes[controller.AxisLeftTrigger] = trigger(r[8])
	st.Axes[controller.AxisRightTrigger] = trigger(r[9])
	return st, sonyMotion(r[13:25]), true
}

// decodeDualSense handles USB report 0x01 and Bluetooth report 0x31.
func decodeDualSense(buf []byte) (controller.State, controller.Motion, bool) {
	off := 0
	switch {
	case len(buf) >= 28 && buf[0] == 0x01:
	case len(buf) >= 29 && buf[0] == 0x31:
		off = 1
	default:
		return controller.State{}, controller.Motion{}, false
	}
	r := buf[off:]

	var st controller.State
	st.Axes[controller.AxisLeftX] = stick(r[1])
	st.Axes[controller.AxisLeftY] = stick(r[2])
	st.Axes[controller.AxisRightX] = stick(r[3])
	st.Axes[controller.AxisRightY] = stick(r[4])
	st.Axes[controller.AxisLeftTrigger] = trigger(r[5])
	st.Axes[controller.AxisRightTrigger] = trigger(r[6])
	st.Buttons = sonyButtons(r[8], r[9], r[10])
	if r[10]&0x04 != 0 {
		st.Buttons |= controller.ButtonExtra
	}
	return st, sonyMotion(r[16:28]), true
}

// decodePro handles the standard full report 0x30.
func decodePro(buf []byte) (controller.State, controller.Motion, bool) {
	if len(buf) < 12 || buf[0] != 0x30 {
		return controller.State{}, controller.Motion{}, false
	}

	var st controller.State
	bits := []struct {
		v   byte
		m   byte
		btn controller.Button
	}{
		{buf[3], 0x01, controller.ButtonX}, // Y
		{buf[3], 0x02, controller.ButtonY}, // X
		{buf[3], 0x04, controller.ButtonA}, // B
		{buf[3], 0x08, controller.ButtonB}, // A
		{buf[3], 0x40, controller.ButtonRightShoulder},
		{buf[4], 0x01, controller.ButtonBack},
		{buf[4], 0x02, controller.ButtonStart},
		{buf[4], 0x04, controller.ButtonRightStick},
		{buf[4], 0x08, controller.ButtonLeftStick},
		{buf[4], 0x10, controller.ButtonSpecial},
		{buf[4], 0x20, controller.ButtonExtra},
		{buf[5], 0x01, controller.ButtonDPadDown},
		{buf[5], 0x02, controller.ButtonDPadUp},
		{buf[5], 0x04, controller.ButtonDPadRight},
		{buf[5], 0x08, controller.ButtonDPadLeft},
		{buf[5], 0x40, controller.ButtonLeftShoulder},
	}
	for _, bit := range bits {
		if bit.v&bit.m != 0 {
			st.Buttons |= bit.btn
		}
	}
	if buf[3]&0x80 != 0 {
		st.Axes[controller.AxisRightTrigger] = 1
	}
	if buf[5]&0x80 != 0 {
		st.Axes[controller.AxisLeftTrigger] = 1
	}

	lx := int(buf[6]) | int(buf[7]&0x0F)<<8
	ly := int(buf[7]>>4) | int(buf[8])<<4
	rx := int(buf[9]) | int(buf[10]&0x0F)<<8
	ry := int(buf[10]>>4) | int(buf[11])<<4
	st.Axes[controller.AxisLeftX] = clampUnit(float32(lx-2048) / 2048)
	st.Axes[controller.AxisLeftY] = clampUnit(float32(2048-ly) / 2048)
	st.Axes[controller.AxisRightX] = clampUnit(float32(rx-2048) / 2048)
	st.Axes[controller.AxisRightY] = clampUnit(float32(2048-ry) / 2048)
	return st, controller.Motion{}, true
}

const (
	steamReportState     = 0x01
	steamReportDeckState = 0x09
)

var steamButtons = []struct {
	byteIdx int
	mask    byte
	btn     controller.Button
}{
	{8, 0x04, controller.ButtonRightShoulder},
	{8, 0x08, controller.ButtonLeftShoulder},
	{8, 0x10, controller.ButtonY},
	{8, 0x20, controller.ButtonB},
	{8, 0x40, controller.ButtonX},
	{8, 0x80, controller.ButtonA},
	{9, 0x01, controller.ButtonDPadUp},
	{9, 0x02, controller.ButtonDPadRight},
	{9, 0x04, controller.ButtonDPadLeft},
	{9, 0x08, controller.ButtonDPadDown},
	{9, 0x10, controller.ButtonBack},
	{9, 0x20, controller.ButtonSpecial},
	{9, 0x40, controller.ButtonStart},
	{10, 0x40, controller.ButtonLeftStick},
}

// decodeSteam handles the wired/wireless Steam Controller state report and
// the Steam Deck state report.
func decodeSteam(buf []byte) (controller.State, controller.Motion, bool) {
	if len(buf) < 24 || buf[0] != 0x01 {
		return controller.State{}, controller.Motion{}, false
	}

	var st controller.State
	for _, b := range steamButtons {
		if buf[b.byteIdx]&b.mask != 0 {
			st.Buttons |= b.btn
		}
	}

	switch buf[2] {
	case steamReportState:
		st.Axes[controller.AxisLeftTrigger] = trigger(buf[11])
		st.Axes[controller.AxisRightTrigger] = trigger(buf[12])
		st.Axes[controller.AxisLeftX] = float32(le16(buf[16:])) / 32768
		st.Axes[controller.AxisLeftY] = -float32(le16(buf[18:])) / 32768
		st.Axes[controller.AxisRightX] = float32(le16(buf[20:])) / 32768
		st.Axes[controller.AxisRightY] = -float32(le16(buf[22:])) / 32768
		return st, controller.Motion{}, true

	case steamReportDeckState:
		if len(buf) < 56 {
			return controller.State{}, controller.Motion{}, false
		}
		if buf[9]&0x80 != 0 || buf[10]&0x01 != 0 || buf[14]&0x04 != 0 {
			st.Buttons |= controller.ButtonExtra
		}
		if buf[11]&0x04 != 0 {
			st.Buttons |= controller.ButtonRightStick
		}
		st.Axes[controller.AxisLeftTrigger] = float32(le16(buf[44:])) / 32767
		st.Axes[controller.AxisRightTrigger] = float32(le16(buf[46:])) / 32767
		st.Axes[controller.AxisLeftX] = float32(le16(buf[48:])) / 32768
		st.Axes[controller.AxisLeftY] = -float32(le16(buf[50:])) / 32768
		st.Axes[controller.AxisRightX] = float32(le16(buf[52:])) / 32768
		st.Axes[controller.AxisRightY] = -float32(le16(buf[54:])) / 32768

		var m controller.Motion
		for i := 0; i < 3; i++ {
			m.Accel[i] = float32(le16(buf[24+i*2:])) / 16384
			m.Gyro[i] = float32(le16(buf[30+i*2:])) / 16
		}
		return st, m, true
	}
	return controller.State{}, controller.Motion{}, false
}

func encodeDS4(c controller.Color, large, small uint8) []byte {
	out := make([]byte, 32)
	out[0] = 0x05
	out[1] = 0xFF
	out[4] = small
	out[5] = large
	out[6], out[7], out[8] = c.R, c.G, c.B
	return out
}

func encodeDualSense(c controller.Color, large, small uint8) []byte {
	out := make([]byte, 48)
	out[0] = 0x02
	out[1] = 0x03 // compatible vibration + haptics select
	out[2] = 0x04 // lightbar control
	out[3] = small
	out[4] = large
	out[39] = 0x02 // lightbar setup
	out[45], out[46], out[47] = c.R, c.G, c.B
	return out
}
