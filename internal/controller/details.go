package controller

import (
	"fmt"
	"strings"
)

type Transport uint8

const (
	TransportHID Transport = iota
	TransportXUsb
)

func (t Transport) String() string {
	if t == TransportXUsb {
		return "xusb"
	}
	return "hid"
}

// SlotUnknown is the slot of a controller the OS has not indexed yet.
const SlotUnknown uint8 = 255

// Details is what the hot-plug layer knows about a device node.
type Details struct {
	ContainerID string
	DevicePath  string
	SysPath     string
	Name        string
	VendorID    uint16
	ProductID   uint16
	Interface   int // -1 when the node is not bound to a USB interface
	Transport   Transport
	Dongle      bool
	Wireless    bool
	Virtual     bool
	Slot        uint8
}

func (d Details) String() string {
	return fmt.Sprintf("%s %04x:%04x mi=%d %s", d.Transport, d.VendorID, d.ProductID, d.Interface, d.ContainerID)
}

// NormalizeID is applied to container identities at every boundary.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Handle is a vendor channel binding produced by the probe.
type Handle struct {
	ID     int
	Path   string
	Model  Model
	Serial string
}
