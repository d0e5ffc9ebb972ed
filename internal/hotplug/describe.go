package hotplug

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

const (
	actionRemove = "remove"

	subsystemHIDRaw = "hidraw"
	subsystemInput  = "input"

	xpadDriver = "xpad"
)

var (
	usbDeviceName = regexp.MustCompile(`^\d+-\d+(\.\d+)*$`)
	hidDeviceName = regexp.MustCompile(`^[0-9A-Fa-f]{4}:[0-9A-Fa-f]{4}:[0-9A-Fa-f]{4}\.[0-9A-Fa-f]{4}$`)
)

// node is the part of a udev device describe reads.
type node interface {
	Devnode() string
	Syspath() string
	Subsystem() string
	PropertyValue(key string) string
	SysattrValue(key string) string
}

type source interface {
	node
	// parent returns the closest ancestor in subsystem, or nil. An empty
	// devtype matches any.
	parent(subsystem, devtype string) node
}

// describe turns a udev device into controller details. Devices that are
// neither a hidraw node nor the event node of an xpad pad are ignored.
func describe(src source, action string) (controller.Details, bool) {
	d := controller.Details{
		DevicePath: src.Devnode(),
		Slot:       controller.SlotUnknown,
		Interface:  -1,
	}

	switch src.Subsystem() {
	case subsystemHIDRaw:
		if !strings.HasPrefix(d.DevicePath, "/dev/hidraw") {
			return d, false
		}
		d.Transport = controller.TransportHID
	case subsystemInput:
		if !strings.HasPrefix(d.DevicePath, "/dev/input/event") {
			return d, false
		}
		if src.PropertyValue("ID_USB_DRIVER") != xpadDriver {
			return d, false
		}
		d.Transport = controller.TransportXUsb
	default:
		return d, false
	}

	d.ContainerID = containerID(src.Syspath())
	if d.ContainerID == "" {
		return d, false
	}

	d.VendorID = parseHex16(src.PropertyValue("ID_VENDOR_ID"))
	d.ProductID = parseHex16(src.PropertyValue("ID_MODEL_ID"))

	// sysfs attributes are gone once the device is removed
	if action == actionRemove {
		return d, true
	}

	if usb := src.parent("usb", "usb_device"); usb != nil {
		d.VendorID = parseHex16(usb.SysattrValue("idVendor"))
		d.ProductID = parseHex16(usb.SysattrValue("idProduct"))
		d.Name = strings.TrimSpace(usb.SysattrValue("product"))
	}
	if iface := src.parent("usb", "usb_interface"); iface != nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(iface.SysattrValue("bInterfaceNumber")), 16, 32); err == nil {
			d.Interface = int(n)
		}
		if d.Transport == controller.TransportXUsb {
			d.SysPath = iface.Syspath()
		}
	}

	if d.Transport == controller.TransportHID {
		if hid := src.parent("hid", ""); hid != nil {
			d.SysPath = hid.Syspath()
			if d.VendorID == 0 {
				d.VendorID, d.ProductID = parseHIDID(hid.PropertyValue("HID_ID"))
			}
			if d.Name == "" {
				d.Name = hid.PropertyValue("HID_NAME")
			}
		}
	}

	return d, true
}

// containerID returns the USB device name that owns syspath (the deepest
// "bus-port[.port]" component), or the HID device name for pads that are
// not on USB.
func containerID(syspath string) string {
	parts := strings.Split(strings.Trim(syspath, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if usbDeviceName.MatchString(parts[i]) {
			return parts[i]
		}
	}
	for i := len(parts) - 1; i >= 0; i-- {
		if hidDeviceName.MatchString(parts[i]) {
			return parts[i]
		}
	}
	return ""
}

// parseHIDID reads "bus:vendor:product" as found in HID_ID.
func parseHIDID(v string) (vendor, product uint16) {
	f := strings.Split(v, ":")
	if len(f) != 3 {
		return 0, 0
	}
	return parseHex16(f[1]), parseHex16(f[2])
}

func parseHex16(s string) uint16 {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0
	}
	return uint16(n)
}
