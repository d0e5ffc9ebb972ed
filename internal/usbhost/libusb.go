package usbhost

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/gousb"
)

// LibUSB resets ports through libusb.
type LibUSB struct{}

func (LibUSB) Reset(bus int, ports []int) error {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == bus && slices.Equal(desc.Path, ports)
	})
	defer func() {
		for _, d := range devs {
			_ = d.Close()
		}
	}()
	if len(devs) == 0 {
		if err != nil {
			return fmt.Errorf("open usb %d-%v: %w", bus, ports, err)
		}
		return fmt.Errorf("usb %d-%v: %w", bus, ports, gousb.ErrorNotFound)
	}

	var errs []error
	for _, d := range devs {
		if err := d.Reset(); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", d, err))
		}
	}
	return errors.Join(errs...)
}
