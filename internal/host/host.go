// Package host describes the machine padherd runs on, from its DMI table.
package host

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MrSnakeDoc/padherd/internal/controller"
)

// Products whose built-in controller is driven as a hybrid embedded pad.
var embedded = map[string]bool{
	"JUPITER": true, // Steam Deck LCD
	"GALILEO": true, // Steam Deck OLED
}

// Device is a host read once at startup.
type Device struct {
	manufacturer string
	product      string
}

// Load reads sys_vendor and product_name under root (usually /sys). A
// missing DMI table yields an anonymous host.
func Load(root string) (*Device, error) {
	dir := filepath.Join(root, "class", "dmi", "id")
	vendor, err := readAttr(filepath.Join(dir, "sys_vendor"))
	if err != nil {
		return nil, err
	}
	product, err := readAttr(filepath.Join(dir, "product_name"))
	if err != nil {
		return nil, err
	}
	return &Device{manufacturer: vendor, product: product}, nil
}

func readAttr(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (d *Device) Manufacturer() string { return d.manufacturer }

func (d *Device) Product() string { return d.product }

func (d *Device) HasEmbeddedController() bool {
	return embedded[strings.ToUpper(d.product)]
}

// Motion is not available: no host IMU is read on this platform.
func (d *Device) Motion() (controller.Motion, bool) {
	return controller.Motion{}, false
}
