// Package usbhost drives USB devices through sysfs and libusb.
package usbhost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/padherd/internal/logger"
	"github.com/MrSnakeDoc/padherd/internal/powercycle"
)

const DefaultRoot = "/sys"

// PortResetter issues a USB port reset for a device addressed by bus and port chain.
type PortResetter interface {
	Reset(bus int, ports []int) error
}

// Sysfs is the Linux powercycle.Host. Identities are USB device names such
// as "1-2.3".
type Sysfs struct {
	root  string
	reset PortResetter
	log   logger.Logger
}

func NewSysfs(root string, reset PortResetter, log logger.Logger) *Sysfs {
	if root == "" {
		root = DefaultRoot
	}
	return &Sysfs{root: root, reset: reset, log: log.With(logger.Component("usbhost"))}
}

func (s *Sysfs) devicesDir() string { return filepath.Join(s.root, "bus", "usb", "devices") }
func (s *Sysfs) driversDir() string { return filepath.Join(s.root, "bus", "usb", "drivers") }

func (s *Sysfs) Lookup(id string) (powercycle.Node, error) {
	name := strings.ToLower(strings.TrimSpace(id))
	if name == "" {
		return nil, errors.New("empty device id")
	}
	dir := filepath.Join(s.devicesDir(), name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("usb device %s: %w", name, err)
	}
	return &node{host: s, name: name, dir: dir}, nil
}

type node struct {
	host *Sysfs
	name string
	dir  string
}

// Enumerator reports "USB" for devices on the usb bus.
func (n *node) Enumerator() string {
	target, err := filepath.EvalSymlinks(filepath.Join(n.dir, "subsystem"))
	if err != nil {
		return ""
	}
	if filepath.Base(target) == "usb" {
		return powercycle.EnumeratorUSB
	}
	return strings.ToUpper(filepath.Base(target))
}

// interfaces lists the interface directories ("1-2.3:1.0") of the device.
func (n *node) interfaces() []string {
	matches, _ := filepath.Glob(filepath.Join(n.dir, n.name+":*"))
	sort.Strings(matches)
	return matches
}

func (n *node) CurrentDriver() (string, error) {
	for _, iface := range n.interfaces() {
		target, err := os.Readlink(filepath.Join(iface, "driver"))
		if err == nil {
			return filepath.Base(target), nil
		}
	}
	return "", fmt.Errorf("%s: no interface bound to a driver", n.name)
}

// InstallNullDriver deauthorizes every interface, which unbinds its driver and
// keeps the kernel from probing it again.
func (n *node) InstallNullDriver() error {
	ifaces := n.interfaces()
	if len(ifaces) == 0 {
		return fmt.Errorf("%s: no interfaces", n.name)
	}
	for _, iface := range ifaces {
		if err := writeAttr(filepath.Join(iface, "authorized"), "0"); err != nil {
			return err
		}
	}
	return nil
}

func (n *node) CyclePort() error {
	if n.host.reset == nil {
		return errors.New("no port resetter configured")
	}
	bus, ports, err := parsePortPath(n.name)
	if err != nil {
		return err
	}
	return n.host.reset.Reset(bus, ports)
}

// InstallDriver re-authorizes the interfaces and binds them to driver,
// falling back to a generic probe when the driver refuses the bind.
func (n *node) InstallDriver(driver string) error {
	var errs []error
	for _, iface := range n.interfaces() {
		if err := writeAttr(filepath.Join(iface, "authorized"), "1"); err != nil {
			errs = append(errs, err)
			continue
		}
		ifName := filepath.Base(iface)
		bind := filepath.Join(n.host.driversDir(), driver, "bind")
		err := writeAttr(bind, ifName)
		if err == nil {
			continue
		}
		n.host.log.Debug("bind refused, probing",
			logger.String("interface", ifName), logger.String("driver", driver), logger.Error(err))
		if err := writeAttr(filepath.Join(n.host.root, "bus", "usb", "drivers_probe"), ifName); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Slot returns the joystick index of the input device under sysPath, the
// closest Linux analogue of an XInput user index.
func (s *Sysfs) Slot(sysPath string) (uint8, bool) {
	if sysPath == "" {
		return 0, false
	}
	patterns := []string{
		filepath.Join(sysPath, "js*"),
		filepath.Join(sysPath, "input", "input*", "js*"),
		filepath.Join(sysPath, "device", "js*"),
	}
	for _, p := range patterns {
		matches, _ := filepath.Glob(p)
		for _, m := range matches {
			if n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), "js")); err == nil && n >= 0 && n < 255 {
				return uint8(n), true
			}
		}
	}
	return 0, false
}

// Inhibit toggles the input inhibit switch of every input device under
// sysPath so that other readers stop receiving events.
func (s *Sysfs) Inhibit(sysPath string, on bool) error {
	matches, _ := filepath.Glob(filepath.Join(sysPath, "input", "input*", "inhibited"))
	if len(matches) == 0 {
		matches, _ = filepath.Glob(filepath.Join(sysPath, "device", "input", "input*", "inhibited"))
	}
	if len(matches) == 0 {
		return fmt.Errorf("%s: no inhibitable input device", sysPath)
	}
	val := "0"
	if on {
		val = "1"
	}
	var errs []error
	for _, m := range matches {
		if err := writeAttr(m, val); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// parsePortPath splits "1-2.3" into bus 1 and ports [2 3].
func parsePortPath(name string) (int, []int, error) {
	busPart, portPart, ok := strings.Cut(name, "-")
	if !ok {
		return 0, nil, fmt.Errorf("%q is not a usb port path", name)
	}
	bus, err := strconv.Atoi(busPart)
	if err != nil {
		return 0, nil, fmt.Errorf("%q: bad bus: %w", name, err)
	}
	var ports []int
	for _, p := range strings.Split(portPart, ".") {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, nil, fmt.Errorf("%q: bad port: %w", name, err)
		}
		ports = append(ports, v)
	}
	return bus, ports, nil
}

func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
