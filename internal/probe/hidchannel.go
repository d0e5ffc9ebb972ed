package probe

import (
	"slices"
	"sync"

	"github.com/sstallion/go-hid"

	"github.com/MrSnakeDoc/padherd/internal/classify"
	"github.com/MrSnakeDoc/padherd/internal/controller"
)

// HIDChannel enumerates vendor-extended pads through hidapi.
type HIDChannel struct {
	vendors []uint16
	// enumerate is hid.Enumerate outside tests.
	enumerate func(vid, pid uint16, fn hid.EnumFunc) error

	mu      sync.Mutex
	handles []controller.Handle
	nextID  int
}

func NewHIDChannel() *HIDChannel {
	return &HIDChannel{
		vendors:   []uint16{classify.VendorSony, classify.VendorNintendo},
		enumerate: hid.Enumerate,
	}
}

func (c *HIDChannel) Connect() (int, error) {
	var found []*hid.DeviceInfo
	for _, vid := range c.vendors {
		err := c.enumerate(vid, 0, func(info *hid.DeviceInfo) error {
			if _, ok := classify.VendorModel(info.VendorID, info.ProductID); ok {
				found = append(found, info)
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, info := range found {
		if slices.ContainsFunc(c.handles, func(h controller.Handle) bool { return h.Path == info.Path }) {
			continue
		}
		model, _ := classify.VendorModel(info.VendorID, info.ProductID)
		c.nextID++
		c.handles = append(c.handles, controller.Handle{
			ID:     c.nextID,
			Path:   info.Path,
			Model:  model,
			Serial: info.SerialNbr,
		})
	}
	return len(c.handles), nil
}

func (c *HIDChannel) Handles() []controller.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.handles)
}

func (c *HIDChannel) Disconnect(h controller.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = slices.DeleteFunc(c.handles, func(x controller.Handle) bool { return x.ID == h.ID })
}

func (c *HIDChannel) DisconnectAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = nil
}
