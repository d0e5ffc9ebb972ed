// Package classify maps a device's vendor/product identity to a controller variant.
package classify

import "github.com/MrSnakeDoc/padherd/internal/controller"

const (
	VendorValve    uint16 = 0x28DE
	VendorNintendo uint16 = 0x057E
	VendorLenovo   uint16 = 0x17EF
	VendorGameSir  uint16 = 0x3537
	VendorSony     uint16 = 0x054C
)

const anyInterface = -1

// rule matches one product. A zero model means "known but unsupported".
type rule struct {
	iface    int
	model    controller.Model
	dongle   bool
	wireless bool
}

type vendorRules struct {
	products map[uint16]rule
	// fallback applies to products missing from the table; nil means unsupported.
	fallback *rule
}

var hidTable = map[uint16]vendorRules{
	VendorValve: {products: map[uint16]rule{
		// MI 0 and 1 are the emulated keyboard and mouse.
		0x1102: {iface: 2, model: controller.ModelSteamController},
		// The dongle always exposes four pads on MI 1-4; only the first is driven.
		0x1142: {iface: 1, model: controller.ModelSteamController, wireless: true},
		// The embedded pad shares its device with keyboard and mouse nodes on MI 0 and 1.
		0x1205: {iface: 2, model: controller.ModelSteamDeck},
	}},
	VendorNintendo: {products: map[uint16]rule{
		0x2009: {iface: anyInterface},
	}},
	VendorLenovo: {products: map[uint16]rule{
		0x6184: {iface: anyInterface},
	}},
}

var xusbTable = map[uint16]vendorRules{
	VendorLenovo: {fallback: &rule{iface: anyInterface, model: controller.ModelLegion}},
	VendorGameSir: {
		products: map[uint16]rule{
			0x1099: {iface: anyInterface, model: controller.ModelTarantulaPro, dongle: true},
			0x103E: {iface: anyInterface, model: controller.ModelTarantulaPro, dongle: true},
			0x1050: {iface: anyInterface, model: controller.ModelTarantulaPro},
		},
		fallback: &rule{iface: anyInterface, model: controller.ModelTarantulaPro},
	},
}

var xusbDefault = rule{iface: anyInterface, model: controller.ModelXInput}

// Classify returns the variant for d and whether the device is supported.
// Matching rules may set the dongle and wireless flags on d.
func Classify(d *controller.Details) (controller.Variant, bool) {
	var (
		r  rule
		ok bool
	)
	switch d.Transport {
	case controller.TransportXUsb:
		r, ok = lookup(xusbTable, d)
		if !ok {
			r, ok = xusbDefault, true
		}
	default:
		r, ok = lookup(hidTable, d)
	}
	if !ok || r.model == controller.ModelUnknown {
		return controller.Variant{}, false
	}
	if r.iface != anyInterface && r.iface != d.Interface {
		return controller.Variant{}, false
	}

	if r.dongle {
		d.Dongle = true
	}
	if r.wireless {
		d.Wireless = true
	}
	return controller.VariantOf(r.model), true
}

func lookup(table map[uint16]vendorRules, d *controller.Details) (rule, bool) {
	vr, ok := table[d.VendorID]
	if !ok {
		return rule{}, false
	}
	if r, ok := vr.products[d.ProductID]; ok {
		return r, true
	}
	if vr.fallback != nil {
		return *vr.fallback, true
	}
	// A known vendor with an unlisted product is still unsupported.
	return rule{}, true
}

// VendorModel types a vendor-channel handle by its product id.
func VendorModel(vendor, product uint16) (controller.Model, bool) {
	switch vendor {
	case VendorSony:
		switch product {
		case 0x05C4, 0x09CC, 0x0BA0:
			return controller.ModelDualShock4, true
		case 0x0CE6, 0x0DF2:
			return controller.ModelDualSense, true
		}
	case VendorNintendo:
		if product == 0x2009 {
			return controller.ModelProController, true
		}
	}
	return controller.ModelUnknown, false
}
