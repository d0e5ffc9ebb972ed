package controller

// Family is the protocol family a controller speaks.
type Family uint8

const (
	FamilyXInput Family = iota
	FamilyGeneric
	FamilyVendor
)

func (f Family) String() string {
	switch f {
	case FamilyXInput:
		return "xinput"
	case FamilyGeneric:
		return "generic"
	case FamilyVendor:
		return "vendor"
	default:
		return "unknown"
	}
}

type Model uint8

const (
	ModelUnknown Model = iota
	ModelXInput
	ModelLegion
	ModelTarantulaPro
	ModelSteamController
	ModelSteamDeck
	ModelDualSense
	ModelDualShock4
	ModelProController
)

var modelNames = map[Model]string{
	ModelUnknown:         "unknown",
	ModelXInput:          "xinput",
	ModelLegion:          "legion",
	ModelTarantulaPro:    "tarantula-pro",
	ModelSteamController: "steam-controller",
	ModelSteamDeck:       "steam-deck",
	ModelDualSense:       "dualsense",
	ModelDualShock4:      "dualshock4",
	ModelProController:   "pro-controller",
}

func (m Model) String() string {
	if s, ok := modelNames[m]; ok {
		return s
	}
	return "unknown"
}

// Capabilities is the behaviour set attached to a variant.
type Capabilities uint16

const (
	// CapIndexed controllers get an OS slot index (XInput user index).
	CapIndexed Capabilities = 1 << iota
	// CapVendorChannel controllers are driven through the vendor probe channel.
	CapVendorChannel
	CapVendorRumble
	CapScaling
	// CapHybridEmbedded marks the host's built-in controller that the scenario timer arbitrates.
	CapHybridEmbedded
	// CapSoftCloakWireless controllers hide without a port cycle while wireless.
	CapSoftCloakWireless
)

func (c Capabilities) Has(flag Capabilities) bool {
	return c&flag == flag
}

// Variant is the tag every behaviour switch dispatches on.
type Variant struct {
	Family Family
	Model  Model
	Caps   Capabilities
}

func (v Variant) String() string {
	return v.Family.String() + "/" + v.Model.String()
}

var variants = map[Model]Variant{
	ModelXInput:          {Family: FamilyXInput, Model: ModelXInput, Caps: CapIndexed},
	ModelLegion:          {Family: FamilyXInput, Model: ModelLegion, Caps: CapIndexed | CapVendorRumble | CapSoftCloakWireless},
	ModelTarantulaPro:    {Family: FamilyXInput, Model: ModelTarantulaPro, Caps: CapIndexed},
	ModelSteamController: {Family: FamilyGeneric, Model: ModelSteamController, Caps: CapScaling},
	ModelSteamDeck:       {Family: FamilyGeneric, Model: ModelSteamDeck, Caps: CapScaling | CapHybridEmbedded},
	ModelDualSense:       {Family: FamilyVendor, Model: ModelDualSense, Caps: CapVendorChannel | CapVendorRumble},
	ModelDualShock4:      {Family: FamilyVendor, Model: ModelDualShock4, Caps: CapVendorChannel | CapVendorRumble},
	ModelProController:   {Family: FamilyVendor, Model: ModelProController, Caps: CapVendorChannel},
}

// VariantOf returns the canonical variant of a model.
func VariantOf(m Model) Variant {
	if v, ok := variants[m]; ok {
		return v
	}
	return Variant{Family: FamilyGeneric, Model: ModelUnknown}
}
