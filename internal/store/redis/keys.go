package redis

const (
	// KeyInputs is the capped stream of mapped input frames
	KeyInputs = "padherd:inputs"
	// ChannelEvents carries lifecycle notifications as JSON
	ChannelEvents = "padherd:events"
	// KeyTarget mirrors the identity of the current target
	KeyTarget = "padherd:target"
)

// Event types published on ChannelEvents
const (
	EventPlugged     = "plugged"
	EventUnplugged   = "unplugged"
	EventSelected    = "selected"
	EventStatus      = "status"
	EventInitialized = "initialized"
)
