package dispatch

// Protocol is the event-schema generation in use for the process's HTTP
// stack. It is resolved exactly once, at subscription time; the two
// generations are never active together, which is what prevents a single
// call from being counted twice.
type Protocol int

const (
	// ProtocolModern is the start/stop/exception event set.
	ProtocolModern Protocol = iota

	// ProtocolLegacy is the separate request/response event set published
	// by older HTTP stacks.
	ProtocolLegacy
)

// String implements fmt.Stringer.
func (p Protocol) String() string {
	switch p {
	case ProtocolLegacy:
		return "legacy"
	default:
		return "modern"
	}
}

// ParseProtocol maps a config value to a Protocol. Anything but "legacy"
// selects the modern generation.
func ParseProtocol(s string) Protocol {
	if s == "legacy" {
		return ProtocolLegacy
	}
	return ProtocolModern
}

// Event names for the two schema generations.
const (
	EventStart     = "http.dependency.start"
	EventStop      = "http.dependency.stop"
	EventException = "http.dependency.exception"

	EventLegacyRequest  = "http.dependency.request"
	EventLegacyResponse = "http.dependency.response"
)
