package resource

// Descriptor is an opaque number standing for a host stream handed to a
// guest engine. Descriptor 0 is reserved and always invalid.
type Descriptor uint32

// Kind tells which direction a descriptor may be used in.
type Kind uint8

const (
	KindReader Kind = iota + 1
	KindWriter
)

func (k Kind) String() string {
	switch k {
	case KindReader:
		return "reader"
	case KindWriter:
		return "writer"
	default:
		return "unknown"
	}
}

// Event types for descriptor lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

// Event represents a descriptor lifecycle event.
type Event struct {
	Value      any
	Descriptor Descriptor
	Kind       Kind
	Type       EventType
}

// Observer receives notifications about descriptor lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by values that need cleanup when their
// descriptor is removed.
type Dropper interface {
	Drop()
}
