package events

import "time"

type Kind string

// Event is a domain event relayed to the push stream of a session.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
	// Payload returns the value serialized as the JSON body of the event's
	// frame.
	Payload() any
}

type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
