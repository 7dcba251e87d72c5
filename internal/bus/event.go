package bus

import "time"

// Event kinds published by the bridge. Listeners subscribe by namespace
// prefix, e.g. "session." or "message.".
const (
	KindStatus          = "session.status"
	KindPairing         = "session.pairing"
	KindError           = "session.error"
	KindMessageReceived = "message.received"
	KindMessageSent     = "message.sent"
	KindContacts        = "directory.contacts"
	KindGroups          = "directory.groups"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Now builds an event stamped with the current time.
func Now(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
