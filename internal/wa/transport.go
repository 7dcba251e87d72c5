package wa

import (
	"context"

	"github.com/pedrozc90/wabridge/internal/model"
)

// Transport is the connection the session client drives. It is
// implemented by the whatsmeow Adapter; tests substitute a fake.
type Transport interface {
	// HasCredentials reports whether stored credentials allow
	// connecting without a new pairing.
	HasCredentials() bool
	// Connect initiates the connection. When no credentials exist it
	// also starts the QR pairing flow; pairing progress arrives
	// through the event handler.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. Any in-flight pairing
	// attempt is abandoned as part of the teardown.
	Disconnect()
	// SendText sends a text message and returns the server message id.
	SendText(ctx context.Context, chatID, text string) (string, error)
	// Contacts fetches the full contact directory.
	Contacts(ctx context.Context) ([]model.Contact, error)
	// Groups fetches the joined group directory.
	Groups(ctx context.Context) ([]model.Group, error)
	// SetHandler registers the receiver for transport events. Must be
	// called before Connect. Events are delivered one at a time in
	// arrival order.
	SetHandler(func(TransportEvent))
	// Close releases transport resources after disconnect.
	Close() error
}

// Factory builds a fresh Transport. The client calls it on every
// connect from Disconnected or Error so a failed transport is never
// reused.
type Factory func(ctx context.Context) (Transport, error)

// TransportEvent is a marker for events emitted by a Transport.
type TransportEvent interface {
	transportEvent()
}

// PairingEvent carries a pairing challenge code to render for the user.
type PairingEvent struct {
	Code string
}

// ConnectedEvent signals the connection is established and authorized.
type ConnectedEvent struct{}

// MessageEvent carries one inbound provider message.
type MessageEvent struct {
	Message ParsedMessage
}

// FaultEvent signals an unrecoverable protocol or network failure.
type FaultEvent struct {
	Reason string
}

func (PairingEvent) transportEvent()   {}
func (ConnectedEvent) transportEvent() {}
func (MessageEvent) transportEvent()   {}
func (FaultEvent) transportEvent()     {}
