// Package bridge is the facade the web layer talks to: connection
// status and commands, message history, directory snapshots, rule CRUD
// and event subscription. Every command returns a structured result;
// nothing is thrown across this boundary.
package bridge

import (
	"context"

	"github.com/pedrozc90/wabridge/internal/bus"
	"github.com/pedrozc90/wabridge/internal/client"
	"github.com/pedrozc90/wabridge/internal/model"
	"github.com/pedrozc90/wabridge/internal/rules"
	"github.com/pedrozc90/wabridge/internal/status"
)

// Result is the outcome of a command endpoint.
type Result struct {
	OK     bool   `json:"success"`
	Detail string `json:"message"`
}

// StatusInfo describes the current session state. PairingCode is set
// only while a pairing challenge is pending.
type StatusInfo struct {
	Status      status.State `json:"status"`
	Detail      string       `json:"message,omitempty"`
	PairingCode string       `json:"qr_code,omitempty"`
}

// Bridge wires the session client, the rule store and the event bus
// into one surface for external callers.
type Bridge struct {
	client *client.Client
	rules  *rules.Store
	bus    *bus.Bus
}

// New creates a bridge over the given components.
func New(c *client.Client, r *rules.Store, b *bus.Bus) *Bridge {
	return &Bridge{client: c, rules: r, bus: b}
}

// Status returns the connection state and, while pairing, the current
// challenge code.
func (b *Bridge) Status() StatusInfo {
	info := StatusInfo{Status: b.client.Status()}
	if info.Status == status.AwaitingPairing {
		info.PairingCode = b.client.PairingCode()
	}
	return info
}

// Contacts returns the last-known contact snapshot.
func (b *Bridge) Contacts() []model.Contact { return b.client.Contacts() }

// Groups returns the last-known group snapshot.
func (b *Bridge) Groups() []model.Group { return b.client.Groups() }

// History returns the bounded message history, oldest first.
func (b *Bridge) History() []model.Message { return b.client.History() }

// Connect starts the connection sequence, or reports the active state.
func (b *Bridge) Connect(ctx context.Context) StatusInfo {
	state, detail := b.client.Connect(ctx)
	info := StatusInfo{Status: state, Detail: detail}
	if state == status.AwaitingPairing {
		info.PairingCode = b.client.PairingCode()
	}
	return info
}

// Disconnect tears the session down.
func (b *Bridge) Disconnect() Result {
	ok, detail := b.client.Disconnect()
	return Result{OK: ok, Detail: detail}
}

// Send sends a text message to a recipient.
func (b *Bridge) Send(ctx context.Context, recipientID, text string) Result {
	if recipientID == "" || text == "" {
		return Result{OK: false, Detail: "missing recipient ID or message text"}
	}
	ok, detail := b.client.SendText(ctx, recipientID, text)
	return Result{OK: ok, Detail: detail}
}

// ListRules returns the ordered rule set.
func (b *Bridge) ListRules() []rules.Rule { return b.rules.Rules() }

// CreateRule adds a rule and returns its generated id.
func (b *Bridge) CreateRule(name, triggerType, triggerPattern string, actions []rules.Action, active bool) string {
	return b.rules.Add(rules.Rule{
		Name:           name,
		TriggerType:    triggerType,
		TriggerPattern: triggerPattern,
		Actions:        actions,
		IsActive:       active,
	})
}

// ReplaceRule replaces the rule with the given id. Returns false when
// the id is unknown.
func (b *Bridge) ReplaceRule(id string, r rules.Rule) bool {
	return b.rules.Update(id, r)
}

// RemoveRule deletes the rule with the given id. Returns false when
// the id is unknown.
func (b *Bridge) RemoveRule(id string) bool {
	return b.rules.Delete(id)
}

// Listen attaches an event listener for the given namespace prefix
// ("" for all events). The returned function detaches it. Listeners
// receive only events published after attach.
func (b *Bridge) Listen(namespace string, bufSize int) (<-chan bus.Event, func()) {
	return b.bus.Subscribe(namespace, bufSize)
}
