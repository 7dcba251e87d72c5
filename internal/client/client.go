// Package client implements the session client: one WhatsApp
// connection, its state machine, the bounded message history and the
// contact/group snapshots.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/pedrozc90/wabridge/internal/bus"
	"github.com/pedrozc90/wabridge/internal/model"
	"github.com/pedrozc90/wabridge/internal/qr"
	"github.com/pedrozc90/wabridge/internal/status"
	"github.com/pedrozc90/wabridge/internal/wa"
	"go.uber.org/zap"
)

// HistoryCap bounds the in-memory message history; the oldest entry is
// evicted first.
const HistoryCap = 100

// Evaluator receives every inbound message for rule evaluation.
// Implemented by the automation engine.
type Evaluator interface {
	Evaluate(msg model.Message)
}

// PairingChallenge is the payload of session.pairing events: the raw
// code plus a base64 PNG rendering for web display.
type PairingChallenge struct {
	Code string `json:"code"`
	PNG  string `json:"png,omitempty"`
}

// Client owns one connection to WhatsApp. All shared state (pairing
// payload, history, directory snapshots) is guarded by one mutex; the
// lock is never held across transport I/O.
type Client struct {
	machine      *status.Machine
	bus          *bus.Bus
	logger       *zap.Logger
	newTransport wa.Factory
	evaluator    Evaluator

	mu        sync.Mutex
	transport wa.Transport
	pairing   string
	history   []model.Message
	contacts  []model.Contact
	groups    []model.Group
}

// New creates a session client. The transport factory is invoked on
// every connect from Disconnected or Error so a faulted transport is
// rebuilt from scratch.
func New(machine *status.Machine, b *bus.Bus, factory wa.Factory, logger *zap.Logger) *Client {
	return &Client{
		machine:      machine,
		bus:          b,
		logger:       logger,
		newTransport: factory,
		history:      make([]model.Message, 0, HistoryCap),
	}
}

// SetEvaluator wires the automation engine. Must be called before
// Connect; kept out of New to break the client/engine construction
// cycle.
func (c *Client) SetEvaluator(e Evaluator) {
	c.evaluator = e
}

// Status returns the current connection state.
func (c *Client) Status() status.State {
	return c.machine.Current()
}

// PairingCode returns the latest pairing challenge, or empty when no
// pairing is in progress.
func (c *Client) PairingCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairing
}

// History returns a copy of the message history, oldest first.
func (c *Client) History() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Contacts returns the last-fetched contact snapshot.
func (c *Client) Contacts() []model.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Contact, len(c.contacts))
	copy(out, c.contacts)
	return out
}

// Groups returns the last-fetched group snapshot.
func (c *Client) Groups() []model.Group {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// Connect starts the connection sequence. When a connection attempt is
// already in flight or established it is a no-op returning the current
// state; otherwise it builds a fresh transport, transitions to
// Connecting and completes asynchronously via transport events.
func (c *Client) Connect(ctx context.Context) (status.State, string) {
	current := c.machine.Current()
	if current.Active() {
		return current, "already in " + string(current) + " state"
	}

	if err := c.machine.Transition(status.Connecting); err != nil {
		// Lost the race against a concurrent connect; treat it the
		// same as observing the active state up front.
		cur := c.machine.Current()
		if cur.Active() {
			return cur, "already in " + string(cur) + " state"
		}
		return cur, err.Error()
	}

	transport, err := c.newTransport(ctx)
	if err != nil {
		c.fault("initialize transport: " + err.Error())
		return status.Error, err.Error()
	}
	transport.SetHandler(c.handleTransportEvent)

	c.mu.Lock()
	old := c.transport
	c.transport = transport
	c.mu.Unlock()

	if old != nil {
		// A faulted transport left over from a previous attempt.
		old.Disconnect()
		if err := old.Close(); err != nil {
			c.logger.Warn("stale transport close failed", zap.Error(err))
		}
	}

	// Connect blocks on the network; run it off the caller's path the
	// way the command surface expects.
	go func() {
		if err := transport.Connect(ctx); err != nil {
			c.fault("connect: " + err.Error())
		}
	}()

	return status.Connecting, "connecting to WhatsApp"
}

// Disconnect tears down the transport and returns to Disconnected.
// History and directory snapshots are retained as last-known state.
func (c *Client) Disconnect() (bool, string) {
	if c.machine.Current() == status.Disconnected {
		return false, "not connected"
	}

	c.mu.Lock()
	transport := c.transport
	c.transport = nil
	c.pairing = ""
	c.mu.Unlock()

	if transport != nil {
		transport.Disconnect()
		if err := transport.Close(); err != nil {
			c.logger.Warn("transport close failed", zap.Error(err))
		}
	}

	if err := c.machine.Transition(status.Disconnected); err != nil {
		c.logger.Warn("disconnect transition rejected", zap.Error(err))
	}
	return true, "disconnected"
}

// SendText sends a text message. Fails with a not-connected detail
// unless the session is Connected. On success a synthetic outbound
// message is appended to history and published.
func (c *Client) SendText(ctx context.Context, recipientID, text string) (bool, string) {
	if c.machine.Current() != status.Connected {
		return false, "not connected to WhatsApp"
	}

	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return false, "not connected to WhatsApp"
	}

	msgID, err := transport.SendText(ctx, recipientID, text)
	if err != nil {
		return false, err.Error()
	}

	sent := model.Message{
		ID:        msgID,
		ChatID:    recipientID,
		Text:      text,
		Timestamp: time.Now(),
		Direction: model.Outbound,
		Kind:      "text",
	}
	c.appendHistory(sent)
	c.bus.Publish(bus.Now(bus.KindMessageSent, sent))

	return true, "message sent"
}

// handleTransportEvent is the single entry point for the transport's
// asynchronous event stream.
func (c *Client) handleTransportEvent(evt wa.TransportEvent) {
	switch e := evt.(type) {
	case wa.PairingEvent:
		c.handlePairing(e.Code)
	case wa.ConnectedEvent:
		c.handleConnected()
	case wa.MessageEvent:
		c.handleMessage(e.Message)
	case wa.FaultEvent:
		c.fault(e.Reason)
	}
}

func (c *Client) handlePairing(code string) {
	if err := c.machine.Transition(status.AwaitingPairing); err != nil {
		// Refreshed QR codes arrive while already AwaitingPairing.
		if c.machine.Current() != status.AwaitingPairing {
			c.logger.Warn("unexpected pairing event", zap.Error(err))
			return
		}
	}

	c.mu.Lock()
	c.pairing = code
	c.mu.Unlock()

	challenge := PairingChallenge{Code: code}
	png, err := qr.PNGBase64(code)
	if err != nil {
		c.logger.Warn("failed to render pairing QR", zap.Error(err))
	} else {
		challenge.PNG = png
	}
	c.bus.Publish(bus.Now(bus.KindPairing, challenge))
}

func (c *Client) handleConnected() {
	if err := c.machine.Transition(status.Connected); err != nil {
		c.logger.Warn("unexpected connected event", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.pairing = ""
	c.mu.Unlock()

	go c.refreshDirectory(context.Background())
}

// refreshDirectory replaces the contact and group snapshots wholesale.
func (c *Client) refreshDirectory(ctx context.Context) {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return
	}

	contacts, err := transport.Contacts(ctx)
	if err != nil {
		c.logger.Warn("failed to load contacts", zap.Error(err))
	} else {
		c.mu.Lock()
		c.contacts = contacts
		c.mu.Unlock()
		c.bus.Publish(bus.Now(bus.KindContacts, contacts))
	}

	groups, err := transport.Groups(ctx)
	if err != nil {
		c.logger.Warn("failed to load groups", zap.Error(err))
	} else {
		c.mu.Lock()
		c.groups = groups
		c.mu.Unlock()
		c.bus.Publish(bus.Now(bus.KindGroups, groups))
	}
}

// handleMessage processes one inbound provider message: translate,
// append to history, publish, evaluate. Failures past the history
// append are contained so the receive loop always continues.
func (c *Client) handleMessage(pm wa.ParsedMessage) {
	msg := c.translate(pm)
	c.appendHistory(msg)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message processing failed",
				zap.String("msg_id", msg.ID), zap.Any("panic", r))
			c.bus.Publish(bus.Now(bus.KindError, "error processing message"))
		}
	}()

	c.bus.Publish(bus.Now(bus.KindMessageReceived, msg))

	if c.evaluator != nil && msg.Direction == model.Inbound {
		c.evaluator.Evaluate(msg)
	}
}

// translate converts the provider message shape into the shared model,
// resolving sender and group names from the directory snapshots.
func (c *Client) translate(pm wa.ParsedMessage) model.Message {
	direction := model.Inbound
	if pm.FromMe {
		direction = model.Outbound
	}

	msg := model.Message{
		ID:        pm.MsgID,
		ChatID:    pm.ChatJID,
		SenderID:  pm.SenderJID,
		Text:      pm.Body,
		Timestamp: pm.Timestamp,
		IsGroup:   pm.IsGroup,
		Direction: direction,
		Kind:      pm.Kind,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ct := range c.contacts {
		if ct.ID == pm.SenderJID {
			msg.SenderName = ct.Name
			break
		}
	}
	if msg.SenderName == "" {
		msg.SenderName = pm.PushName
	}
	if pm.IsGroup {
		msg.GroupName = pm.ChatJID
		for _, g := range c.groups {
			if g.ID == pm.ChatJID {
				msg.GroupName = g.Name
				break
			}
		}
	}
	return msg
}

// appendHistory appends one message applying the FIFO cap.
func (c *Client) appendHistory(msg model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == HistoryCap {
		copy(c.history, c.history[1:])
		c.history[HistoryCap-1] = msg
		return
	}
	c.history = append(c.history, msg)
}

// fault moves the session into Error and publishes the reason.
func (c *Client) fault(reason string) {
	c.logger.Error("transport fault", zap.String("reason", reason))
	if err := c.machine.Transition(status.Error); err != nil {
		c.logger.Warn("error transition rejected", zap.Error(err))
	}
	c.mu.Lock()
	c.pairing = ""
	c.mu.Unlock()
	c.bus.Publish(bus.Now(bus.KindError, reason))
}
