package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pedrozc90/wabridge/internal/bus"
	"github.com/pedrozc90/wabridge/internal/model"
	"github.com/pedrozc90/wabridge/internal/status"
	"github.com/pedrozc90/wabridge/internal/wa"
	"go.uber.org/zap"
)

// fakeTransport implements wa.Transport for driving the client in tests.
type fakeTransport struct {
	mu          sync.Mutex
	handler     func(wa.TransportEvent)
	credentials bool
	connectErr  error
	sendErr     error
	connects    int32
	sent        []string
	contacts    []model.Contact
	groups      []model.Group
}

func (f *fakeTransport) HasCredentials() bool { return f.credentials }

func (f *fakeTransport) Connect(context.Context) error {
	atomic.AddInt32(&f.connects, 1)
	return f.connectErr
}

func (f *fakeTransport) Disconnect() {}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) SendText(_ context.Context, chatID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, chatID+"|"+text)
	id := fmt.Sprintf("srv-%d", len(f.sent))
	f.mu.Unlock()
	return id, nil
}

func (f *fakeTransport) Contacts(context.Context) ([]model.Contact, error) {
	return f.contacts, nil
}

func (f *fakeTransport) Groups(context.Context) ([]model.Group, error) {
	return f.groups, nil
}

func (f *fakeTransport) SetHandler(h func(wa.TransportEvent)) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTransport) emit(evt wa.TransportEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

type recordingEvaluator struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recordingEvaluator) Evaluate(msg model.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recordingEvaluator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func newTestClient(t *testing.T, ft *fakeTransport) (*Client, *bus.Bus) {
	t.Helper()
	b := bus.New()
	machine := status.NewMachine(b)
	factory := func(context.Context) (wa.Transport, error) { return ft, nil }
	return New(machine, b, factory, zap.NewNop()), b
}

func waitForState(t *testing.T, c *Client, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.Status(), want)
}

func connectAndPair(t *testing.T, c *Client, ft *fakeTransport) {
	t.Helper()
	state, _ := c.Connect(context.Background())
	if state != status.Connecting {
		t.Fatalf("Connect() = %s, want CONNECTING", state)
	}
	ft.emit(wa.ConnectedEvent{})
	waitForState(t, c, status.Connected)
}

func inbound(id, chatID, text string) wa.MessageEvent {
	return wa.MessageEvent{Message: wa.ParsedMessage{
		MsgID:     id,
		ChatJID:   chatID,
		SenderJID: "sender@s.whatsapp.net",
		Body:      text,
		Kind:      "text",
		Timestamp: time.Now(),
	}}
}

func TestConnectSequenceWithPairing(t *testing.T) {
	ft := &fakeTransport{}
	c, b := newTestClient(t, ft)
	ch, unsub := b.Subscribe("session.", 32)
	defer unsub()

	state, _ := c.Connect(context.Background())
	if state != status.Connecting {
		t.Fatalf("Connect() = %s, want CONNECTING", state)
	}

	ft.emit(wa.PairingEvent{Code: "2@pairing-code"})
	waitForState(t, c, status.AwaitingPairing)
	if c.PairingCode() != "2@pairing-code" {
		t.Errorf("PairingCode() = %q", c.PairingCode())
	}

	// A pairing event must have been published with a renderable payload.
	var sawPairing bool
	timeout := time.After(time.Second)
	for !sawPairing {
		select {
		case evt := <-ch:
			if evt.Kind == bus.KindPairing {
				challenge, ok := evt.Payload.(PairingChallenge)
				if !ok {
					t.Fatalf("pairing payload type = %T", evt.Payload)
				}
				if challenge.Code != "2@pairing-code" || challenge.PNG == "" {
					t.Errorf("challenge = %+v", challenge)
				}
				sawPairing = true
			}
		case <-timeout:
			t.Fatal("no pairing event published")
		}
	}

	ft.emit(wa.ConnectedEvent{})
	waitForState(t, c, status.Connected)
	if c.PairingCode() != "" {
		t.Error("pairing payload not cleared on Connected")
	}
}

func TestConnectAlreadyActiveIsNoOp(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)

	first, _ := c.Connect(context.Background())
	if first != status.Connecting {
		t.Fatalf("first Connect() = %s", first)
	}
	second, detail := c.Connect(context.Background())
	if second != status.Connecting {
		t.Errorf("second Connect() = %s, want CONNECTING", second)
	}
	if detail == "" {
		t.Error("second Connect() returned no detail")
	}

	// Allow the async connect goroutine to run.
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&ft.connects); n != 1 {
		t.Errorf("transport connect attempts = %d, want 1", n)
	}
}

func TestConnectFromErrorRetriesFromScratch(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)

	connectAndPair(t, c, ft)
	ft.emit(wa.FaultEvent{Reason: "stream error"})
	waitForState(t, c, status.Error)

	state, _ := c.Connect(context.Background())
	if state != status.Connecting {
		t.Fatalf("Connect() from Error = %s, want CONNECTING", state)
	}
	ft.emit(wa.ConnectedEvent{})
	waitForState(t, c, status.Connected)
}

func TestConnectSkipsPairingWithCredentials(t *testing.T) {
	ft := &fakeTransport{credentials: true}
	c, _ := newTestClient(t, ft)

	c.Connect(context.Background())
	ft.emit(wa.ConnectedEvent{})
	waitForState(t, c, status.Connected)
}

func TestDisconnect(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)

	if ok, _ := c.Disconnect(); ok {
		t.Error("Disconnect() from Disconnected returned ok=true")
	}

	connectAndPair(t, c, ft)
	ft.emit(inbound("m1", "chat@s.whatsapp.net", "hello"))
	waitFor(t, func() bool { return len(c.History()) == 1 })

	ok, _ := c.Disconnect()
	if !ok {
		t.Fatal("Disconnect() returned ok=false")
	}
	if c.Status() != status.Disconnected {
		t.Errorf("state = %s, want DISCONNECTED", c.Status())
	}

	// History survives disconnection as last-known snapshot.
	if len(c.History()) != 1 {
		t.Errorf("history lost on disconnect: %d entries", len(c.History()))
	}
}

func TestHistoryCap(t *testing.T) {
	ft := &fakeTransport{}
	c, _ := newTestClient(t, ft)
	connectAndPair(t, c, ft)

	for i := 0; i < HistoryCap+20; i++ {
		ft.emit(inbound(fmt.Sprintf("m%d", i), "chat@s.whatsapp.net", fmt.Sprintf("msg %d", i)))
	}

	history := c.History()
	if len(history) != HistoryCap {
		t.Fatalf("history length = %d, want %d", len(history), HistoryCap)
	}
	// The retained entries are exactly the most recent, in arrival order.
	if history[0].ID != "m20" {
		t.Errorf("oldest retained = %s, want m20", history[0].ID)
	}
	if history[HistoryCap-1].ID != fmt.Sprintf("m%d", HistoryCap+19) {
		t.Errorf("newest retained = %s", history[HistoryCap-1].ID)
	}
}

func TestSendText(t *testing.T) {
	ft := &fakeTransport{}
	c, b := newTestClient(t, ft)

	if ok, detail := c.SendText(context.Background(), "x@s.whatsapp.net", "hi"); ok {
		t.Errorf("send while disconnected returned ok (%s)", detail)
	}

	connectAndPair(t, c, ft)
	ch, unsub := b.Subscribe(bus.KindMessageSent, 8)
	defer unsub()

	ok, detail := c.SendText(context.Background(), "x@s.whatsapp.net", "hi there")
	if !ok {
		t.Fatalf("SendText failed: %s", detail)
	}

	history := c.History()
	if len(history) != 1 {
		t.Fatalf("history after send = %d entries", len(history))
	}
	out := history[0]
	if out.Direction != model.Outbound || out.ChatID != "x@s.whatsapp.net" || out.Text != "hi there" {
		t.Errorf("outbound history entry = %+v", out)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindMessageSent {
			t.Errorf("event kind = %q", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.sent event")
	}
}

func TestSendTransportFailure(t *testing.T) {
	ft := &fakeTransport{sendErr: errors.New("socket closed")}
	c, _ := newTestClient(t, ft)
	connectAndPair(t, c, ft)

	ok, detail := c.SendText(context.Background(), "x@s.whatsapp.net", "hi")
	if ok {
		t.Fatal("send reported ok despite transport error")
	}
	if detail == "" {
		t.Error("no failure detail")
	}
	if len(c.History()) != 0 {
		t.Error("failed send appended to history")
	}
}

func TestInboundMessageFlow(t *testing.T) {
	ft := &fakeTransport{
		contacts: []model.Contact{{ID: "sender@s.whatsapp.net", Name: "Alice"}},
		groups:   []model.Group{{ID: "team@g.us", Name: "Team"}},
	}
	c, b := newTestClient(t, ft)
	eval := &recordingEvaluator{}
	c.SetEvaluator(eval)

	ch, unsub := b.Subscribe(bus.KindMessageReceived, 8)
	defer unsub()

	connectAndPair(t, c, ft)
	waitFor(t, func() bool { return len(c.Contacts()) == 1 && len(c.Groups()) == 1 })

	ft.emit(wa.MessageEvent{Message: wa.ParsedMessage{
		MsgID:     "g1",
		ChatJID:   "team@g.us",
		SenderJID: "sender@s.whatsapp.net",
		Body:      "hello team",
		Kind:      "text",
		IsGroup:   true,
		Timestamp: time.Now(),
	}})

	select {
	case evt := <-ch:
		msg, ok := evt.Payload.(model.Message)
		if !ok {
			t.Fatalf("payload type = %T", evt.Payload)
		}
		if msg.SenderName != "Alice" {
			t.Errorf("sender not resolved from directory: %q", msg.SenderName)
		}
		if !msg.IsGroup || msg.GroupName != "Team" {
			t.Errorf("group not resolved: %+v", msg)
		}
		if msg.Direction != model.Inbound {
			t.Errorf("direction = %s", msg.Direction)
		}
	case <-time.After(time.Second):
		t.Fatal("no message.received event")
	}

	waitFor(t, func() bool { return eval.count() == 1 })
}

func TestDirectoryRefreshOnConnect(t *testing.T) {
	ft := &fakeTransport{
		contacts: []model.Contact{{ID: "a@s.whatsapp.net", Name: "A"}, {ID: "b@s.whatsapp.net", Name: "B"}},
		groups:   []model.Group{{ID: "g@g.us", Name: "G", Participants: 3}},
	}
	c, b := newTestClient(t, ft)
	ch, unsub := b.Subscribe("directory.", 8)
	defer unsub()

	connectAndPair(t, c, ft)
	waitFor(t, func() bool { return len(c.Contacts()) == 2 })

	kinds := map[string]bool{}
	timeout := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case evt := <-ch:
			kinds[evt.Kind] = true
		case <-timeout:
			t.Fatalf("directory events seen: %v", kinds)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
