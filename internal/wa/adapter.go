package wa

import (
	"context"
	"fmt"

	"github.com/pedrozc90/wabridge/internal/model"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter implements Transport over the whatsmeow client.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	handler   func(TransportEvent)
}

var _ Transport = (*Adapter)(nil)

// NewAdapter creates a WhatsApp transport backed by the credentials
// database at dbPath.
func NewAdapter(ctx context.Context, dbPath string, logger *zap.Logger) (*Adapter, error) {
	// Set device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wabridge", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	a := &Adapter{
		client:    whatsmeow.NewClient(deviceStore, nil),
		container: container,
		logger:    logger,
	}
	a.client.AddEventHandler(a.handleProtocolEvent)
	return a, nil
}

// HasCredentials reports whether the device store holds a paired identity.
func (a *Adapter) HasCredentials() bool {
	return a.client.Store.ID != nil
}

// SetHandler registers the transport event receiver. Must be called
// before Connect.
func (a *Adapter) SetHandler(h func(TransportEvent)) {
	a.handler = h
}

// Connect initiates the WhatsApp connection. Without stored
// credentials it obtains the QR channel first and relays pairing codes
// to the handler; the eventual Connected protocol event completes the
// flow either way.
func (a *Adapter) Connect(ctx context.Context) error {
	if a.HasCredentials() {
		a.logger.Info("connecting with stored credentials")
		return a.client.Connect()
	}

	// QR channel must be requested before Connect.
	qrChan, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get QR channel: %w", err)
	}
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go a.pumpPairing(qrChan)
	return nil
}

func (a *Adapter) pumpPairing(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			a.emit(PairingEvent{Code: item.Code})
		case "success":
			// The Connected protocol event follows; nothing to emit here.
			a.logger.Info("pairing confirmed")
			return
		case "timeout":
			a.emit(FaultEvent{Reason: "pairing timed out"})
			return
		default:
			if item.Error != nil {
				a.emit(FaultEvent{Reason: item.Error.Error()})
				return
			}
		}
	}
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Close releases the credentials store.
func (a *Adapter) Close() error {
	return a.container.Close()
}

// SendText sends a text message to the given chat. Returns the server
// message ID.
func (a *Adapter) SendText(ctx context.Context, chatID, text string) (string, error) {
	to, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// Contacts returns the full contact directory from the device store.
func (a *Adapter) Contacts(ctx context.Context) ([]model.Contact, error) {
	all, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}
	contacts := make([]model.Contact, 0, len(all))
	for jid, info := range all {
		normalized := jid.ToNonAD()
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		contacts = append(contacts, model.Contact{
			ID:     normalized.String(),
			Name:   name,
			Number: normalized.User,
		})
	}
	return contacts, nil
}

// Groups returns the joined groups directory.
func (a *Adapter) Groups(ctx context.Context) ([]model.Group, error) {
	joined, err := a.client.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	groups := make([]model.Group, 0, len(joined))
	for _, g := range joined {
		groups = append(groups, model.Group{
			ID:           g.JID.String(),
			Name:         g.GroupName.Name,
			Participants: len(g.Participants),
		})
	}
	return groups, nil
}

func (a *Adapter) emit(evt TransportEvent) {
	if a.handler != nil {
		a.handler(evt)
	}
}
