package wa

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"
)

// ParsedMessage is the provider message shape handed to the session
// client, which translates it into the shared model.Message.
type ParsedMessage struct {
	MsgID     string
	ChatJID   string
	SenderJID string
	PushName  string
	Body      string
	Kind      string
	IsGroup   bool
	FromMe    bool
	Timestamp time.Time
}

// parseLiveMessage normalizes a live whatsmeow message event.
func parseLiveMessage(evt *events.Message) ParsedMessage {
	return ParsedMessage{
		MsgID:     evt.Info.ID,
		ChatJID:   evt.Info.Chat.String(),
		SenderJID: evt.Info.Sender.ToNonAD().String(),
		PushName:  evt.Info.PushName,
		Body:      extractTextBody(evt.Message),
		Kind:      detectMessageKind(evt.Message),
		IsGroup:   evt.Info.IsGroup,
		FromMe:    evt.Info.IsFromMe,
		Timestamp: evt.Info.Timestamp,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageKind(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	case msg.GetProtocolMessage() != nil:
		return "system"
	default:
		return "unknown"
	}
}
