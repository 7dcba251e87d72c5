package model

import "time"

// Direction indicates whether a message was received or sent by this session.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Message is the normalized message shape shared by the session client,
// the automation engine and external listeners.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id,omitempty"`
	SenderName string    `json:"sender,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsGroup    bool      `json:"is_group"`
	GroupName  string    `json:"group_name,omitempty"`
	Direction  Direction `json:"direction"`
	Kind       string    `json:"type"`
}

// HasSender reports whether the sender is known to the directory.
func (m Message) HasSender() bool {
	return m.SenderID != "" || m.SenderName != ""
}

// DisplaySender returns the sender name for human-readable output,
// falling back to "Unknown" when the sender is not known.
func (m Message) DisplaySender() string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return "Unknown"
}
