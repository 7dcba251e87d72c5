package store

// Chat is an archived chat row.
type Chat struct {
	JID                string
	Name               string
	IsGroup            bool
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is an archived message row.
type Message struct {
	ID         int64
	ChatJID    string
	MsgID      string
	SenderJID  string
	SenderName string
	Body       string
	Kind       string
	Direction  string
	Timestamp  int64
}
