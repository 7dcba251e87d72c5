// Package archive persists every message flowing through the bridge
// into the app-owned SQLite database, so history survives beyond the
// client's bounded in-memory ring.
package archive

import (
	"context"
	"fmt"

	"github.com/pedrozc90/wabridge/internal/bus"
	"github.com/pedrozc90/wabridge/internal/model"
	"github.com/pedrozc90/wabridge/internal/store"
	"go.uber.org/zap"
)

const previewLen = 100

// Archiver subscribes to "message." events on the bus and ingests them
// idempotently into the store.
type Archiver struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// New creates an archiver.
func New(db *store.DB, b *bus.Bus, logger *zap.Logger) *Archiver {
	return &Archiver{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to message events on the bus.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	ch, unsub := a.bus.Subscribe("message.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				a.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the archiver.
func (a *Archiver) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Archiver) handleEvent(evt bus.Event) {
	msg, ok := evt.Payload.(model.Message)
	if !ok {
		return
	}
	if err := a.Ingest(msg); err != nil {
		a.logger.Error("failed to archive message",
			zap.Error(err), zap.String("msg_id", msg.ID))
	}
}

// Ingest upserts one message and its chat row (idempotent).
func (a *Archiver) Ingest(msg model.Message) error {
	chatName := ""
	if msg.IsGroup {
		chatName = msg.GroupName
	}
	if err := a.db.UpsertChat(&store.Chat{
		JID:                msg.ChatID,
		Name:               chatName,
		IsGroup:            msg.IsGroup,
		LastMessageAt:      msg.Timestamp.UnixMilli(),
		LastMessagePreview: truncate(msg.Text, previewLen),
	}); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if err := a.db.UpsertMessage(&store.Message{
		ChatJID:    msg.ChatID,
		MsgID:      msg.ID,
		SenderJID:  msg.SenderID,
		SenderName: msg.SenderName,
		Body:       msg.Text,
		Kind:       msg.Kind,
		Direction:  string(msg.Direction),
		Timestamp:  msg.Timestamp.UnixMilli(),
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
