package wa

import (
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// handleProtocolEvent maps raw whatsmeow events onto transport events.
// The session client owns state transitions; the adapter only relays.
func (a *Adapter) handleProtocolEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		a.emit(MessageEvent{Message: parseLiveMessage(evt)})
	case *events.Connected:
		a.logger.Info("WhatsApp connected")
		a.emit(ConnectedEvent{})
	case *events.Disconnected:
		a.logger.Warn("WhatsApp connection lost")
		a.emit(FaultEvent{Reason: "connection lost"})
	case *events.LoggedOut:
		a.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		a.emit(FaultEvent{Reason: "logged out: " + evt.Reason.String()})
	case *events.StreamError:
		a.emit(FaultEvent{Reason: "stream error: " + evt.Code})
	}
}
