// Package rules implements the automation engine: persisted
// trigger-to-action rules evaluated against every message flowing
// through the bridge.
package rules

import (
	"regexp"

	"github.com/pedrozc90/wabridge/internal/model"
)

// Trigger types a rule can match on.
const (
	TriggerMessageText = "message_text"
	TriggerSender      = "sender"
	TriggerGroup       = "group"
)

// Action types a rule can execute.
const (
	ActionReply   = "reply"
	ActionForward = "forward"
	ActionLog     = "log"
)

// DefaultLogFile is the log action target used when none is configured.
const DefaultLogFile = "message_log.txt"

// Action is a single step executed when a rule matches.
type Action struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Destination string `json:"destination,omitempty"`
	File        string `json:"file,omitempty"`
}

// Rule maps a trigger condition to an ordered action list. The ID is
// immutable after creation; updates replace the whole record.
type Rule struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	TriggerType    string   `json:"trigger_type"`
	TriggerPattern string   `json:"trigger_pattern"`
	Actions        []Action `json:"actions"`
	IsActive       bool     `json:"is_active"`
}

// Matches reports whether msg satisfies the rule's trigger condition.
// Inactive rules and unknown trigger types never match.
func (r Rule) Matches(msg model.Message) bool {
	if !r.IsActive {
		return false
	}
	switch r.TriggerType {
	case TriggerMessageText:
		// Case-insensitive search anywhere in the text; the pattern
		// itself controls anchoring. A pattern that does not compile
		// never matches.
		re, err := regexp.Compile("(?i)" + r.TriggerPattern)
		if err != nil {
			return false
		}
		return re.MatchString(msg.Text)
	case TriggerSender:
		if !msg.HasSender() {
			return false
		}
		return msg.SenderID == r.TriggerPattern || msg.SenderName == r.TriggerPattern
	case TriggerGroup:
		if !msg.IsGroup || msg.ChatID == "" {
			return false
		}
		return msg.ChatID == r.TriggerPattern || msg.GroupName == r.TriggerPattern
	}
	return false
}
