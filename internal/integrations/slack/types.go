package slack

import "errors"

// Conversation roles for model input.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one role-tagged turn of a conversation, in
// chronological order. Built once per request from raw Slack messages and
// passed to the model verbatim.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrNoMessages is returned when a thread fetch yields no messages.
// Callers must treat this as a hard stop, not a silent continue.
var ErrNoMessages = errors.New("no messages found in thread")
