package chat

import "github.com/hackmatch/hackmatch/pkg/database"

// Intent types accepted from clients over the push transport.
const (
	IntentJoinChannel    = "join-channel"
	IntentLeaveChannel   = "leave-channel"
	IntentTeamMessage    = "team-message"
	IntentDirectMessage  = "direct-message"
	IntentTypingStart    = "typing-start"
	IntentTypingStop     = "typing-stop"
	IntentPresenceUpdate = "presence-update"
)

// Event types pushed to clients.
const (
	EventTeamMessage    = "team-message"
	EventDirectMessage  = "direct-message"
	EventUserTyping     = "user-typing"
	EventPresenceUpdate = "presence-update"
	EventError          = "error"
)

// Intent is a client request read off the push transport, one of the closed
// set of intent types above. Unused fields stay empty.
type Intent struct {
	Type        string `json:"type"`
	Channel     string `json:"channel,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
	Content     string `json:"content,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Status      string `json:"status,omitempty"`
}

// MessageEvent carries a stored message (server-assigned id and timestamp
// included) to subscribers or direct-message peers.
type MessageEvent struct {
	Type    string            `json:"type"`
	Message *database.Message `json:"message"`
}

// TypingEvent is an ephemeral typing indicator, never persisted.
type TypingEvent struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	UserID  string `json:"userId"`
	Typing  bool   `json:"typing"`
}

// PresenceEvent is an ephemeral status broadcast, never persisted.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorEvent reports a failed intent back to its sender.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
