package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/chat"
	"github.com/srinumudili/CodeMate/internal/user"
)

// Inbound events.
const (
	EventJoinChat           = "joinChat"
	EventLeaveChat          = "leaveChat"
	EventSendMessage        = "sendMessage"
	EventTyping             = "typing"
	EventMarkAsRead         = "markAsRead"
	EventDeleteMessage      = "deleteMessage"
	EventRequestOnlineUsers = "requestOnlineUsers"
	EventLogout             = "logout"
)

// Outbound events.
const (
	EventOnlineUsers      = "onlineUsers"
	EventUserStatusChange = "userStatusChange"
	EventUserJoined       = "userJoined"
	EventUserLeft         = "userLeft"
	EventReceiveMessage   = "receiveMessage"
	EventUserTyping       = "userTyping"
	EventMessagesRead     = "messagesRead"
	EventMessageDeleted   = "messageDeleted"
	EventError            = "error"
)

// Frame is the envelope of every websocket text message, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Group names.
func UserGroup(id uuid.UUID) string         { return "user:" + id.String() }
func ConversationGroup(id uuid.UUID) string { return "conversation:" + id.String() }

// ---------------------------------------------
// Inbound payloads
// ---------------------------------------------

type conversationRef struct {
	ConversationID uuid.UUID `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID *uuid.UUID       `json:"conversationId"`
	ReceiverID     *uuid.UUID       `json:"receiverId"`
	Text           string           `json:"text"`
	Attachments    chat.Attachments `json:"attachments"`
}

type typingPayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
}

type markAsReadPayload struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	MessageIDs     []uuid.UUID `json:"messageIds"`
}

type deleteMessagePayload struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
}

// ---------------------------------------------
// Outbound payloads
// ---------------------------------------------

type OnlineUser struct {
	UserID   uuid.UUID    `json:"userId"`
	User     user.Summary `json:"user"`
	IsOnline bool         `json:"isOnline"`
	LastSeen *time.Time   `json:"lastSeen"`
}

type StatusChange struct {
	UserID   uuid.UUID  `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

type Presence struct {
	UserID uuid.UUID    `json:"userId"`
	User   user.Summary `json:"user"`
}

type TypingNotice struct {
	ConversationID uuid.UUID    `json:"conversationId"`
	UserID         uuid.UUID    `json:"userId"`
	User           user.Summary `json:"user"`
	IsTyping       bool         `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
