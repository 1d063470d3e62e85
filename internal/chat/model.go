package chat

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/user"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Conversation is a one-to-one thread. ParticipantA always sorts before ParticipantB.
type Conversation struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ParticipantA  uuid.UUID  `db:"participant_a" json:"-"`
	ParticipantB  uuid.UUID  `db:"participant_b" json:"-"`
	LastMessageID *uuid.UUID `db:"last_message_id" json:"lastMessageId,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.ParticipantA == id || c.ParticipantB == id
}

// Other returns the participant that is not id.
func (c *Conversation) Other(id uuid.UUID) uuid.UUID {
	if c.ParticipantA == id {
		return c.ParticipantB
	}
	return c.ParticipantA
}

type Message struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ConversationID uuid.UUID   `db:"conversation_id" json:"conversationId"`
	SenderID       uuid.UUID   `db:"sender_id" json:"senderId"`
	ReceiverID     uuid.UUID   `db:"receiver_id" json:"receiverId"`
	Text           string      `db:"text" json:"text"`
	Attachments    Attachments `db:"attachments" json:"attachments"`
	IsRead         bool        `db:"is_read" json:"isRead"`
	ReadAt         *time.Time  `db:"read_at" json:"readAt"`
	DeletedFor     IDList      `db:"deleted_for" json:"deletedFor"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updatedAt"`
}

// DeletedBy reports whether id has soft-deleted the message.
func (m *Message) DeletedBy(id uuid.UUID) bool {
	for _, d := range m.DeletedFor {
		if d == id {
			return true
		}
	}
	return false
}

type Attachment struct {
	URL      string `json:"url"`
	FileType string `json:"fileType"`
}

// Attachments is stored as a JSONB array.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Attachments) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("Attachments: %w", err)
	}
	if raw == nil {
		*a = Attachments{}
		return nil
	}
	var out []Attachment
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*a = out
	return nil
}

// IDList scans a JSON array of UUIDs, as produced by json_agg.
type IDList []uuid.UUID

func (l *IDList) Scan(src any) error {
	raw, err := jsonBytes(src)
	if err != nil {
		return fmt.Errorf("IDList: %w", err)
	}
	if raw == nil {
		*l = IDList{}
		return nil
	}
	var out []uuid.UUID
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, fmt.Errorf("unsupported type %T", src)
}

// ---------------------------------------------
// 📨 Service inputs and results
// ---------------------------------------------

// SendInput addresses a message by conversation, by receiver, or both. When both are set
// and the conversation no longer exists, the receiver is used to resolve one.
type SendInput struct {
	SenderID       uuid.UUID
	ConversationID *uuid.UUID
	ReceiverID     *uuid.UUID
	Text           string
	Attachments    Attachments
}

type SendResult struct {
	Message      *Message
	Conversation *Conversation
	// Created is true when this send started the conversation.
	Created bool
}

type MessagePage struct {
	Messages []Message `json:"messages"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Total    int       `json:"totalMessages"`
	HasMore  bool      `json:"hasMore"`
	// MarkedRead lists messages this read marked, for receipts.
	MarkedRead []uuid.UUID `json:"-"`
}

// ConversationView is a conversation with its participants resolved.
type ConversationView struct {
	ID           uuid.UUID      `json:"id"`
	Participants []user.Summary `json:"participants"`
	LastMessage  *Message       `json:"lastMessage"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	ID               uuid.UUID    `json:"id"`
	OtherParticipant user.Summary `json:"otherParticipant"`
	LastMessage      *Message     `json:"lastMessage"`
	UnreadCount      int          `json:"unreadCount"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

type ConversationPage struct {
	Conversations []ConversationSummary `json:"conversations"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int                   `json:"total"`
	HasMore       bool                  `json:"hasMore"`
}

// ---------------------------------------------
// ⚡ Broadcast payloads
// ---------------------------------------------

// MessageEvent is the receiveMessage payload: the message, its sender and the conversation.
type MessageEvent struct {
	Message
	Sender           user.Summary      `json:"sender"`
	ConversationData *ConversationView `json:"conversationData"`
}

type ReadReceipt struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	MessageIDs     []uuid.UUID `json:"messageIds"`
	ReadBy         uuid.UUID   `json:"readBy"`
}

type DeletionNotice struct {
	MessageID      uuid.UUID `json:"messageId"`
	ConversationID uuid.UUID `json:"conversationId"`
	DeletedBy      uuid.UUID `json:"deletedBy"`
}
