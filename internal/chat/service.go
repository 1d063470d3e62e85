package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/user"
)

// ConnectionChecker answers whether two identities hold an accepted connection.
type ConnectionChecker interface {
	AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// UserDirectory resolves identity snapshots for payloads.
type UserDirectory interface {
	Summaries(ctx context.Context, ids ...uuid.UUID) (map[uuid.UUID]user.Summary, error)
}

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	store       Store
	connections ConnectionChecker
	users       UserDirectory
	opts        Options
}

func NewService(store Store, connections ConnectionChecker, users UserDirectory, opts Options) *Service {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.DefaultPageSize <= 0 || opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = min(20, opts.MaxPageSize)
	}
	return &Service{store: store, connections: connections, users: users, opts: opts}
}

// NormalizePair orders two identities canonically by their string form, which matches
// Postgres uuid ordering.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(a.String(), b.String()) <= 0 {
		return a, b
	}
	return b, a
}

func (s *Service) clamp(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	return page, limit
}

// GetOrCreateConversation returns the single conversation between a and b, creating it
// when absent. The pair must be connected.
func (s *Service) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID) (*Conversation, bool, error) {
	if a == b {
		return nil, false, apperr.ErrSelfConversation
	}
	ok, err := s.connections.AreConnected(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, apperr.ErrNotConnected
	}

	lo, hi := NormalizePair(a, b)
	conv, created, err := s.store.GetOrCreateConversation(ctx, lo, hi)
	if apperr.Is(err, apperr.CodeConflict) {
		// A concurrent creator won; the second attempt reads its row.
		conv, _, err = s.store.GetOrCreateConversation(ctx, lo, hi)
		created = false
	}
	if err != nil {
		return nil, false, err
	}
	return conv, created, nil
}

// ConversationFor loads a conversation the requester participates in.
func (s *Service) ConversationFor(ctx context.Context, conversationID, requester uuid.UUID) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requester) {
		return nil, apperr.ErrAccessDenied
	}
	return conv, nil
}

// IsParticipant is false for unknown conversations.
func (s *Service) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

func (s *Service) SendMessage(ctx context.Context, in SendInput) (*SendResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Attachments) == 0 {
		return nil, apperr.ErrEmptyMessage
	}
	for _, a := range in.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return nil, apperr.InvalidArgument("attachment url is required")
		}
	}

	var (
		conv    *Conversation
		created bool
		err     error
	)
	switch {
	case in.ConversationID != nil:
		conv, err = s.store.GetConversation(ctx, *in.ConversationID)
		if apperr.Is(err, apperr.CodeNotFound) && in.ReceiverID != nil {
			conv, created, err = s.GetOrCreateConversation(ctx, in.SenderID, *in.ReceiverID)
		}
	case in.ReceiverID != nil:
		conv, created, err = s.GetOrCreateConversation(ctx, in.SenderID, *in.ReceiverID)
	default:
		return nil, apperr.InvalidArgument("conversationId or receiverId is required")
	}
	if err != nil {
		return nil, err
	}

	if !conv.HasParticipant(in.SenderID) {
		return nil, apperr.ErrAccessDenied
	}
	receiver := conv.Other(in.SenderID)

	connected, err := s.connections.AreConnected(ctx, in.SenderID, receiver)
	if err != nil {
		return nil, err
	}
	if !connected {
		return nil, apperr.ErrNotConnected
	}

	attachments := in.Attachments
	if attachments == nil {
		attachments = Attachments{}
	}
	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		ReceiverID:     receiver,
		Text:           text,
		Attachments:    attachments,
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	conv.LastMessageID = &msg.ID
	conv.UpdatedAt = msg.CreatedAt
	return &SendResult{Message: msg, Conversation: conv, Created: created}, nil
}

// GetMessages pages a conversation's history in chronological order. Reading the first
// page marks everything addressed to the requester as read.
func (s *Service) GetMessages(ctx context.Context, conversationID, requester uuid.UUID, page, limit int) (*MessagePage, error) {
	if _, err := s.ConversationFor(ctx, conversationID, requester); err != nil {
		return nil, err
	}
	page, limit = s.clamp(page, limit)

	var marked []uuid.UUID
	if page == 1 {
		var err error
		marked, err = s.store.MarkRead(ctx, conversationID, requester, nil)
		if err != nil {
			return nil, err
		}
	}

	msgs, err := s.store.ListMessages(ctx, conversationID, requester, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []Message{}
	}

	total, err := s.store.CountMessages(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}

	return &MessagePage{
		Messages:   msgs,
		Page:       page,
		Limit:      limit,
		Total:      total,
		HasMore:    page*limit < total,
		MarkedRead: marked,
	}, nil
}

// MarkRead marks the listed messages addressed to reader. Only ids that changed state
// are returned.
func (s *Service) MarkRead(ctx context.Context, conversationID, reader uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	if _, err := s.ConversationFor(ctx, conversationID, reader); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return s.store.MarkRead(ctx, conversationID, reader, ids)
}

// DeleteMessage hides a message from its sender. Only the sender may delete, and
// repeating it is a no-op.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requester uuid.UUID) (*Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requester {
		return nil, apperr.ErrAccessDenied
	}
	if err := s.store.SoftDelete(ctx, messageID, requester); err != nil {
		return nil, err
	}
	if !msg.DeletedBy(requester) {
		msg.DeletedFor = append(msg.DeletedFor, requester)
	}
	return msg, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, page, limit int) (*ConversationPage, error) {
	page, limit = s.clamp(page, limit)

	convs, err := s.store.ListConversations(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	others := make([]uuid.UUID, 0, len(convs))
	for i := range convs {
		others = append(others, convs[i].Other(userID))
	}
	summaries, err := s.users.Summaries(ctx, others...)
	if err != nil {
		return nil, err
	}

	out := make([]ConversationSummary, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		unread, err := s.store.CountUnread(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		last, err := s.lastMessage(ctx, c)
		if err != nil {
			return nil, err
		}
		if last != nil && last.DeletedBy(userID) {
			last = nil
		}
		other := c.Other(userID)
		summary, ok := summaries[other]
		if !ok {
			summary = user.Summary{ID: other}
		}
		out = append(out, ConversationSummary{
			ID:               c.ID,
			OtherParticipant: summary,
			LastMessage:      last,
			UnreadCount:      unread,
			CreatedAt:        c.CreatedAt,
			UpdatedAt:        c.UpdatedAt,
		})
	}

	return &ConversationPage{
		Conversations: out,
		Page:          page,
		Limit:         limit,
		Total:         total,
		HasMore:       page*limit < total,
	}, nil
}

// View resolves participants and the last message of conv.
func (s *Service) View(ctx context.Context, conv *Conversation) (*ConversationView, error) {
	summaries, err := s.users.Summaries(ctx, conv.ParticipantA, conv.ParticipantB)
	if err != nil {
		return nil, err
	}
	last, err := s.lastMessage(ctx, conv)
	if err != nil {
		return nil, err
	}

	participants := make([]user.Summary, 0, 2)
	for _, id := range []uuid.UUID{conv.ParticipantA, conv.ParticipantB} {
		if sm, ok := summaries[id]; ok {
			participants = append(participants, sm)
		} else {
			participants = append(participants, user.Summary{ID: id})
		}
	}
	return &ConversationView{
		ID:           conv.ID,
		Participants: participants,
		LastMessage:  last,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}, nil
}

// MessageEvent builds the receiveMessage payload for a completed send.
func (s *Service) MessageEvent(ctx context.Context, res *SendResult) (*MessageEvent, error) {
	view, err := s.View(ctx, res.Conversation)
	if err != nil {
		return nil, err
	}
	ev := &MessageEvent{Message: *res.Message, ConversationData: view, Sender: user.Summary{ID: res.Message.SenderID}}
	for _, p := range view.Participants {
		if p.ID == res.Message.SenderID {
			ev.Sender = p
		}
	}
	return ev, nil
}

func (s *Service) lastMessage(ctx context.Context, conv *Conversation) (*Message, error) {
	if conv.LastMessageID == nil {
		return nil, nil
	}
	m, err := s.store.GetMessage(ctx, *conv.LastMessageID)
	if apperr.Is(err, apperr.CodeNotFound) {
		return nil, nil
	}
	return m, err
}
