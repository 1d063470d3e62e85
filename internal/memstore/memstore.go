// Package memstore keeps users, connections and chat in process memory. It backs
// storage.driver=memory and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/chat"
	"github.com/srinumudili/CodeMate/internal/connection"
	"github.com/srinumudili/CodeMate/internal/user"
)

var (
	_ user.Store       = (*Store)(nil)
	_ connection.Store = (*Store)(nil)
	_ chat.Store       = (*Store)(nil)
)

type pair struct{ lo, hi uuid.UUID }

func pairOf(a, b uuid.UUID) pair {
	lo, hi := chat.NormalizePair(a, b)
	return pair{lo, hi}
}

type Store struct {
	mu sync.RWMutex

	users   map[uuid.UUID]*user.User
	byEmail map[string]uuid.UUID

	requests map[uuid.UUID]*connection.Request
	edges    map[pair]uuid.UUID

	conversations map[uuid.UUID]*chat.Conversation
	convByPair    map[pair]uuid.UUID
	messages      map[uuid.UUID]*chat.Message

	last time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*user.User),
		byEmail:       make(map[string]uuid.UUID),
		requests:      make(map[uuid.UUID]*connection.Request),
		edges:         make(map[pair]uuid.UUID),
		conversations: make(map[uuid.UUID]*chat.Conversation),
		convByPair:    make(map[pair]uuid.UUID),
		messages:      make(map[uuid.UUID]*chat.Message),
	}
}

// now is strictly increasing so orderings by timestamp are total. Callers hold mu.
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// ---------------------------------------------
// Users
// ---------------------------------------------

func copyUser(u *user.User) user.User {
	out := *u
	out.Skills = append(user.StringList{}, u.Skills...)
	return out
}

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return apperr.ErrEmailTaken
	}
	u.ID = uuid.New()
	u.Email = email
	u.CreatedAt = s.now()
	u.UpdatedAt = u.CreatedAt
	if u.Skills == nil {
		u.Skills = user.StringList{}
	}
	stored := copyUser(u)
	s.users[u.ID] = &stored
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	out := copyUser(s.users[id])
	return &out, nil
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []uuid.UUID) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]user.User, 0, len(ids))
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) UpdateProfile(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok {
		return apperr.ErrUserNotFound
	}
	email := strings.ToLower(u.Email)
	if owner, taken := s.byEmail[email]; taken && owner != u.ID {
		return apperr.ErrEmailTaken
	}
	delete(s.byEmail, cur.Email)
	s.byEmail[email] = u.ID

	u.Email = email
	u.Password = cur.Password
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = s.now()
	stored := copyUser(u)
	s.users[u.ID] = &stored
	return nil
}

func (s *Store) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apperr.ErrUserNotFound
	}
	u.Password = hash
	u.UpdatedAt = s.now()
	return nil
}

func (s *Store) ListUsersExcept(_ context.Context, exclude []uuid.UUID, offset, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skip := make(map[uuid.UUID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	all := make([]user.User, 0, len(s.users))
	for id, u := range s.users {
		if !skip[id] {
			all = append(all, copyUser(u))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return window(all, offset, limit), nil
}

// ---------------------------------------------
// Connections
// ---------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req *connection.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.FromUserID == req.ToUserID {
		return apperr.InvalidArgument("invalid connection request")
	}
	if _, ok := s.users[req.FromUserID]; !ok {
		return apperr.ErrUserNotFound
	}
	if _, ok := s.users[req.ToUserID]; !ok {
		return apperr.ErrUserNotFound
	}
	key := pairOf(req.FromUserID, req.ToUserID)
	if _, ok := s.edges[key]; ok {
		return apperr.ErrRequestExists
	}

	req.ID = uuid.New()
	req.CreatedAt = s.now()
	req.UpdatedAt = req.CreatedAt
	stored := *req
	s.requests[req.ID] = &stored
	s.edges[key] = req.ID
	return nil
}

func (s *Store) ReviewRequest(_ context.Context, requestID, toUserID uuid.UUID, status connection.Status) (*connection.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok || req.ToUserID != toUserID || req.Status != connection.StatusInterested {
		return nil, connection.ErrRequestNotFound
	}
	req.Status = status
	req.UpdatedAt = s.now()
	out := *req
	return &out, nil
}

func (s *Store) ListReceived(_ context.Context, userID uuid.UUID) ([]connection.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]connection.Request, 0)
	for _, r := range s.requests {
		if r.ToUserID == userID && r.Status == connection.StatusInterested {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AreConnected(_ context.Context, a, b uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.edges[pairOf(a, b)]
	if !ok {
		return false, nil
	}
	return s.requests[id].Status == connection.StatusAccepted, nil
}

func (s *Store) ConnectedIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.peers(userID, true), nil
}

func (s *Store) PeerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.peers(userID, false), nil
}

func (s *Store) peers(userID uuid.UUID, acceptedOnly bool) []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]uuid.UUID, 0)
	for _, r := range s.requests {
		if acceptedOnly && r.Status != connection.StatusAccepted {
			continue
		}
		switch userID {
		case r.FromUserID:
			out = append(out, r.ToUserID)
		case r.ToUserID:
			out = append(out, r.FromUserID)
		}
	}
	return out
}

// Connect stores an accepted edge between a and b. It is a seeding helper for tests and
// local runs.
func (s *Store) Connect(ctx context.Context, a, b uuid.UUID) error {
	req := &connection.Request{FromUserID: a, ToUserID: b, Status: connection.StatusAccepted}
	return s.CreateRequest(ctx, req)
}

// ---------------------------------------------
// Conversations and messages
// ---------------------------------------------

func copyMessage(m *chat.Message) chat.Message {
	out := *m
	out.Attachments = append(chat.Attachments{}, m.Attachments...)
	out.DeletedFor = append(chat.IDList{}, m.DeletedFor...)
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	return out
}

func copyConversation(c *chat.Conversation) chat.Conversation {
	out := *c
	if c.LastMessageID != nil {
		id := *c.LastMessageID
		out.LastMessageID = &id
	}
	return out
}

func (s *Store) GetOrCreateConversation(_ context.Context, a, b uuid.UUID) (*chat.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairOf(a, b)
	if id, ok := s.convByPair[key]; ok {
		out := copyConversation(s.conversations[id])
		return &out, false, nil
	}
	if _, ok := s.users[a]; !ok {
		return nil, false, apperr.ErrUserNotFound
	}
	if _, ok := s.users[b]; !ok {
		return nil, false, apperr.ErrUserNotFound
	}

	now := s.now()
	c := &chat.Conversation{ID: uuid.New(), ParticipantA: key.lo, ParticipantB: key.hi, CreatedAt: now, UpdatedAt: now}
	s.conversations[c.ID] = c
	s.convByPair[key] = c.ID
	out := copyConversation(c)
	return &out, true, nil
}

func (s *Store) GetConversation(_ context.Context, id uuid.UUID) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	out := copyConversation(c)
	return &out, nil
}

func (s *Store) ListConversations(_ context.Context, userID uuid.UUID, offset, limit int) ([]chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]chat.Conversation, 0)
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			all = append(all, copyConversation(c))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})
	return window(all, offset, limit), nil
}

func (s *Store) CountConversations(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			n++
		}
	}
	return n, nil
}

func (s *Store) InsertMessage(_ context.Context, m *chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return chat.ErrConversationNotFound
	}
	if strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0 {
		return apperr.ErrEmptyMessage
	}

	m.ID = uuid.New()
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	m.IsRead = false
	m.ReadAt = nil
	m.DeletedFor = chat.IDList{}
	if m.Attachments == nil {
		m.Attachments = chat.Attachments{}
	}
	stored := copyMessage(m)
	s.messages[m.ID] = &stored

	id := m.ID
	c.LastMessageID = &id
	c.UpdatedAt = m.CreatedAt
	return nil
}

func (s *Store) GetMessage(_ context.Context, id uuid.UUID) (*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	out := copyMessage(m)
	return &out, nil
}

// visible returns the conversation's messages viewer has not deleted, newest first.
// Callers hold mu.
func (s *Store) visible(conversationID, viewer uuid.UUID) []*chat.Message {
	out := make([]*chat.Message, 0)
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.DeletedBy(viewer) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *Store) ListMessages(_ context.Context, conversationID, viewer uuid.UUID, offset, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := window(s.visible(conversationID, viewer), offset, limit)
	out := make([]chat.Message, 0, len(page))
	for _, m := range page {
		out = append(out, copyMessage(m))
	}
	return out, nil
}

func (s *Store) CountMessages(_ context.Context, conversationID, viewer uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visible(conversationID, viewer)), nil
}

func (s *Store) CountUnread(_ context.Context, conversationID, userID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.visible(conversationID, userID) {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkRead(_ context.Context, conversationID, reader uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wanted map[uuid.UUID]bool
	if ids != nil {
		wanted = make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}

	now := s.now()
	changed := make([]uuid.UUID, 0)
	for id, m := range s.messages {
		if m.ConversationID != conversationID || m.ReceiverID != reader || m.IsRead {
			continue
		}
		if wanted != nil && !wanted[id] {
			continue
		}
		m.IsRead = true
		t := now
		m.ReadAt = &t
		m.UpdatedAt = now
		changed = append(changed, id)
	}
	return changed, nil
}

func (s *Store) SoftDelete(_ context.Context, messageID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return chat.ErrMessageNotFound
	}
	if !m.DeletedBy(userID) {
		m.DeletedFor = append(m.DeletedFor, userID)
	}
	return nil
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
