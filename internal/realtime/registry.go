package realtime

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/user"
)

// Session is one live connection of an identity.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	User        user.Summary
	ConnectedAt time.Time
}

// Registry maps identities to their live sessions. It is not safe for concurrent use;
// the Hub goroutine owns it.
type Registry struct {
	byUser map[uuid.UUID][]Session
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[uuid.UUID][]Session)}
}

// Add records s and reports whether it is the identity's first live session.
func (r *Registry) Add(s Session) bool {
	sessions := r.byUser[s.UserID]
	for _, existing := range sessions {
		if existing.ID == s.ID {
			return false
		}
	}
	r.byUser[s.UserID] = append(sessions, s)
	return len(sessions) == 0
}

// Remove drops a session and reports whether it was the identity's last one. Unknown
// sessions report false.
func (r *Registry) Remove(userID, sessionID uuid.UUID) bool {
	sessions, ok := r.byUser[userID]
	if !ok {
		return false
	}
	idx := -1
	for i, s := range sessions {
		if s.ID == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	sessions = append(sessions[:idx], sessions[idx+1:]...)
	if len(sessions) == 0 {
		delete(r.byUser, userID)
		return true
	}
	r.byUser[userID] = sessions
	return false
}

func (r *Registry) Online(userID uuid.UUID) bool {
	return len(r.byUser[userID]) > 0
}

func (r *Registry) Sessions(userID uuid.UUID) int {
	return len(r.byUser[userID])
}

// Len is the number of online identities.
func (r *Registry) Len() int {
	return len(r.byUser)
}

// Snapshot lists every online identity once, in first-connection order.
func (r *Registry) Snapshot() []OnlineUser {
	out := make([]OnlineUser, 0, len(r.byUser))
	firsts := make(map[uuid.UUID]time.Time, len(r.byUser))
	for id, sessions := range r.byUser {
		out = append(out, OnlineUser{UserID: id, User: sessions[0].User, IsOnline: true})
		firsts[id] = sessions[0].ConnectedAt
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := firsts[out[i].UserID], firsts[out[j].UserID]
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (r *Registry) Clear() {
	r.byUser = make(map[uuid.UUID][]Session)
}
