package realtime

import "github.com/google/uuid"

// Rooms maps broadcast groups to the sessions in them. Like Registry, it belongs to the
// Hub goroutine.
type Rooms struct {
	members   map[string]map[uuid.UUID]struct{}
	bySession map[uuid.UUID]map[string]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string]map[uuid.UUID]struct{}),
		bySession: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Join reports whether the session was newly added.
func (r *Rooms) Join(group string, sessionID uuid.UUID) bool {
	set, ok := r.members[group]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.members[group] = set
	}
	if _, already := set[sessionID]; already {
		return false
	}
	set[sessionID] = struct{}{}

	groups, ok := r.bySession[sessionID]
	if !ok {
		groups = make(map[string]struct{})
		r.bySession[sessionID] = groups
	}
	groups[group] = struct{}{}
	return true
}

// Leave reports whether the session was a member.
func (r *Rooms) Leave(group string, sessionID uuid.UUID) bool {
	set, ok := r.members[group]
	if !ok {
		return false
	}
	if _, member := set[sessionID]; !member {
		return false
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.members, group)
	}
	if groups, ok := r.bySession[sessionID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(r.bySession, sessionID)
		}
	}
	return true
}

// LeaveAll removes the session everywhere and returns the groups it was in.
func (r *Rooms) LeaveAll(sessionID uuid.UUID) []string {
	groups := r.bySession[sessionID]
	out := make([]string, 0, len(groups))
	for g := range groups {
		out = append(out, g)
	}
	for _, g := range out {
		r.Leave(g, sessionID)
	}
	return out
}

func (r *Rooms) IsMember(group string, sessionID uuid.UUID) bool {
	_, ok := r.members[group][sessionID]
	return ok
}

func (r *Rooms) Members(group string) []uuid.UUID {
	set := r.members[group]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Rooms) Clear() {
	r.members = make(map[string]map[uuid.UUID]struct{})
	r.bySession = make(map[uuid.UUID]map[string]struct{})
}
