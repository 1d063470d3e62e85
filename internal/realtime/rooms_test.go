package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoomsJoinLeave(t *testing.T) {
	r := NewRooms()
	s1, s2 := uuid.New(), uuid.New()
	group := ConversationGroup(uuid.New())

	assert.True(t, r.Join(group, s1))
	assert.False(t, r.Join(group, s1))
	assert.True(t, r.Join(group, s2))
	assert.ElementsMatch(t, []uuid.UUID{s1, s2}, r.Members(group))

	assert.True(t, r.Leave(group, s1))
	assert.False(t, r.Leave(group, s1))
	assert.False(t, r.IsMember(group, s1))
	assert.True(t, r.IsMember(group, s2))

	assert.False(t, r.Leave("conversation:unknown", s2))
}

func TestRoomsLeaveAll(t *testing.T) {
	r := NewRooms()
	s := uuid.New()
	personal := UserGroup(uuid.New())
	conv := ConversationGroup(uuid.New())

	r.Join(personal, s)
	r.Join(conv, s)
	assert.ElementsMatch(t, []string{personal, conv}, r.LeaveAll(s))
	assert.Empty(t, r.Members(personal))
	assert.Empty(t, r.Members(conv))
	assert.Empty(t, r.LeaveAll(s))
}

func TestGroupNames(t *testing.T) {
	id := uuid.MustParse("7f1b8c1e-0000-4000-8000-000000000001")
	assert.Equal(t, "user:7f1b8c1e-0000-4000-8000-000000000001", UserGroup(id))
	assert.Equal(t, "conversation:7f1b8c1e-0000-4000-8000-000000000001", ConversationGroup(id))
}
