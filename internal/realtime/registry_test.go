package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srinumudili/CodeMate/internal/user"
)

func session(userID uuid.UUID, at time.Time) Session {
	return Session{ID: uuid.New(), UserID: userID, User: user.Summary{ID: userID}, ConnectedAt: at}
}

func TestRegistryFirstAndLastSession(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()
	now := time.Now()

	tab1 := session(alice, now)
	tab2 := session(alice, now.Add(time.Second))

	assert.True(t, r.Add(tab1))
	assert.False(t, r.Add(tab2))
	assert.False(t, r.Add(tab2), "re-adding a session is not a new first")
	assert.Equal(t, 2, r.Sessions(alice))
	assert.Equal(t, 1, r.Len())

	assert.False(t, r.Remove(alice, tab1.ID))
	assert.True(t, r.Online(alice))
	assert.True(t, r.Remove(alice, tab2.ID))
	assert.False(t, r.Online(alice))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRemoveUnknown(t *testing.T) {
	r := NewRegistry()
	alice := uuid.New()
	assert.False(t, r.Remove(alice, uuid.New()))

	s := session(alice, time.Now())
	r.Add(s)
	assert.False(t, r.Remove(alice, uuid.New()))
	assert.True(t, r.Online(alice))
}

func TestRegistrySnapshotOrder(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	alice, bob := uuid.New(), uuid.New()

	r.Add(session(bob, now))
	r.Add(session(alice, now.Add(time.Second)))
	r.Add(session(bob, now.Add(2*time.Second)))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, bob, snap[0].UserID)
	assert.Equal(t, alice, snap[1].UserID)
	for _, u := range snap {
		assert.True(t, u.IsOnline)
		assert.Nil(t, u.LastSeen)
	}

	r.Clear()
	assert.Empty(t, r.Snapshot())
}
