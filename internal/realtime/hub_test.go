package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	h := NewHub(NewLocalBroker(0), zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	select {
	case <-h.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not start")
	}
	t.Cleanup(cancel)
	return h, cancel, done
}

func testClient(userID uuid.UUID, buffer int) *Client {
	return newClient(nil, nil, session(userID, time.Now()), buffer)
}

func recvFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame %s", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRegisterFirstAndLast(t *testing.T) {
	h, _, _ := startHub(t)
	ctx := context.Background()
	alice := uuid.New()
	tab1, tab2 := testClient(alice, 8), testClient(alice, 8)

	first, err := h.Register(ctx, tab1)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = h.Register(ctx, tab2)
	require.NoError(t, err)
	assert.False(t, first)

	online, err := h.OnlineUsers(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, alice, online[0].UserID)

	assert.False(t, h.Unregister(tab1))
	assert.False(t, h.Unregister(tab1), "second unregister is a no-op")
	assert.True(t, h.Unregister(tab2))

	online, err = h.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestHubPublishUnionDeliversOnce(t *testing.T) {
	h, _, _ := startHub(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	a, b := testClient(alice, 8), testClient(bob, 8)
	_, err := h.Register(ctx, a)
	require.NoError(t, err)
	_, err = h.Register(ctx, b)
	require.NoError(t, err)

	conv := ConversationGroup(uuid.New())
	require.NoError(t, h.Join(ctx, a, conv))

	groups := []string{conv, UserGroup(alice), UserGroup(bob)}
	require.NoError(t, h.Publish(ctx, groups, uuid.Nil, EventReceiveMessage, map[string]string{"text": "hi"}))

	assert.Equal(t, EventReceiveMessage, recvFrame(t, a).Event)
	assert.Equal(t, EventReceiveMessage, recvFrame(t, b).Event)
	assertSilent(t, a)
	assertSilent(t, b)
}

func TestHubPublishExcludesOrigin(t *testing.T) {
	h, _, _ := startHub(t)
	ctx := context.Background()
	a, b := testClient(uuid.New(), 8), testClient(uuid.New(), 8)
	conv := ConversationGroup(uuid.New())
	for _, c := range []*Client{a, b} {
		_, err := h.Register(ctx, c)
		require.NoError(t, err)
		require.NoError(t, h.Join(ctx, c, conv))
	}

	require.NoError(t, h.Publish(ctx, []string{conv}, a.session.ID, EventUserTyping, TypingNotice{IsTyping: true}))
	f := recvFrame(t, b)
	assert.Equal(t, EventUserTyping, f.Event)
	assertSilent(t, a)

	was, err := h.Leave(ctx, b, conv)
	require.NoError(t, err)
	assert.True(t, was)
	member, err := h.IsMember(ctx, b, conv)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestHubJoinRequiresRegistration(t *testing.T) {
	h, _, _ := startHub(t)
	c := testClient(uuid.New(), 8)
	assert.ErrorIs(t, h.Join(context.Background(), c, ConversationGroup(uuid.New())), ErrHubStopped)
}

func TestHubDropsSlowConsumer(t *testing.T) {
	h, _, _ := startHub(t)
	ctx := context.Background()
	slow, fast := testClient(uuid.New(), 1), testClient(uuid.New(), 8)
	for _, c := range []*Client{slow, fast} {
		_, err := h.Register(ctx, c)
		require.NoError(t, err)
	}
	slowGroup := []string{UserGroup(slow.session.UserID)}

	require.NoError(t, h.Publish(ctx, slowGroup, uuid.Nil, "first", nil))
	require.NoError(t, h.Publish(ctx, slowGroup, uuid.Nil, "second", nil))
	// Envelopes are delivered in order, so once fast sees this the overflow was handled.
	require.NoError(t, h.Publish(ctx, []string{UserGroup(fast.session.UserID)}, uuid.Nil, "barrier", nil))
	assert.Equal(t, "barrier", recvFrame(t, fast).Event)

	assert.Equal(t, "first", recvFrame(t, slow).Event)
	_, ok := <-slow.send
	assert.False(t, ok)

	// Unregistering after the drop must not close twice.
	assert.True(t, h.Unregister(slow))
}

func TestHubSendTargetsOneSession(t *testing.T) {
	h, _, _ := startHub(t)
	ctx := context.Background()
	alice := uuid.New()
	tab1, tab2 := testClient(alice, 8), testClient(alice, 8)
	for _, c := range []*Client{tab1, tab2} {
		_, err := h.Register(ctx, c)
		require.NoError(t, err)
	}

	require.NoError(t, h.Send(ctx, tab1, EventError, ErrorPayload{Message: "nope"}))
	f := recvFrame(t, tab1)
	assert.Equal(t, EventError, f.Event)
	assert.JSONEq(t, `{"message":"nope"}`, string(f.Data))
	assertSilent(t, tab2)

	// Sending to a departed session is dropped.
	h.Unregister(tab2)
	require.NoError(t, h.Send(ctx, tab2, EventError, ErrorPayload{Message: "late"}))
	_, ok := <-tab2.send
	assert.False(t, ok)
}

func TestHubShutdownClosesSessions(t *testing.T) {
	h, cancel, done := startHub(t)
	c := testClient(uuid.New(), 8)
	_, err := h.Register(context.Background(), c)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	_, ok := <-c.send
	assert.False(t, ok)

	_, err = h.OnlineUsers(context.Background())
	assert.ErrorIs(t, err, ErrHubStopped)
	_, err = h.Register(context.Background(), testClient(uuid.New(), 1))
	assert.ErrorIs(t, err, ErrHubStopped)
}
