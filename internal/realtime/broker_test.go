package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func next(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("no envelope delivered")
		return Envelope{}
	}
}

func TestLocalBrokerLoopsBack(t *testing.T) {
	b := NewLocalBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	origin := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, Envelope{
			Groups:  []string{UserGroup(origin)},
			Exclude: origin,
			Payload: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}
	for i := 0; i < 3; i++ {
		env := next(t, sub)
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(env.Payload))
		assert.Equal(t, origin, env.Exclude)
	}

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	_, open := <-sub
	assert.False(t, open)

	// Once the buffer fills, a closed broker reports the closure instead of blocking.
	var last error
	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, Envelope{}); err != nil {
			last = err
		}
	}
	assert.EqualError(t, last, "broker closed")
}

func TestLocalBrokerPublishHonoursContext(t *testing.T) {
	b := NewLocalBroker(1)
	require.NoError(t, b.Publish(context.Background(), Envelope{}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, Envelope{}), context.DeadlineExceeded)
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return redis.NewClient(&redis.Options{Addr: endpoint})
}

func TestRedisBrokerFansOutAcrossInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	client := startRedis(t)
	log := zaptest.NewLogger(t)

	// Two brokers on one channel stand in for two server instances.
	pub := NewRedisBroker(client, "codemate:test", log)
	other := NewRedisBroker(redis.NewClient(&redis.Options{Addr: client.Options().Addr}), "codemate:test", log)
	t.Cleanup(func() {
		_ = other.Close()
		_ = pub.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := other.Subscribe(ctx)
	require.NoError(t, err)

	conv := uuid.New()
	sender := uuid.New()
	want := Envelope{
		Groups:  []string{ConversationGroup(conv), UserGroup(sender)},
		Exclude: sender,
		Payload: json.RawMessage(`{"event":"typing","data":{"isTyping":true}}`),
	}
	require.NoError(t, pub.Publish(ctx, want))

	got := next(t, sub)
	assert.Equal(t, want.Groups, got.Groups)
	assert.Equal(t, want.Exclude, got.Exclude)
	assert.JSONEq(t, string(want.Payload), string(got.Payload))

	// Malformed payloads on the channel are skipped.
	require.NoError(t, client.Publish(ctx, "codemate:test", "not json").Err())
	require.NoError(t, pub.Publish(ctx, Envelope{Groups: []string{"user:x"}, Payload: json.RawMessage(`{}`)}))
	assert.Equal(t, []string{"user:x"}, next(t, sub).Groups)

	cancel()
	select {
	case _, open := <-sub:
		assert.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not close after cancel")
	}
}
