package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one broadcast: an encoded frame addressed to the union of some groups,
// optionally skipping the session that caused it. A session in several of the groups
// receives the frame once.
type Envelope struct {
	Groups  []string        `json:"groups"`
	Exclude uuid.UUID       `json:"exclude"`
	Payload json.RawMessage `json:"payload"`
}

// Broker carries envelopes to every hub that may hold members of the group.
type Broker interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe returns the stream of envelopes. The channel closes when ctx ends.
	Subscribe(ctx context.Context) (<-chan Envelope, error)
	Close() error
}

// LocalBroker loops envelopes back into the same process.
type LocalBroker struct {
	ch        chan Envelope
	closeOnce sync.Once
	done      chan struct{}
}

func NewLocalBroker(buffer int) *LocalBroker {
	if buffer <= 0 {
		buffer = 1024
	}
	return &LocalBroker{ch: make(chan Envelope, buffer), done: make(chan struct{})}
}

func (b *LocalBroker) Publish(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-b.done:
		return errors.New("broker closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *LocalBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case env := <-b.ch:
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}
	}()
	return out, nil
}

func (b *LocalBroker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// RedisBroker fans envelopes out across instances through one pub/sub channel.
type RedisBroker struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroker(client *redis.Client, channel string, log *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = "codemate:realtime"
	}
	return &RedisBroker{client: client, channel: channel, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "redisBroker.Publish.Marshal")
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return errors.Wrap(err, "redisBroker.Publish")
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription to be confirmed so nothing published after this returns
	// is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "redisBroker.Subscribe")
	}

	out := make(chan Envelope)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("dropping malformed envelope", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
