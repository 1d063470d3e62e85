package realtime

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("hub stopped")

type registration struct {
	client *Client
	reply  chan bool
}

type direct struct {
	client  *Client
	payload []byte
}

type membership struct {
	client *Client
	group  string
	reply  chan bool
}

// Hub is the central router. Run is the only goroutine that touches the registry, the
// rooms and the client map; everything else talks to it over channels.
type Hub struct {
	registry *Registry
	rooms    *Rooms
	clients  map[uuid.UUID]*Client

	register   chan registration
	unregister chan registration
	join       chan membership
	leave      chan membership
	member     chan membership
	snapshot   chan chan []OnlineUser
	direct     chan direct

	broker  Broker
	log     *zap.Logger
	metrics *Metrics

	started chan struct{}
	done    chan struct{}
}

func NewHub(broker Broker, log *zap.Logger, metrics *Metrics) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		rooms:      NewRooms(),
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan registration),
		unregister: make(chan registration),
		join:       make(chan membership),
		leave:      make(chan membership),
		member:     make(chan membership),
		snapshot:   make(chan chan []OnlineUser),
		direct:     make(chan direct),
		broker:     broker,
		log:        log,
		metrics:    metrics,
		started:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run subscribes to the broker and serves hub requests until ctx ends, then closes every
// session and clears presence.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	incoming, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}
	close(h.started)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case reg := <-h.register:
			c := reg.client
			h.clients[c.session.ID] = c
			h.rooms.Join(UserGroup(c.session.UserID), c.session.ID)
			first := h.registry.Add(c.session)
			h.metrics.incSession()
			h.metrics.setUsersOnline(h.registry.Len())
			reg.reply <- first

		case reg := <-h.unregister:
			reg.reply <- h.remove(reg.client)

		case m := <-h.join:
			_, ok := h.clients[m.client.session.ID]
			if ok {
				h.rooms.Join(m.group, m.client.session.ID)
			}
			m.reply <- ok

		case m := <-h.leave:
			m.reply <- h.rooms.Leave(m.group, m.client.session.ID)

		case m := <-h.member:
			m.reply <- h.rooms.IsMember(m.group, m.client.session.ID)

		case reply := <-h.snapshot:
			reply <- h.registry.Snapshot()

		case d := <-h.direct:
			if _, ok := h.clients[d.client.session.ID]; ok {
				h.enqueue(d.client, d.payload)
			}

		case env, ok := <-incoming:
			if !ok {
				h.shutdown()
				return nil
			}
			h.deliver(env)
		}
	}
}

// Started closes once the hub is subscribed and serving.
func (h *Hub) Started() <-chan struct{} { return h.started }

// Done closes once Run has returned and every session's send channel is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) deliver(env Envelope) {
	seen := make(map[uuid.UUID]struct{})
	for _, group := range env.Groups {
		for _, sid := range h.rooms.Members(group) {
			if sid == env.Exclude {
				continue
			}
			if _, dup := seen[sid]; dup {
				continue
			}
			seen[sid] = struct{}{}
			if c, ok := h.clients[sid]; ok {
				h.enqueue(c, env.Payload)
			}
		}
	}
}

func (h *Hub) enqueue(c *Client, payload []byte) {
	if c.sendClosed {
		return
	}
	select {
	case c.send <- payload:
	default:
		// Slow consumer: closing send makes the write pump hang up, and the read pump's
		// unregister then settles presence.
		h.log.Warn("dropping slow session",
			zap.String("session_id", c.session.ID.String()),
			zap.String("user_id", c.session.UserID.String()))
		c.sendClosed = true
		close(c.send)
	}
}

func (h *Hub) remove(c *Client) bool {
	if _, ok := h.clients[c.session.ID]; !ok {
		return false
	}
	delete(h.clients, c.session.ID)
	h.rooms.LeaveAll(c.session.ID)
	last := h.registry.Remove(c.session.UserID, c.session.ID)
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
	h.metrics.decSession()
	h.metrics.setUsersOnline(h.registry.Len())
	return last
}

func (h *Hub) shutdown() {
	for _, c := range h.clients {
		if !c.sendClosed {
			c.sendClosed = true
			close(c.send)
		}
		h.metrics.decSession()
	}
	h.clients = make(map[uuid.UUID]*Client)
	h.rooms.Clear()
	h.registry.Clear()
	h.metrics.setUsersOnline(0)
}

// Register adds the client and joins its personal group. It reports whether this is the
// identity's first live session.
func (h *Hub) Register(ctx context.Context, c *Client) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case h.register <- registration{client: c, reply: reply}:
	case <-h.done:
		return false, ErrHubStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return <-reply, nil
}

// Unregister removes the client from every group and reports whether it was the
// identity's last live session.
func (h *Hub) Unregister(c *Client) bool {
	reply := make(chan bool, 1)
	select {
	case h.unregister <- registration{client: c, reply: reply}:
	case <-h.done:
		return false
	}
	return <-reply
}

func (h *Hub) Join(ctx context.Context, c *Client, group string) error {
	ok, err := h.ask(ctx, h.join, c, group)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHubStopped
	}
	return nil
}

// Leave reports whether the client was in the group.
func (h *Hub) Leave(ctx context.Context, c *Client, group string) (bool, error) {
	return h.ask(ctx, h.leave, c, group)
}

func (h *Hub) IsMember(ctx context.Context, c *Client, group string) (bool, error) {
	return h.ask(ctx, h.member, c, group)
}

func (h *Hub) ask(ctx context.Context, ch chan membership, c *Client, group string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case ch <- membership{client: c, group: group, reply: reply}:
	case <-h.done:
		return false, ErrHubStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return <-reply, nil
}

func (h *Hub) OnlineUsers(ctx context.Context) ([]OnlineUser, error) {
	reply := make(chan []OnlineUser, 1)
	select {
	case h.snapshot <- reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-reply, nil
}

// Publish encodes an event and hands it to the broker for every hub holding members of
// groups. exclude may be uuid.Nil.
func (h *Hub) Publish(ctx context.Context, groups []string, exclude uuid.UUID, event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	return h.broker.Publish(ctx, Envelope{Groups: groups, Exclude: exclude, Payload: payload})
}

// Send queues an event for one local session only.
func (h *Hub) Send(ctx context.Context, c *Client, event string, data any) error {
	payload, err := encodeFrame(event, data)
	if err != nil {
		return err
	}
	select {
	case h.direct <- direct{client: c, payload: payload}:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
