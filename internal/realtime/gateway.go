package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/chat"
	"github.com/srinumudili/CodeMate/internal/httputil"
	"github.com/srinumudili/CodeMate/internal/user"
)

// Authenticator resolves the identity a request carries a token for.
type Authenticator interface {
	Authenticate(r *http.Request) (uuid.UUID, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// ConnectionGraph lists the identities holding an accepted connection with userID.
type ConnectionGraph interface {
	ConnectedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type Options struct {
	MaxMessageSize int64
	SendBuffer     int
	EventTimeout   time.Duration
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Gateway upgrades authenticated requests to realtime sessions and relays their events.
// It also implements chat.Notifier so REST changes reach the same groups.
type Gateway struct {
	hub         *Hub
	chat        *chat.Service
	connections ConnectionGraph
	users       UserLookup
	auth        Authenticator
	log         *zap.Logger
	metrics     *Metrics
	opts        Options
	upgrader    websocket.Upgrader

	// sessions counts upgrade handlers and pumps still running.
	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

var _ chat.Notifier = (*Gateway)(nil)

func NewGateway(hub *Hub, chatSvc *chat.Service, connections ConnectionGraph, users UserLookup,
	auth Authenticator, log *zap.Logger, metrics *Metrics, opts Options) *Gateway {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 8 * 1024
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = 10 * time.Second
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Gateway{
		hub:         hub,
		chat:        chatSvc,
		connections: connections,
		users:       users,
		auth:        auth,
		log:         log,
		metrics:     metrics,
		opts:        opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (g *Gateway) Hub() *Hub { return g.hub }

// ServeWs handles GET /ws. Authentication failures are answered before the upgrade with
// 401 and the reason.
func (g *Gateway) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, err := g.auth.Authenticate(r)
	if err != nil {
		writeAuthError(w, apperr.MessageOf(err, apperr.ErrTokenInvalid.Error()))
		return
	}

	u, err := g.users.GetByID(r.Context(), userID)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			writeAuthError(w, "User not found")
			return
		}
		httputil.WriteError(w, g.log, err)
		return
	}

	if !g.begin() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Server is shutting down"})
		return
	}
	defer g.sessions.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(g, conn, Session{
		ID:          uuid.New(),
		UserID:      u.ID,
		User:        u.Summary(),
		ConnectedAt: time.Now().UTC(),
	}, g.opts.SendBuffer)

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.EventTimeout)
	defer cancel()

	first, err := g.hub.Register(ctx, client)
	if err != nil {
		g.log.Warn("failed to register session", zap.Error(err))
		conn.Close()
		return
	}
	g.sessions.Add(2)
	go client.writePump()

	g.log.Debug("session opened",
		zap.String("user_id", u.ID.String()),
		zap.String("session_id", client.session.ID.String()),
		zap.Bool("first", first))

	if err := g.sendOnlineUsers(ctx, client); err != nil {
		g.log.Warn("failed to send online users", zap.Error(err))
	}
	if first {
		g.broadcastStatus(ctx, u.ID, true, nil)
	}

	go client.readPump()
}

func (g *Gateway) begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return false
	}
	g.sessions.Add(1)
	return true
}

// Wait refuses new sessions and blocks until every open one has finished its pumps or
// ctx ends. Sessions end when the hub stops or their sockets close.
func (g *Gateway) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeAuthError(w http.ResponseWriter, reason string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error": "Authentication error: " + reason,
	})
}

// disconnect runs once per session, when its read pump exits.
func (g *Gateway) disconnect(c *Client) {
	last := g.hub.Unregister(c)
	g.log.Debug("session closed",
		zap.String("user_id", c.session.UserID.String()),
		zap.String("session_id", c.session.ID.String()),
		zap.Bool("last", last))
	if !last {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.opts.EventTimeout)
	defer cancel()
	now := time.Now().UTC()
	g.broadcastStatus(ctx, c.session.UserID, false, &now)
}

// broadcastStatus tells every accepted connection of userID about a presence change.
func (g *Gateway) broadcastStatus(ctx context.Context, userID uuid.UUID, online bool, lastSeen *time.Time) {
	ids, err := g.connections.ConnectedIDs(ctx, userID)
	if err != nil {
		g.log.Error("failed to load connections for presence", zap.Error(err), zap.String("user_id", userID.String()))
		return
	}
	if len(ids) == 0 {
		return
	}
	groups := make([]string, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, UserGroup(id))
	}
	err = g.hub.Publish(ctx, groups, uuid.Nil, EventUserStatusChange, StatusChange{
		UserID:   userID,
		IsOnline: online,
		LastSeen: lastSeen,
	})
	if err != nil {
		g.log.Error("failed to publish presence", zap.Error(err), zap.String("user_id", userID.String()))
	}
}

func (g *Gateway) sendOnlineUsers(ctx context.Context, c *Client) error {
	users, err := g.hub.OnlineUsers(ctx)
	if err != nil {
		return err
	}
	return g.hub.Send(ctx, c, EventOnlineUsers, users)
}

// ---------------------------------------------
// Event dispatch
// ---------------------------------------------

var failureMessages = map[string]string{
	EventJoinChat:      "Failed to join chat",
	EventLeaveChat:     "Failed to leave chat",
	EventSendMessage:   "Failed to send message",
	EventTyping:        "Failed to send typing status",
	EventMarkAsRead:    "Failed to mark messages as read",
	EventDeleteMessage: "Failed to delete message",
}

func (g *Gateway) dispatch(c *Client, frame Frame) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), g.opts.EventTimeout)
	defer cancel()

	var err error
	switch frame.Event {
	case EventJoinChat:
		err = g.joinChat(ctx, c, frame.Data)
	case EventLeaveChat:
		err = g.leaveChat(ctx, c, frame.Data)
	case EventSendMessage:
		err = g.sendMessage(ctx, c, frame.Data)
	case EventTyping:
		err = g.typing(ctx, c, frame.Data)
	case EventMarkAsRead:
		err = g.markAsRead(ctx, c, frame.Data)
	case EventDeleteMessage:
		err = g.deleteMessage(ctx, c, frame.Data)
	case EventRequestOnlineUsers:
		err = g.sendOnlineUsers(ctx, c)
	default:
		g.emitError(c, "Unknown event: "+frame.Event)
		return
	}
	g.metrics.observeEvent(frame.Event, time.Since(start))

	if err != nil {
		g.fail(c, frame.Event, err)
	}
}

// fail reports a handler error to the originating session only.
func (g *Gateway) fail(c *Client, event string, err error) {
	code := apperr.CodeOf(err)
	g.metrics.recordError(string(code))
	if code == apperr.CodeInternal {
		g.log.Error("realtime handler failed",
			zap.String("event", event),
			zap.String("user_id", c.session.UserID.String()),
			zap.Error(err))
	}
	fallback, ok := failureMessages[event]
	if !ok {
		fallback = "Something went wrong"
	}
	g.emitError(c, apperr.MessageOf(err, fallback))
}

func (g *Gateway) emitError(c *Client, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := g.hub.Send(ctx, c, EventError, ErrorPayload{Message: message}); err != nil {
		g.log.Debug("failed to emit error event", zap.Error(err))
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.InvalidArgument("Invalid payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.InvalidArgument("Invalid payload")
	}
	return nil
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, data json.RawMessage) error {
	var p conversationRef
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID == uuid.Nil {
		return apperr.InvalidArgument("conversationId is required")
	}

	ok, err := g.chat.IsParticipant(ctx, p.ConversationID, c.session.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrAccessDenied
	}

	group := ConversationGroup(p.ConversationID)
	if err := g.hub.Join(ctx, c, group); err != nil {
		return err
	}
	return g.hub.Publish(ctx, []string{group}, c.session.ID, EventUserJoined, Presence{
		UserID: c.session.UserID,
		User:   c.session.User,
	})
}

func (g *Gateway) leaveChat(ctx context.Context, c *Client, data json.RawMessage) error {
	var p conversationRef
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID == uuid.Nil {
		return nil
	}

	group := ConversationGroup(p.ConversationID)
	was, err := g.hub.Leave(ctx, c, group)
	if err != nil || !was {
		return err
	}
	return g.hub.Publish(ctx, []string{group}, c.session.ID, EventUserLeft, Presence{
		UserID: c.session.UserID,
		User:   c.session.User,
	})
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p sendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID != nil && *p.ConversationID == uuid.Nil {
		p.ConversationID = nil
	}

	res, err := g.chat.SendMessage(ctx, chat.SendInput{
		SenderID:       c.session.UserID,
		ConversationID: p.ConversationID,
		ReceiverID:     p.ReceiverID,
		Text:           p.Text,
		Attachments:    p.Attachments,
	})
	if err != nil {
		return err
	}
	g.metrics.RecordMessageSent("ws")

	ev, err := g.chat.MessageEvent(ctx, res)
	if err != nil {
		return err
	}
	return g.publishMessage(ctx, ev)
}

// Typing is dropped unless the session has joined the conversation.
func (g *Gateway) typing(ctx context.Context, c *Client, data json.RawMessage) error {
	var p typingPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID == uuid.Nil {
		return nil
	}
	group := ConversationGroup(p.ConversationID)
	joined, err := g.hub.IsMember(ctx, c, group)
	if err != nil || !joined {
		return err
	}
	return g.hub.Publish(ctx, []string{group}, c.session.ID, EventUserTyping, TypingNotice{
		ConversationID: p.ConversationID,
		UserID:         c.session.UserID,
		User:           c.session.User,
		IsTyping:       p.IsTyping,
	})
}

func (g *Gateway) markAsRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var p markAsReadPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.ConversationID == uuid.Nil {
		return apperr.InvalidArgument("conversationId is required")
	}

	changed, err := g.chat.MarkRead(ctx, p.ConversationID, c.session.UserID, p.MessageIDs)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	return g.hub.Publish(ctx, []string{ConversationGroup(p.ConversationID)}, c.session.ID, EventMessagesRead,
		chat.ReadReceipt{ConversationID: p.ConversationID, MessageIDs: changed, ReadBy: c.session.UserID})
}

func (g *Gateway) deleteMessage(ctx context.Context, c *Client, data json.RawMessage) error {
	var p deleteMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if p.MessageID == uuid.Nil {
		return apperr.InvalidArgument("messageId is required")
	}

	msg, err := g.chat.DeleteMessage(ctx, p.MessageID, c.session.UserID)
	if err != nil {
		return err
	}
	return g.hub.Publish(ctx, []string{ConversationGroup(msg.ConversationID)}, uuid.Nil, EventMessageDeleted,
		chat.DeletionNotice{MessageID: msg.ID, ConversationID: msg.ConversationID, DeletedBy: c.session.UserID})
}

// publishMessage sends receiveMessage to the conversation group and both personal groups.
func (g *Gateway) publishMessage(ctx context.Context, ev *chat.MessageEvent) error {
	groups := []string{
		ConversationGroup(ev.ConversationID),
		UserGroup(ev.SenderID),
		UserGroup(ev.ReceiverID),
	}
	return g.hub.Publish(ctx, groups, uuid.Nil, EventReceiveMessage, ev)
}

// ---------------------------------------------
// chat.Notifier
// ---------------------------------------------

func (g *Gateway) MessageSent(ctx context.Context, ev *chat.MessageEvent) {
	g.metrics.RecordMessageSent("rest")
	if err := g.publishMessage(ctx, ev); err != nil {
		g.log.Warn("failed to publish message", zap.Error(err), zap.String("message_id", ev.ID.String()))
	}
}

func (g *Gateway) MessagesRead(ctx context.Context, receipt chat.ReadReceipt) {
	err := g.hub.Publish(ctx, []string{ConversationGroup(receipt.ConversationID)}, uuid.Nil, EventMessagesRead, receipt)
	if err != nil {
		g.log.Warn("failed to publish read receipt", zap.Error(err))
	}
}

func (g *Gateway) MessageDeleted(ctx context.Context, notice chat.DeletionNotice) {
	err := g.hub.Publish(ctx, []string{ConversationGroup(notice.ConversationID)}, uuid.Nil, EventMessageDeleted, notice)
	if err != nil {
		g.log.Warn("failed to publish deletion", zap.Error(err))
	}
}
