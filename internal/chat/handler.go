package chat

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/httputil"
	myMiddleware "github.com/srinumudili/CodeMate/internal/middleware"
)

// Notifier fans REST-originated changes out to realtime sessions.
type Notifier interface {
	MessageSent(ctx context.Context, ev *MessageEvent)
	MessagesRead(ctx context.Context, receipt ReadReceipt)
	MessageDeleted(ctx context.Context, notice DeletionNotice)
}

type nopNotifier struct{}

func (nopNotifier) MessageSent(context.Context, *MessageEvent) {}
func (nopNotifier) MessagesRead(context.Context, ReadReceipt) {}
func (nopNotifier) MessageDeleted(context.Context, DeletionNotice) {}

type Handler struct {
	service  *Service
	notifier Notifier
	log      *zap.Logger
}

func NewHandler(service *Service, notifier Notifier, log *zap.Logger) *Handler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Handler{service: service, notifier: notifier, log: log}
}

type createConversationRequest struct {
	ParticipantID uuid.UUID `json:"participantId"`
}

type sendMessageRequest struct {
	ConversationID *uuid.UUID  `json:"conversationId"`
	ReceiverID     *uuid.UUID  `json:"receiverId"`
	Text           string      `json:"text"`
	Attachments    Attachments `json:"attachments"`
}

// GET /conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	page := httputil.QueryInt(r, "page", 1)
	limit := httputil.QueryInt(r, "limit", 0)

	res, err := h.service.ListConversations(r.Context(), myMiddleware.MustUserID(r.Context()), page, limit)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// POST /conversation
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	if req.ParticipantID == uuid.Nil {
		httputil.WriteError(w, h.log, apperr.InvalidArgument("participantId is required"))
		return
	}

	conv, created, err := h.service.GetOrCreateConversation(r.Context(), myMiddleware.MustUserID(r.Context()), req.ParticipantID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	view, err := h.service.View(r.Context(), conv)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, map[string]any{"conversation": view})
}

// GET /chat/{targetId}: the conversation with a connection plus its latest page.
func (h *Handler) ChatWithUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := httputil.PathUUID(r, "targetId")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	me := myMiddleware.MustUserID(r.Context())

	conv, _, err := h.service.GetOrCreateConversation(r.Context(), me, targetID)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	view, err := h.service.View(r.Context(), conv)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	page, err := h.service.GetMessages(r.Context(), conv.ID, me,
		httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", 0))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	h.receipt(r.Context(), conv.ID, me, page.MarkedRead)

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"conversation":  view,
		"participants":  view.Participants,
		"messages":      page.Messages,
		"page":          page.Page,
		"totalMessages": page.Total,
		"hasMore":       page.HasMore,
	})
}

// GET /messages/{conversationId}
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, err := httputil.PathUUID(r, "conversationId")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	me := myMiddleware.MustUserID(r.Context())

	page, err := h.service.GetMessages(r.Context(), conversationID, me,
		httputil.QueryInt(r, "page", 1), httputil.QueryInt(r, "limit", 0))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	h.receipt(r.Context(), conversationID, me, page.MarkedRead)
	httputil.WriteJSON(w, http.StatusOK, page)
}

// POST /messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	res, err := h.service.SendMessage(r.Context(), SendInput{
		SenderID:       myMiddleware.MustUserID(r.Context()),
		ConversationID: req.ConversationID,
		ReceiverID:     req.ReceiverID,
		Text:           req.Text,
		Attachments:    req.Attachments,
	})
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	ev, err := h.service.MessageEvent(r.Context(), res)
	if err != nil {
		// Persisted already; the sender can still be told it succeeded.
		h.log.Warn("failed to build message event", zap.Error(err), zap.String("message_id", res.Message.ID.String()))
		httputil.WriteJSON(w, http.StatusCreated, map[string]any{"data": res.Message})
		return
	}
	h.notifier.MessageSent(r.Context(), ev)
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"data": ev})
}

// DELETE /messages/{messageId}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := httputil.PathUUID(r, "messageId")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	me := myMiddleware.MustUserID(r.Context())

	msg, err := h.service.DeleteMessage(r.Context(), messageID, me)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	h.notifier.MessageDeleted(r.Context(), DeletionNotice{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		DeletedBy:      me,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"message": "Message deleted", "data": msg})
}

func (h *Handler) receipt(ctx context.Context, conversationID, reader uuid.UUID, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	h.notifier.MessagesRead(ctx, ReadReceipt{ConversationID: conversationID, MessageIDs: ids, ReadBy: reader})
}
