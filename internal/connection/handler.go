package connection

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/httputil"
	myMiddleware "github.com/srinumudili/CodeMate/internal/middleware"
)

type Handler struct {
	Service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	return &Handler{Service: s, log: log}
}

// POST /request/send/{status}/{toUserId}
func (h *Handler) SendRequest(w http.ResponseWriter, r *http.Request) {
	toUserID, err := httputil.PathUUID(r, "toUserId")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	req, err := h.Service.SendRequest(r.Context(), myMiddleware.MustUserID(r.Context()), toUserID,
		Status(chi.URLParam(r, "status")))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Connection Request sent successfully!!",
		"data":    req,
	})
}

// POST /request/review/{status}/{requestId}
func (h *Handler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := httputil.PathUUID(r, "requestId")
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	req, err := h.Service.ReviewRequest(r.Context(), myMiddleware.MustUserID(r.Context()), requestID,
		Status(chi.URLParam(r, "status")))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Connection Request has been " + string(req.Status),
		"data":    req,
	})
}

func (h *Handler) ReceivedRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Service.ReceivedRequests(r.Context(), myMiddleware.MustUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Data Fetched Successfully",
		"data":    reqs,
	})
}

func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.Service.Connections(r.Context(), myMiddleware.MustUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": conns})
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	page := httputil.QueryInt(r, "page", 1)
	limit := httputil.QueryInt(r, "limit", defaultFeedLimit)

	users, err := h.Service.Feed(r.Context(), myMiddleware.MustUserID(r.Context()), page, limit)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Users fetched successfully!",
		"users":   users,
	})
}
