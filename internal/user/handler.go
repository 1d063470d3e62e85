package user

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/httputil"
	myMiddleware "github.com/srinumudili/CodeMate/internal/middleware"
)

type CookieOptions struct {
	Name   string
	Secure bool
}

type Handler struct {
	Service *Service
	cookie  CookieOptions
	log     *zap.Logger
}

func NewHandler(s *Service, cookie CookieOptions, log *zap.Logger) *Handler {
	if cookie.Name == "" {
		cookie.Name = "token"
	}
	return &Handler{Service: s, cookie: cookie, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	h.setTokenCookie(w, res.AccessToken)
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	h.setTokenCookie(w, res.AccessToken)
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.sameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logout successful."})
}

func (h *Handler) ViewProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.GetByID(r.Context(), myMiddleware.MustUserID(r.Context()))
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) EditProfile(w http.ResponseWriter, r *http.Request) {
	var req EditProfileRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		httputil.WriteError(w, h.log, apperr.InvalidArgument("Unable to edit the profile data!!"))
		return
	}

	u, err := h.Service.EditProfile(r.Context(), myMiddleware.MustUserID(r.Context()), &req)
	if err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message": u.FirstName + " data updated successfully...",
		"data":    u,
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}

	if err := h.Service.ChangePassword(r.Context(), myMiddleware.MustUserID(r.Context()), &req); err != nil {
		httputil.WriteError(w, h.log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: h.sameSite(),
		MaxAge:   int(h.Service.TokenTTL().Seconds()),
	})
}

// Cross-site cookies need SameSite=None, which browsers only accept on secure cookies.
func (h *Handler) sameSite() http.SameSite {
	if h.cookie.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
