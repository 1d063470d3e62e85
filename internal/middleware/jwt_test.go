package myMiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/srinumudili/CodeMate/internal/apperr"
)

type stubValidator map[string]uuid.UUID

func (s stubValidator) ValidateToken(token string) (uuid.UUID, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return uuid.Nil, apperr.ErrTokenInvalid
}

func TestExtractTokenPrecedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "cookie"})
	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", ExtractToken(r, "token"))

	r.Header.Del("Authorization")
	assert.Equal(t, "cookie", ExtractToken(r, "token"))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, "query", ExtractToken(r, "token"))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, ExtractToken(r, "token"))
}

func TestHandleInjectsUserID(t *testing.T) {
	id := uuid.New()
	am := NewAuthMiddleware(stubValidator{"good": id}, "", zaptest.NewLogger(t))

	var seen uuid.UUID
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = MustUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "/profile/view", nil)
	r.AddCookie(&http.Cookie{Name: "token", Value: "good"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, id, seen)
}

func TestHandleRejects(t *testing.T) {
	am := NewAuthMiddleware(stubValidator{}, "token", zaptest.NewLogger(t))
	h := am.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	}))

	cases := map[string]string{
		"":            "No token provided",
		"Bearer nope": "Invalid token",
	}
	for header, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
		assert.Equal(t, want, body.Error.Message)
	}
}

func TestUserIDFromEmptyContext(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := UserIDFrom(r.Context())
	assert.False(t, ok)
	_, ok = UserIDFrom(WithUserID(r.Context(), uuid.Nil))
	assert.False(t, ok)
}
