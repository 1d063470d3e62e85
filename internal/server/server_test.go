package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/srinumudili/CodeMate/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		HTTPAddress:         ":0",
		LogLevel:            "debug",
		ShutdownGracePeriod: time.Second,
		Storage:             config.StorageConfig{Driver: config.DriverMemory},
		JWT:                 config.JWTConfig{Secret: "server-test-secret", Issuer: "codemate", TTL: time.Hour},
		Cookie:              config.CookieConfig{Name: "token"},
		Chat:                config.ChatConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Realtime:            config.RealtimeConfig{MaxMessageSize: 8 * 1024, SendBuffer: 64, EventTimeout: 5 * time.Second},
	}
}

func startApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	app, err := New(ctx, testConfig(), zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	go app.Run(ctx)
	<-app.Hub.Started()

	srv := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		drainCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		assert.NoError(t, app.Drain(drainCtx))
		app.Close()
	})
	return app, srv
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, header: resp.Header, body: raw}
}

type account struct {
	id    uuid.UUID
	token string
}

func register(t *testing.T, srv *httptest.Server, first, email string) account {
	t.Helper()
	res := call(t, srv, http.MethodPost, "/signup", "", map[string]string{
		"firstName": first,
		"lastName":  "Tester",
		"email":     email,
		"password":  "Str0ng!Pass",
	})
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.Contains(t, res.header.Get("Set-Cookie"), "token=")

	var body struct {
		Token string `json:"access_token"`
		Data  struct {
			ID    uuid.UUID `json:"id"`
			Email string    `json:"email"`
		} `json:"data"`
	}
	res.decode(t, &body)
	assert.Equal(t, email, body.Data.Email)
	assert.NotContains(t, string(res.body), "password")
	return account{id: body.Data.ID, token: body.Token}
}

func connectPair(t *testing.T, srv *httptest.Server, from, to account) {
	t.Helper()
	sent := call(t, srv, http.MethodPost, "/request/send/interested/"+to.id.String(), from.token, nil)
	require.Equal(t, http.StatusOK, sent.status, string(sent.body))
	var req struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	sent.decode(t, &req)

	reviewed := call(t, srv, http.MethodPost, "/request/review/accepted/"+req.Data.ID.String(), to.token, nil)
	require.Equal(t, http.StatusOK, reviewed.status, string(reviewed.body))
}

func TestHealthAndMetrics(t *testing.T) {
	_, srv := startApp(t)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/healthz", "", nil).status)
	ready := call(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, ready.status)
	assert.JSONEq(t, `{"status":"ready"}`, string(ready.body))

	metrics := call(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, metrics.status)
	assert.Contains(t, string(metrics.body), "codemate_sessions_active")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, srv := startApp(t)

	res := call(t, srv, http.MethodGet, "/profile/view", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Contains(t, string(res.body), "No token provided")

	res = call(t, srv, http.MethodGet, "/conversations", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
	assert.Contains(t, string(res.body), "Invalid token")
}

func TestAccountFlow(t *testing.T) {
	_, srv := startApp(t)
	alice := register(t, srv, "Alice", "alice@example.com")

	dup := call(t, srv, http.MethodPost, "/signup", "", map[string]string{
		"firstName": "Alice", "lastName": "Again", "email": "ALICE@example.com", "password": "Str0ng!Pass",
	})
	assert.Equal(t, http.StatusConflict, dup.status)

	login := call(t, srv, http.MethodPost, "/login", "", map[string]string{"email": "alice@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, login.status)
	assert.Contains(t, string(login.body), "Invalid Credentials.")

	login = call(t, srv, http.MethodPost, "/login", "", map[string]string{"email": "alice@example.com", "password": "Str0ng!Pass"})
	require.Equal(t, http.StatusOK, login.status)

	edit := call(t, srv, http.MethodPatch, "/profile/edit", alice.token, map[string]any{"about": "Gopher", "skills": []string{"go"}})
	require.Equal(t, http.StatusOK, edit.status, string(edit.body))
	assert.Contains(t, string(edit.body), "Alice data updated successfully...")

	strict := call(t, srv, http.MethodPatch, "/profile/edit", alice.token, map[string]any{"password": "sneaky"})
	assert.Equal(t, http.StatusBadRequest, strict.status)
	assert.Contains(t, string(strict.body), "Unable to edit the profile data!!")

	view := call(t, srv, http.MethodGet, "/profile/view", alice.token, nil)
	require.Equal(t, http.StatusOK, view.status)
	assert.Contains(t, string(view.body), `"about":"Gopher"`)

	logout := call(t, srv, http.MethodPost, "/logout", "", nil)
	assert.Equal(t, http.StatusOK, logout.status)
	assert.Contains(t, logout.header.Get("Set-Cookie"), "Max-Age=0")
}

func TestConnectionGatedChat(t *testing.T) {
	_, srv := startApp(t)
	alice := register(t, srv, "Alice", "alice@example.com")
	bob := register(t, srv, "Bobby", "bob@example.com")

	early := call(t, srv, http.MethodPost, "/conversation", alice.token, map[string]uuid.UUID{"participantId": bob.id})
	assert.Equal(t, http.StatusForbidden, early.status)

	feed := call(t, srv, http.MethodGet, "/user/feed", alice.token, nil)
	require.Equal(t, http.StatusOK, feed.status)
	assert.Contains(t, string(feed.body), bob.id.String())

	connectPair(t, srv, alice, bob)

	again := call(t, srv, http.MethodPost, "/request/send/interested/"+alice.id.String(), bob.token, nil)
	assert.Equal(t, http.StatusConflict, again.status)

	conns := call(t, srv, http.MethodGet, "/user/connections", alice.token, nil)
	require.Equal(t, http.StatusOK, conns.status)
	assert.Contains(t, string(conns.body), bob.id.String())

	created := call(t, srv, http.MethodPost, "/conversation", alice.token, map[string]uuid.UUID{"participantId": bob.id})
	require.Equal(t, http.StatusCreated, created.status, string(created.body))
	var conv struct {
		Conversation struct {
			ID uuid.UUID `json:"id"`
		} `json:"conversation"`
	}
	created.decode(t, &conv)
	convID := conv.Conversation.ID

	existing := call(t, srv, http.MethodPost, "/conversation", bob.token, map[string]uuid.UUID{"participantId": alice.id})
	assert.Equal(t, http.StatusOK, existing.status)

	// Bob is listening on the websocket when Alice sends over REST.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + bob.token
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	readUntil(t, ws, "onlineUsers")

	sent := call(t, srv, http.MethodPost, "/messages", alice.token, map[string]any{"conversationId": convID, "text": "hello over rest"})
	require.Equal(t, http.StatusCreated, sent.status, string(sent.body))

	var ev struct {
		ID         uuid.UUID `json:"id"`
		Text       string    `json:"text"`
		ReceiverID uuid.UUID `json:"receiverId"`
	}
	require.NoError(t, json.Unmarshal(readUntil(t, ws, "receiveMessage"), &ev))
	assert.Equal(t, "hello over rest", ev.Text)
	assert.Equal(t, bob.id, ev.ReceiverID)

	list := call(t, srv, http.MethodGet, "/conversations", bob.token, nil)
	require.Equal(t, http.StatusOK, list.status)
	var page struct {
		Conversations []struct {
			ID          uuid.UUID `json:"id"`
			UnreadCount int       `json:"unreadCount"`
		} `json:"conversations"`
	}
	list.decode(t, &page)
	require.Len(t, page.Conversations, 1)
	assert.Equal(t, 1, page.Conversations[0].UnreadCount)

	msgs := call(t, srv, http.MethodGet, "/messages/"+convID.String()+"?limit=1000", bob.token, nil)
	require.Equal(t, http.StatusOK, msgs.status)
	var history struct {
		Messages []struct {
			Text   string `json:"text"`
			IsRead bool   `json:"isRead"`
		} `json:"messages"`
		Limit int `json:"limit"`
		Total int `json:"totalMessages"`
	}
	msgs.decode(t, &history)
	assert.Equal(t, 100, history.Limit)
	assert.Equal(t, 1, history.Total)
	require.Len(t, history.Messages, 1)
	assert.True(t, history.Messages[0].IsRead)

	chatView := call(t, srv, http.MethodGet, "/chat/"+alice.id.String(), bob.token, nil)
	require.Equal(t, http.StatusOK, chatView.status)
	assert.Contains(t, string(chatView.body), "hello over rest")

	del := call(t, srv, http.MethodDelete, "/messages/"+ev.ID.String(), bob.token, nil)
	assert.Equal(t, http.StatusForbidden, del.status)
	del = call(t, srv, http.MethodDelete, "/messages/"+ev.ID.String(), alice.token, nil)
	assert.Equal(t, http.StatusOK, del.status)

	outsider := register(t, srv, "Carol", "carol@example.com")
	peek := call(t, srv, http.MethodGet, "/messages/"+convID.String(), outsider.token, nil)
	assert.Equal(t, http.StatusForbidden, peek.status)
}

func readUntil(t *testing.T, ws *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	for {
		var f struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&f))
		if f.Event == event {
			return f.Data
		}
	}
}
