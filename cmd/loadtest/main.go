package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/logging"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	pairCount = flag.Int("pairs", 50, "number of connected user pairs") // ⚠️ Start small. The database might choke on 1000 immediately.
	msgCount  = flag.Int("messages", 20, "messages per user")
	password  = flag.String("password", "LoadTest#2024", "password for generated accounts")
)

type authResponse struct {
	Token string `json:"access_token"`
	User  struct {
		ID uuid.UUID `json:"id"`
	} `json:"data"`
}

type dataResponse struct {
	Data struct {
		ID uuid.UUID `json:"id"`
	} `json:"data"`
}

type conversationResponse struct {
	Conversation struct {
		ID uuid.UUID `json:"id"`
	} `json:"conversation"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	failures atomic.Int64
}

func main() {
	flag.Parse()
	log, err := logging.NewLogger("info")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	run := uuid.NewString()[:8]
	log.Info("🔥 STARTING STRESS TEST", zap.Int("users", *pairCount*2), zap.Int("messages_each", *msgCount))

	var st stats
	var wg sync.WaitGroup
	start := time.Now()

	// User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			if err := runPair(log, &st, run, pairID); err != nil {
				st.failures.Add(1)
				log.Warn("❌ pair failed", zap.Int("pair", pairID), zap.Error(err))
			}
		}(i)
	}

	wg.Wait()
	log.Info("✅ LOAD TEST COMPLETE",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("sent", st.sent.Load()),
		zap.Int64("received", st.received.Load()),
		zap.Int64("failed_pairs", st.failures.Load()))
}

func runPair(log *zap.Logger, st *stats, run string, pairID int) error {
	// 1. Register both sides
	a, err := signup(fmt.Sprintf("lt_%s_%d_a@loadtest.dev", run, pairID))
	if err != nil {
		return fmt.Errorf("signup a: %w", err)
	}
	b, err := signup(fmt.Sprintf("lt_%s_%d_b@loadtest.dev", run, pairID))
	if err != nil {
		return fmt.Errorf("signup b: %w", err)
	}

	// 2. Connect them: A is interested, B accepts
	var sent dataResponse
	if err := call(http.MethodPost, "/request/send/interested/"+b.User.ID.String(), a.Token, nil, &sent); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if err := call(http.MethodPost, "/request/review/accepted/"+sent.Data.ID.String(), b.Token, nil, nil); err != nil {
		return fmt.Errorf("review request: %w", err)
	}

	// 3. User A starts the conversation
	var conv conversationResponse
	if err := call(http.MethodPost, "/conversation", a.Token, map[string]uuid.UUID{"participantId": b.User.ID}, &conv); err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	// 4. Both sides chat over the websocket
	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(log, st, &wsWg, a.Token, conv.Conversation.ID)
	go spamChat(log, st, &wsWg, b.Token, conv.Conversation.ID)
	wsWg.Wait()
	return nil
}

func signup(email string) (*authResponse, error) {
	var res authResponse
	err := call(http.MethodPost, "/signup", "", map[string]string{
		"firstName": "Load",
		"lastName":  "Tester",
		"email":     email,
		"password":  *password,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func spamChat(log *zap.Logger, st *stats, wg *sync.WaitGroup, token string, convID uuid.UUID) {
	defer wg.Done()

	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Warn("❌ WS connect failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Count every message delivered to this session, ours and the peer's.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == "receiveMessage" {
				st.received.Add(1)
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		err := conn.WriteJSON(map[string]any{
			"event": "sendMessage",
			"data": map[string]any{
				"conversationId": convID,
				"text":           fmt.Sprintf("LoadTest Msg %d", i),
			},
		})
		if err != nil {
			log.Warn("❌ send failed", zap.Error(err))
			break
		}
		st.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the fan-out a moment before hanging up.
	time.Sleep(500 * time.Millisecond)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	<-done
}

func call(method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, *baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
