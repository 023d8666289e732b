package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewanujbusiness/messenger/internal/auth"
	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/crypto"
	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
	"github.com/andrewanujbusiness/messenger/internal/store"
	"github.com/andrewanujbusiness/messenger/internal/tone"
)

// failingCompleter simulates an unreachable language model.
type failingCompleter struct{}

func (failingCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return "", context.DeadlineExceeded
}

// formalCompleter answers every prompt with a fixed rewrite.
type formalCompleter struct{}

func (formalCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return "Good day. How are you?", nil
}

type testServer struct {
	*httptest.Server
	store *store.MemoryStore
}

func newTestServer(t *testing.T, completer tone.Completer, redisStore *store.RedisStore) *testServer {
	t.Helper()
	logger := zerolog.Nop()

	ds := store.NewMemoryStore(store.SeedUsers(), nil)
	signer, err := crypto.NewTokenSigner("test-secret", 0)
	require.NoError(t, err)
	authn := auth.NewAuthenticator(ds, signer)

	chatSvc := chat.NewService(ds, tone.NewService(completer, time.Second, logger), chat.Options{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := realtime.NewHub(logger)
	go hub.Run(ctx)

	router := NewRouter(logger, Deps{
		Store:    ds,
		Redis:    redisStore,
		Auth:     authn,
		Chat:     chatSvc,
		Hub:      hub,
		Realtime: realtime.NewServer(hub, chatSvc, authn, realtime.Options{}, logger),
	})

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, store: ds}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": "password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Token string         `json:"token"`
		User  models.Profile `json:"user"`
	}](t, resp)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "password"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]json.RawMessage](t, resp)

	var user map[string]interface{}
	require.NoError(t, json.Unmarshal(body["user"], &user))
	assert.Equal(t, "1", user["id"])
	assert.Equal(t, "alice", user["username"])
	assert.Equal(t, "Alice Johnson", user["name"])
	assert.NotContains(t, user, "passwordHash")
	assert.NotContains(t, user, "PasswordHash")
}

func TestLoginFailuresShareOneShape(t *testing.T) {
	s := newTestServer(t, nil, nil)

	wrong := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "nope"})
	unknown := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "mallory", "password": "password"})

	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, decode[map[string]string](t, wrong), decode[map[string]string](t, unknown))
}

func TestLoginUsernameMustMatchExactly(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for _, name := range []string{"  alice  ", "alice ", "Alice"} {
		resp := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": name, "password": "password"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "username %q", name)
		assert.Equal(t, map[string]string{"error": "Invalid credentials"}, decode[map[string]string](t, resp))
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := s.do(t, http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "missing credentials", decode[map[string]string](t, resp)["error"])

	resp = s.do(t, http.MethodGet, "/users", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", decode[map[string]string](t, resp)["error"])
}

func TestListUsersExcludesCaller(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "alice")

	for _, prefix := range []string{"", "/api"} {
		resp := s.do(t, http.MethodGet, prefix+"/users", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		users := decode[[]models.Profile](t, resp)
		require.Len(t, users, 2)
		for _, u := range users {
			assert.NotEqual(t, "1", u.ID)
		}
	}
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "alice")

	resp := s.do(t, http.MethodGet, "/users/2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", decode[models.Profile](t, resp).Username)

	resp = s.do(t, http.MethodGet, "/users/404", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationFlow(t *testing.T) {
	s := newTestServer(t, nil, nil)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	resp := s.do(t, http.MethodGet, "/conversations/2", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]\n", readBody(t, resp))

	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": "Hey Bob!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[models.Message](t, resp)
	assert.Equal(t, "Hey Bob!", sent.Text)
	assert.Equal(t, "1", sent.SenderID)

	resp = s.do(t, http.MethodPost, "/api/messages", bob, map[string]string{"receiverId": "1", "text": "Hi Alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Both participants see the same ordered history.
	for _, token := range []string{alice, bob} {
		other := "2"
		if token == bob {
			other = "1"
		}
		resp = s.do(t, http.MethodGet, "/conversations/"+other, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		msgs := decode[[]models.Message](t, resp)
		require.Len(t, msgs, 2)
		assert.Equal(t, "Hey Bob!", msgs[0].Text)
		assert.Equal(t, "Hi Alice", msgs[1].Text)
	}

	resp = s.do(t, http.MethodGet, "/conversations/999", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Message](t, resp))
}

func TestPostMessageValidation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	alice := s.login(t, "alice")

	resp := s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "99", "text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "1", "text": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTonePreferenceLifecycle(t *testing.T) {
	s := newTestServer(t, formalCompleter{}, nil)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	resp := s.do(t, http.MethodGet, "/tone-preference/1", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"tone":null}`, readBody(t, resp))

	resp = s.do(t, http.MethodPost, "/tone-preference", bob, map[string]string{"targetUserId": "1", "tone": "formal"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"tone":"formal"}`, readBody(t, resp))

	resp = s.do(t, http.MethodGet, "/tone-preference/1", bob, nil)
	assert.JSONEq(t, `{"tone":"formal"}`, readBody(t, resp))

	// alice -> bob is rewritten for bob; alice's ack keeps her text
	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": "hey whats up"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ack := decode[models.Message](t, resp)
	assert.Equal(t, "hey whats up", ack.Text)
	assert.Empty(t, ack.ToneApplied)

	msgs, err := s.store.ListMessages(context.Background(), "1-2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Good day. How are you?", msgs[0].Text)
	assert.Equal(t, "hey whats up", msgs[0].OriginalText)
	assert.Equal(t, models.ToneFormal, msgs[0].ToneApplied)

	// null clears
	resp = s.do(t, http.MethodPost, "/tone-preference", bob, map[string]interface{}{"targetUserId": "1", "tone": nil})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"tone":null}`, readBody(t, resp))

	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": "plain again"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msgs, err = s.store.ListMessages(context.Background(), "1-2")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "plain again", msgs[1].Text)
	assert.Empty(t, msgs[1].ToneApplied)
}

func TestTonePreferenceRejectsUnknownTone(t *testing.T) {
	s := newTestServer(t, nil, nil)
	bob := s.login(t, "bob")

	resp := s.do(t, http.MethodPost, "/tone-preference", bob, map[string]string{"targetUserId": "1", "tone": "pirate"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/tone-preference", bob, map[string]string{"tone": "formal"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailedRewriteDeliversOriginal(t *testing.T) {
	s := newTestServer(t, failingCompleter{}, nil)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	resp := s.do(t, http.MethodPost, "/tone-preference", bob, map[string]string{"targetUserId": "1", "tone": "formal"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": "hey whats up"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/conversations/1", bob, nil)
	msgs := decode[[]models.Message](t, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey whats up", msgs[0].Text)
	assert.Empty(t, msgs[0].OriginalText)
	assert.Empty(t, msgs[0].ToneApplied)
}

func TestHealthAndStats(t *testing.T) {
	s := newTestServer(t, nil, nil)

	resp := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]interface{}](t, resp)
	assert.Equal(t, "healthy", health["status"])

	resp = s.do(t, http.MethodGet, "/api/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[map[string]int64](t, resp)
	assert.Equal(t, int64(3), stats["total_users"])

	resp = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil, nil)
	resp := s.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestLoginRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rs := store.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(rs.Close)
	s := newTestServer(t, nil, rs)

	var last *http.Response
	for i := 0; i < 11; i++ {
		last = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong"})
	}
	assert.Equal(t, http.StatusTooManyRequests, last.StatusCode)
	assert.NotEmpty(t, last.Header.Get("Retry-After"))
}

func TestWebSocketThroughRouter(t *testing.T) {
	s := newTestServer(t, nil, nil)
	alice := s.login(t, "alice")
	bob := s.login(t, "bob")

	dial := func(path, token string) *websocket.Conn {
		header := http.Header{"Authorization": []string{"Bearer " + token}}
		ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.URL, "http")+path, header)
		require.NoError(t, err)
		resp.Body.Close()
		t.Cleanup(func() { ws.Close() })
		return ws
	}
	readEnvelope := func(ws *websocket.Conn) realtime.Envelope {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
		var env realtime.Envelope
		require.NoError(t, ws.ReadJSON(&env))
		return env
	}

	bobWS := dial("/api/ws", bob)
	require.NoError(t, bobWS.WriteJSON(map[string]interface{}{"event": "join", "data": "2"}))
	assert.Equal(t, realtime.EventJoined, readEnvelope(bobWS).Event)

	// A REST send is pushed to the receiver's room.
	resp := s.do(t, http.MethodPost, "/messages", alice, map[string]string{"receiverId": "2", "text": "over http"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	env := readEnvelope(bobWS)
	require.Equal(t, realtime.EventReceiveMessage, env.Event)
	var msg models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "over http", msg.Text)

	aliceWS := dial("/ws", alice)
	require.NoError(t, aliceWS.WriteJSON(map[string]interface{}{
		"event": "send_message",
		"data":  map[string]string{"senderId": "1", "receiverId": "2", "text": "over ws"},
	}))
	assert.Equal(t, realtime.EventMessageSent, readEnvelope(aliceWS).Event)

	env = readEnvelope(bobWS)
	require.Equal(t, realtime.EventReceiveMessage, env.Event)
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "over ws", msg.Text)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.String()
}
