package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/auth/authtest"
	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/db"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/realtime"
	"github.com/suPer8Hu/subspace-chat/internal/store/redisstore"
)

type testServer struct {
	router *gin.Engine
	codes  *authtest.Codes
	hub    *realtime.Hub
}

func newTestServer(t *testing.T, authRate int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.Profile{}, &chat.Conversation{}, &chat.Message{}))

	codes := authtest.NewCodes()
	hub := realtime.NewHub(8)
	r := NewRouter(Deps{
		Auth:              auth.NewGateway(gdb, codes, &authtest.Mail{}, "test-secret", time.Hour),
		Chat:              chat.NewService(chat.NewRepo(gdb), hub),
		Hub:               hub,
		AuthRatePerMinute: authRate,
	})
	return &testServer{router: r, codes: codes, hub: hub}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// signUp registers and verifies an account and returns its access token.
func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	status, _ := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": email, "password": "Secret123", "display_name": "Ada"})
	require.Equal(t, http.StatusCreated, status)

	code := s.codes.Code(redisstore.PurposeVerify, email)
	require.NotEmpty(t, code)
	status, env := s.do(t, http.MethodPost, "/auth/verify", "", gin.H{"email": email, "code": code})
	require.Equal(t, http.StatusOK, status)
	token := decode[struct {
		AccessToken string `json:"access_token"`
	}](t, env).AccessToken
	require.NotEmpty(t, token)
	return token
}

func TestRouter_PingAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t, 100)

	status, env := s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, env.Code)

	status, env = s.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40400, env.Code)

	status, env = s.do(t, http.MethodPut, "/ping", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, 40500, env.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, 100)

	req := httptest.NewRequest(http.MethodOptions, "/conversations", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRouter_AuthRequired(t *testing.T) {
	s := newTestServer(t, 100)

	status, env := s.do(t, http.MethodGet, "/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40101, env.Code)

	status, env = s.do(t, http.MethodGet, "/conversations", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40102, env.Code)
}

func TestRouter_SignUpValidation(t *testing.T) {
	s := newTestServer(t, 100)

	status, env := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "nope", "password": "Secret123"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email", env.Field)
	assert.Equal(t, "Please enter a valid email", env.Message)

	s.signUp(t, "ada@example.com")
	status, _ = s.do(t, http.MethodPost, "/auth/signup", "", gin.H{"email": "ada@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusConflict, status)

	status, env = s.do(t, http.MethodPost, "/auth/signin", "", gin.H{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Message)
}

func TestRouter_SignOutRevokes(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")

	status, env := s.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[map[string]any](t, env)
	assert.Equal(t, "ada@example.com", me["email"])
	assert.NotContains(t, me, "password_hash")

	status, _ = s.do(t, http.MethodPost, "/auth/signout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token revoked", env.Message)
}

func TestRouter_ConversationLifecycle(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")

	status, env := s.do(t, http.MethodPost, "/conversations", token, nil)
	require.Equal(t, http.StatusCreated, status)
	conv := decode[chat.Conversation](t, env)
	assert.True(t, strings.HasPrefix(conv.Title, "New Chat "))
	assert.False(t, conv.IsPublic)

	for i, m := range []struct {
		author  chat.Author
		content string
	}{{chat.AuthorUser, "Hello"}, {chat.AuthorAssistant, "Hi there!"}} {
		status, env = s.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", token, gin.H{
			"content": m.content, "author": m.author, "position": i + 1,
		})
		require.Equal(t, http.StatusCreated, status, env.Message)
	}

	status, env = s.do(t, http.MethodPatch, "/conversations/"+conv.ID, token, gin.H{"message_count": 2, "title": "Greetings"})
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	got := decode[chat.Conversation](t, env)
	assert.Equal(t, "Greetings", got.Title)
	assert.Equal(t, 2, got.MessageCount)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, chat.AuthorAssistant, got.Messages[1].Author)

	status, env = s.do(t, http.MethodGet, "/conversations", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]chat.Conversation](t, env), 1)

	// another account cannot see it
	other := s.signUp(t, "bob@example.com")
	status, _ = s.do(t, http.MethodGet, "/conversations/"+conv.ID, other, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/conversations/"+conv.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/conversations/"+conv.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_MessageValidation(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")
	_, env := s.do(t, http.MethodPost, "/conversations", token, gin.H{"title": "x"})
	conv := decode[chat.Conversation](t, env)

	status, env := s.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", token, gin.H{
		"content": strings.Repeat("a", chat.MaxMessageLength+1), "author": "user",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "content", env.Field)

	req := httptest.NewRequest(http.MethodPatch, "/conversations/"+conv.ID, strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SharedView(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")
	_, env := s.do(t, http.MethodPost, "/conversations", token, gin.H{"title": "Public", "is_public": true})
	conv := decode[chat.Conversation](t, env)
	require.NotNil(t, conv.ShareToken)

	status, env := s.do(t, http.MethodGet, "/shared/"+*conv.ShareToken, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Public", decode[chat.Conversation](t, env).Title)

	off := false
	status, _ = s.do(t, http.MethodPatch, "/conversations/"+conv.ID, token, chat.UpdateConversationInput{IsPublic: &off})
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/shared/"+*conv.ShareToken, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_Profile(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")

	status, env := s.do(t, http.MethodPut, "/me/profile", token, gin.H{"bio": "Analyst", "theme_preference": "dark"})
	require.Equal(t, http.StatusOK, status, env.Message)
	p := decode[models.Profile](t, env)
	assert.Equal(t, "Analyst", p.Bio)
	assert.Equal(t, models.ThemeDark, p.ThemePreference)

	status, env = s.do(t, http.MethodPut, "/me/profile", token, gin.H{"display_name": "A"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "display_name", env.Field)
}

func TestRouter_AuthRateLimit(t *testing.T) {
	s := newTestServer(t, 2)
	body := gin.H{"email": "ghost@example.com", "password": "Secret123"}

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodPost, "/auth/signin", "", body)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, env := s.do(t, http.MethodPost, "/auth/signin", "", body)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, 42901, env.Code)
}

func TestRouter_SubscribeStreamsEvents(t *testing.T) {
	s := newTestServer(t, 100)
	token := s.signUp(t, "ada@example.com")
	_, env := s.do(t, http.MethodPost, "/conversations", token, nil)
	conv := decode[chat.Conversation](t, env)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/conversations/" + conv.ID + "/subscribe?access_token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return s.hub.Subscribers(conv.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	status, _ := s.do(t, http.MethodPost, "/conversations/"+conv.ID+"/messages", token, gin.H{"content": "Hello", "author": "user", "position": 1})
	require.Equal(t, http.StatusCreated, status)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev chat.Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, chat.EventMessageCreated, ev.Type)
	assert.Equal(t, conv.ID, ev.ConversationID)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "Hello", ev.Message.Content)

	// other users' subscriptions are refused before the upgrade
	other := s.signUp(t, "bob@example.com")
	_, resp, err := websocket.DefaultDialer.Dial(strings.Replace(url, token, other, 1), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
