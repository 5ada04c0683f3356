package bot

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/config"
)

func newTestEngine() *Engine {
	return NewEngine(rand.New(rand.NewSource(42)))
}

func TestRespond_KeywordGroups(t *testing.T) {
	e := newTestEngine()
	for _, p := range patterns {
		for _, kw := range p.keywords {
			for i := 0; i < 5; i++ {
				got := e.Respond("well, "+strings.ToUpper(kw)+"!", nil)
				assert.Contains(t, p.responses, got, "keyword %q", kw)
			}
		}
	}
}

func TestRespond_GroupPrecedence(t *testing.T) {
	e := newTestEngine()
	// matches greeting and code; greeting comes first
	got := e.Respond("hello, can you write code", nil)
	assert.Contains(t, patterns[0].responses, got)

	// "what can you do" contains no greeting keyword so help wins
	got = e.Respond("what can you do", nil)
	assert.Contains(t, patterns[3].responses, got)
}

func TestRespond_ContextFreeFallback(t *testing.T) {
	e := newTestEngine()
	input := "tell me about X"
	for i := 0; i < 20; i++ {
		got := e.Respond(input, nil)
		assert.True(t, matchesTemplate(generalTemplates, got, input), "unexpected reply %q", got)
		assert.Contains(t, got, "X")
	}
}

func TestRespond_ContextualFallback(t *testing.T) {
	e := newTestEngine()
	history := []Turn{
		{Author: "user", Content: "dropped because it is fourth from the end"},
		{Author: "user", Content: "quantum mechanics"},
		{Author: "assistant", Content: "is a branch of physics"},
		{Author: "user", Content: "about small things"},
	}
	input := "tell me more"
	snippet := "quantum mechanics is a branch "
	require.Len(t, snippet, contextSnippet)

	for i := 0; i < 20; i++ {
		got := e.Respond(input, history)
		assert.Contains(t, got, snippet+"...")
		assert.Contains(t, got, `"`+input+`"`)
		assert.NotContains(t, got, "dropped")
		assert.True(t, strings.HasPrefix(got, "Based on") ||
			strings.HasPrefix(got, "Continuing") ||
			strings.HasPrefix(got, "In the context") ||
			strings.HasPrefix(got, "Building on"), "unexpected reply %q", got)
	}
}

func TestRespond_ShortContextKeptWhole(t *testing.T) {
	e := newTestEngine()
	got := e.Respond("tell me more", []Turn{{Content: "moon"}})
	assert.Contains(t, got, "moon...")
}

func TestCanned_HonoursContext(t *testing.T) {
	c := NewCanned(newTestEngine())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Respond(ctx, "hello", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type failing struct{}

func (failing) Respond(context.Context, string, []Turn) (string, error) {
	return "", errors.New("boom")
}

func TestWithFallback(t *testing.T) {
	r := WithFallback(failing{}, NewCanned(newTestEngine()))
	got, err := r.Respond(context.Background(), "bye", nil)
	require.NoError(t, err)
	assert.Contains(t, patterns[2].responses, got)
}

func TestOllamaResponder(t *testing.T) {
	var req ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(ollamaReply{Message: chatMsg{Role: "assistant", Content: "from llama"}})
	}))
	defer srv.Close()

	p := NewOllamaResponder(srv.URL, "tiny")
	got, err := p.Respond(context.Background(), "question", []Turn{{Author: "assistant", Content: "earlier"}})
	require.NoError(t, err)
	assert.Equal(t, "from llama", got)

	assert.Equal(t, "tiny", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, chatMsg{Role: "assistant", Content: "earlier"}, req.Messages[1])
	assert.Equal(t, chatMsg{Role: "user", Content: "question"}, req.Messages[2])
}

func TestOpenRouterResponder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenRouterResponder(srv.URL, "key", "m", "", "")
	_, err := p.Respond(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
	assert.Equal(t, common.KindPermission, common.KindOf(err))
}

func TestOpenRouterResponder_Headers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "https://subspace.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Subspace", r.Header.Get("X-Title"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"routed"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterResponder(srv.URL+"/", "key", "m", "https://subspace.test", "Subspace")
	got, err := p.Respond(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "routed", got)

	_, err = NewOpenRouterResponder(srv.URL, " ", "m", "", "").Respond(context.Background(), "q", nil)
	assert.ErrorContains(t, err, "api key is required")
}

func TestOllamaResponder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaResponder(url, "tiny").Respond(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Equal(t, common.KindNetwork, common.KindOf(err))
}

func TestDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry(config.Config{OllamaBaseURL: "http://127.0.0.1:1"}, rand.New(rand.NewSource(1)))

	canned, err := reg.Get(context.Background(), "CANNED", "")
	require.NoError(t, err)
	got, err := canned.Respond(context.Background(), "hey", nil)
	require.NoError(t, err)
	assert.Contains(t, patterns[0].responses, got)

	_, err = reg.Get(context.Background(), "gpt", "")
	assert.Error(t, err)

	// unreachable ollama falls back to the canned reply
	ollama, err := reg.Get(context.Background(), "ollama", "")
	require.NoError(t, err)
	got, err = ollama.Respond(context.Background(), "hey", nil)
	require.NoError(t, err)
	assert.Contains(t, patterns[0].responses, got)
}

func matchesTemplate(templates []string, got, input string) bool {
	for _, tpl := range templates {
		if strings.ReplaceAll(tpl, "%s", input) == got {
			return true
		}
	}
	return false
}
