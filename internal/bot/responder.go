package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

// Responder produces the assistant reply to input.
type Responder interface {
	Respond(ctx context.Context, input string, history []Turn) (string, error)
}

// Canned adapts an Engine to Responder. It never fails.
type Canned struct {
	Engine *Engine
}

func NewCanned(e *Engine) *Canned {
	if e == nil {
		e = NewEngine(nil)
	}
	return &Canned{Engine: e}
}

func (c *Canned) Respond(ctx context.Context, input string, history []Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.Engine.Respond(input, history), nil
}

type fallback struct {
	primary  Responder
	fallback Responder
}

// WithFallback answers with fb whenever primary fails.
func WithFallback(primary, fb Responder) Responder {
	return &fallback{primary: primary, fallback: fb}
}

func (f *fallback) Respond(ctx context.Context, input string, history []Turn) (string, error) {
	out, err := f.primary.Respond(ctx, input, history)
	if err == nil && strings.TrimSpace(out) != "" {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		log.Printf("[Bot] primary responder failed, using fallback: %v", err)
	}
	return f.fallback.Respond(ctx, input, history)
}

type Factory func(ctx context.Context, model string) (Responder, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name, model string) (Responder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown responder: %s", name)
	}
	return f(ctx, model)
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPrompt = "You are a friendly assistant inside a chat app. Keep answers short and use fenced code blocks for code."

// toChat turns the history plus the new input into provider messages.
func toChat(input string, history []Turn) []chatMsg {
	out := make([]chatMsg, 0, len(history)+2)
	out = append(out, chatMsg{Role: "system", Content: systemPrompt})
	for _, t := range history {
		role := "user"
		if t.Author == "assistant" {
			role = "assistant"
		}
		out = append(out, chatMsg{Role: role, Content: t.Content})
	}
	return append(out, chatMsg{Role: "user", Content: input})
}
