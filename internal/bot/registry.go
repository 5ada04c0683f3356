package bot

import (
	"context"
	"math/rand"

	"github.com/suPer8Hu/subspace-chat/internal/config"
)

// NewDefaultRegistry registers the canned engine and the two LLM backends.
// LLM responders fall back to the canned engine when the provider fails.
func NewDefaultRegistry(cfg config.Config, rnd *rand.Rand) *Registry {
	canned := NewCanned(NewEngine(rnd))

	r := NewRegistry()
	r.Register("canned", func(ctx context.Context, model string) (Responder, error) {
		return canned, nil
	})
	r.Register("ollama", func(ctx context.Context, model string) (Responder, error) {
		if model == "" {
			model = cfg.OllamaModel
		}
		return WithFallback(NewOllamaResponder(cfg.OllamaBaseURL, model), canned), nil
	})
	r.Register("openrouter", func(ctx context.Context, model string) (Responder, error) {
		if model == "" {
			model = cfg.OpenRouterModel
		}
		p := NewOpenRouterResponder(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName)
		return WithFallback(p, canned), nil
	})
	return r
}
