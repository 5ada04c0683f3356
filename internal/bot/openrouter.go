package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenRouterResponder uses the OpenRouter chat completions API.
type OpenRouterResponder struct {
	BaseURL string
	APIKey  string
	Model   string
	// SiteURL and AppName are sent as the attribution headers OpenRouter shows in its rankings.
	SiteURL string
	AppName string
	Client  *http.Client
}

func NewOpenRouterResponder(baseURL, apiKey, model, siteURL, appName string) *OpenRouterResponder {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterResponder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []chatMsg `json:"messages"`
}

type completionReply struct {
	Choices []struct {
		Message chatMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenRouterResponder) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		h.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		h.Set("X-Title", p.AppName)
	}
	return h
}

func (p *OpenRouterResponder) Respond(ctx context.Context, input string, history []Turn) (string, error) {
	switch {
	case p.APIKey == "":
		return "", errors.New("openrouter: api key is required")
	case p.Model == "":
		return "", errors.New("openrouter: model is required")
	}

	var reply completionReply
	err := postJSON(ctx, p.Client, p.BaseURL+"/chat/completions", p.header(), completionRequest{
		Model:    p.Model,
		Messages: toChat(input, history),
	}, &reply)
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	if reply.Error != nil && reply.Error.Message != "" {
		return "", errors.New("openrouter: " + reply.Error.Message)
	}
	if len(reply.Choices) == 0 || strings.TrimSpace(reply.Choices[0].Message.Content) == "" {
		return "", errors.New("openrouter: empty reply")
	}
	return reply.Choices[0].Message.Content, nil
}
