package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OllamaResponder asks a local Ollama server for the reply.
type OllamaResponder struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewOllamaResponder(baseURL, model string) *OllamaResponder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	return &OllamaResponder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaRequest struct {
	Model    string    `json:"model"`
	Messages []chatMsg `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaReply struct {
	Message chatMsg `json:"message"`
	Error   string  `json:"error,omitempty"`
}

func (p *OllamaResponder) Respond(ctx context.Context, input string, history []Turn) (string, error) {
	var reply ollamaReply
	err := postJSON(ctx, p.Client, p.BaseURL+"/api/chat", nil, ollamaRequest{
		Model:    p.Model,
		Messages: toChat(input, history),
	}, &reply)
	if err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	if reply.Error != "" {
		return "", errors.New("ollama: " + reply.Error)
	}
	if strings.TrimSpace(reply.Message.Content) == "" {
		return "", errors.New("ollama: empty reply")
	}
	return reply.Message.Content, nil
}
