package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/suPer8Hu/subspace-chat/internal/chat"
)

func convPath(id string) string { return "/conversations/" + url.PathEscape(id) }

func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", true, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodGet, convPath(id), true, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) CreateConversation(ctx context.Context, in chat.CreateConversationInput) (*chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", true, in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) UpdateConversation(ctx context.Context, id string, in chat.UpdateConversationInput) (*chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodPatch, convPath(id), true, in, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, convPath(id), true, nil, nil)
}

func (c *Client) CreateMessage(ctx context.Context, in chat.CreateMessageInput) (*chat.Message, error) {
	var msg chat.Message
	if err := c.do(ctx, http.MethodPost, convPath(in.ConversationID)+"/messages", true, in, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) UpdateMessage(ctx context.Context, id, content string) (*chat.Message, error) {
	var msg chat.Message
	if err := c.do(ctx, http.MethodPatch, "/messages/"+url.PathEscape(id), true, map[string]string{"content": content}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+url.PathEscape(id), true, nil, nil)
}

// GetShared reads a public conversation; no session is needed.
func (c *Client) GetShared(ctx context.Context, token string) (*chat.Conversation, error) {
	var conv chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/shared/"+url.PathEscape(token), false, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}
