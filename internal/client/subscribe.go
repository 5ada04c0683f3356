package client

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/suPer8Hu/subspace-chat/internal/chat"
	"github.com/suPer8Hu/subspace-chat/internal/common"
)

// Subscribe streams the events of one conversation until ctx ends or the
// server closes the socket. The channel is closed when the stream ends.
func (c *Client) Subscribe(ctx context.Context, conversationID string) (<-chan chat.Event, error) {
	tok, err := c.token()
	if err != nil {
		return nil, err
	}
	u := c.BaseURL + convPath(conversationID) + "/subscribe"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+tok)
	conn, resp, err := c.Dialer.DialContext(ctx, u, header)
	if err != nil {
		if resp != nil {
			return nil, &common.Error{Kind: common.KindFromStatus(resp.StatusCode), Message: "subscribe failed: " + resp.Status}
		}
		return nil, common.Network(err)
	}

	out := make(chan chat.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var ev chat.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.Printf("[Client] subscription %s ended: %v", conversationID, err)
				}
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
