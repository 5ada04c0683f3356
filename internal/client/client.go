// Package client talks to the chat API. It implements the controller's
// backend, owns the signed-in session and publishes its changes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/subspace-chat/internal/common"
	"github.com/suPer8Hu/subspace-chat/internal/session"
)

var errNotSignedIn = common.Permission("not signed in")

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
	// SessionFile persists the session between runs when set.
	SessionFile string

	sessions *session.Broadcaster
}

func New(baseURL string, sessions *session.Broadcaster) *Client {
	if sessions == nil {
		sessions = session.NewBroadcaster()
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		Dialer:   websocket.DefaultDialer,
		sessions: sessions,
	}
}

// Sessions is the identity stream other components subscribe to.
func (c *Client) Sessions() session.Provider { return c.sessions }

func (c *Client) token() (string, error) {
	s := c.sessions.Current()
	if s == nil || s.AccessToken == "" {
		return "", errNotSignedIn
	}
	return s.AccessToken, nil
}

// do sends one request and decodes the envelope's data into out.
// Transport failures are network errors; error statuses keep the server's
// message and field.
func (c *Client) do(ctx context.Context, method, path string, authed bool, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		tok, err := c.token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return common.Network(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.Network(err)
	}
	var env common.Envelope[json.RawMessage]
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &common.Error{Kind: common.KindFromStatus(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		}
		return common.Unknown(fmt.Errorf("decoding response: %w", err))
	}
	if resp.StatusCode >= 400 || env.Code != 0 {
		return &common.Error{
			Kind:    common.KindFromStatus(resp.StatusCode),
			Field:   env.Field,
			Message: env.Message,
		}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return common.Unknown(fmt.Errorf("decoding data: %w", err))
	}
	return nil
}

// IsSignedIn reports whether a non-expired session is held.
func (c *Client) IsSignedIn() bool {
	s := c.sessions.Current()
	return s != nil && !s.Expired(time.Now())
}

func isUnauthorized(err error) bool {
	var e *common.Error
	return errors.As(err, &e) && e.Kind == common.KindPermission
}
