package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/suPer8Hu/subspace-chat/internal/auth"
	"github.com/suPer8Hu/subspace-chat/internal/models"
	"github.com/suPer8Hu/subspace-chat/internal/session"
)

type User struct {
	ID            uint64    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// SignUp creates the account. A verification code is mailed; the account
// is signed in by VerifyEmail.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*User, error) {
	in := auth.SignUpInput{Email: email, Password: password, DisplayName: displayName}
	// the same checks the server runs, without a round trip
	if err := auth.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	var u User
	if err := c.do(ctx, http.MethodPost, "/auth/signup", false, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodPost, "/auth/verify", false, map[string]string{"email": email, "code": code}, &s); err != nil {
		return nil, err
	}
	c.setSession(session.SignedIn, &s)
	return &s, nil
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/verify/resend", false, map[string]string{"email": email}, nil)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodPost, "/auth/signin", false, map[string]string{"email": email, "password": password}, &s); err != nil {
		return nil, err
	}
	c.setSession(session.SignedIn, &s)
	return &s, nil
}

// SignOut revokes the token on the server and always clears the local session.
func (c *Client) SignOut(ctx context.Context) error {
	var err error
	if c.sessions.Current() != nil {
		err = c.do(ctx, http.MethodPost, "/auth/signout", true, nil, nil)
		if err != nil && !isUnauthorized(err) {
			log.Printf("[Client] sign out: %v", err)
		} else {
			err = nil
		}
	}
	c.setSession(session.SignedOut, nil)
	return err
}

func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	var s session.Session
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", true, nil, &s); err != nil {
		return nil, err
	}
	c.setSession(session.TokenRefreshed, &s)
	return &s, nil
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/auth/reset-password", false, map[string]string{"email": email}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, email, code, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/reset-password/confirm", false,
		map[string]string{"email": email, "code": code, "password": password}, nil)
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/me", true, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodGet, "/me/profile", true, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile saves the profile; a new display name is published as UserUpdated.
func (c *Client) UpdateProfile(ctx context.Context, in auth.ProfileInput) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, http.MethodPut, "/me/profile", true, in, &p); err != nil {
		return nil, err
	}
	if s := c.sessions.Current(); s != nil && s.DisplayName != p.DisplayName {
		s.DisplayName = p.DisplayName
		c.setSession(session.UserUpdated, s)
	}
	return &p, nil
}

func (c *Client) setSession(t session.EventType, s *session.Session) {
	c.sessions.Publish(t, s)
	if c.SessionFile == "" {
		return
	}
	if t == session.SignedOut {
		if err := os.Remove(c.SessionFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Client] remove session file: %v", err)
		}
		return
	}
	if err := saveSession(c.SessionFile, s); err != nil {
		log.Printf("[Client] save session: %v", err)
	}
}

func saveSession(path string, s *session.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Restore signs in from the session file. An expired or unreadable session
// is discarded and reported as not restored.
func (c *Client) Restore() (bool, error) {
	if c.SessionFile == "" {
		return false, nil
	}
	b, err := os.ReadFile(c.SessionFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading session: %w", err)
	}
	var s session.Session
	if err := json.Unmarshal(b, &s); err != nil || s.AccessToken == "" || s.Expired(time.Now()) {
		_ = os.Remove(c.SessionFile)
		return false, nil
	}
	c.sessions.Publish(session.SignedIn, &s)
	return true, nil
}
