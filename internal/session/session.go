// Package session holds the signed-in identity and broadcasts its changes to
// subscribers, so consumers depend on an injected Provider instead of a global.
package session

import (
	"sync"
	"time"
)

type Session struct {
	UserID        uint64    `json:"user_id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	EmailVerified bool      `json:"email_verified"`
	AccessToken   string    `json:"access_token"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}

type EventType string

const (
	SignedIn       EventType = "signed_in"
	SignedOut      EventType = "signed_out"
	TokenRefreshed EventType = "token_refreshed"
	UserUpdated    EventType = "user_updated"
)

type Event struct {
	Type    EventType
	Session *Session // nil on SignedOut
}

// Provider is the read side of the identity stream.
type Provider interface {
	Current() *Session
	Subscribe(fn func(Event)) (unsubscribe func())
}

// Broadcaster keeps the current session and fans every change out to subscribers.
type Broadcaster struct {
	mu      sync.RWMutex
	current *Session
	subs    map[int]func(Event)
	next    int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(Event))}
}

func (b *Broadcaster) Current() *Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return nil
	}
	s := *b.current
	return &s
}

func (b *Broadcaster) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish records the new state and notifies subscribers outside the lock.
func (b *Broadcaster) Publish(t EventType, s *Session) {
	b.mu.Lock()
	if t == SignedOut {
		b.current = nil
		s = nil
	} else if s != nil {
		cp := *s
		b.current = &cp
	}
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(Event{Type: t, Session: s})
	}
}
