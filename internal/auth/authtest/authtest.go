// Package authtest provides in-memory stand-ins for the redis code store and
// the mail queue, for tests that run the gateway without infrastructure.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/suPer8Hu/subspace-chat/internal/mailer"
	"github.com/suPer8Hu/subspace-chat/internal/store/redisstore"
)

// Codes implements auth.CodeStore. Expiry is ignored.
type Codes struct {
	// DeleteErr, when set, fails every DeleteCode call.
	DeleteErr error

	mu      sync.Mutex
	codes   map[string]string
	revoked map[string]bool
}

func NewCodes() *Codes {
	return &Codes{codes: map[string]string{}, revoked: map[string]bool{}}
}

func key(p redisstore.Purpose, email string) string { return string(p) + ":" + email }

func (m *Codes) SaveCode(_ context.Context, p redisstore.Purpose, email, code string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[key(p, email)] = code
	return nil
}

func (m *Codes) GetCode(_ context.Context, p redisstore.Purpose, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[key(p, email)]
	if !ok {
		return "", redis.Nil
	}
	return c, nil
}

func (m *Codes) DeleteCode(_ context.Context, p redisstore.Purpose, email string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, key(p, email))
	return nil
}

func (m *Codes) Revoke(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *Codes) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

// Code returns the pending code or "" when there is none.
func (m *Codes) Code(p redisstore.Purpose, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[key(p, email)]
}

// Mail implements auth.MailQueue by recording every mail.
type Mail struct {
	// Err, when set, fails every Enqueue call and nothing is recorded.
	Err error

	mu   sync.Mutex
	sent []mailer.Mail
}

func (m *Mail) Enqueue(_ context.Context, mail mailer.Mail) (*mailer.Job, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return &mailer.Job{ID: uuid.NewString(), Kind: mail.Kind, To: mail.To, Subject: mail.Subject, Body: mail.Body}, nil
}

func (m *Mail) Sent() []mailer.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Mail(nil), m.sent...)
}
