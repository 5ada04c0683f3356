package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose separates the code namespaces.
type Purpose string

const (
	PurposeVerify Purpose = "verify"
	PurposeReset  Purpose = "reset"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func codeKey(p Purpose, email string) string {
	return fmt.Sprintf("code:%s:%s", p, email)
}

func revokedKey(jti string) string {
	return "jwt:revoked:" + jti
}

// SaveCode stores a one-time code, replacing any earlier code for the same email.
func (s *Store) SaveCode(ctx context.Context, p Purpose, email, code string, ttl time.Duration) error {
	return s.rdb.Set(ctx, codeKey(p, email), code, ttl).Err()
}

// GetCode returns redis.Nil when the code expired or was never issued.
func (s *Store) GetCode(ctx context.Context, p Purpose, email string) (string, error) {
	return s.rdb.Get(ctx, codeKey(p, email)).Result()
}

func (s *Store) DeleteCode(ctx context.Context, p Purpose, email string) error {
	return s.rdb.Del(ctx, codeKey(p, email)).Err()
}

// Revoke blocks a token id until it would have expired anyway.
func (s *Store) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.rdb.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.rdb.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
